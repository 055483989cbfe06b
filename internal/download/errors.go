package download

import (
	"errors"
	"fmt"
)

// Sentinel errors for download operations.
// Use errors.Is() to check for specific error conditions. All of them are
// retryable by the caller; the part file is kept unless the checksum failed.
var (
	// ErrHTTPStatus indicates the server answered with an unusable status.
	ErrHTTPStatus = errors.New("download: unexpected http status")

	// ErrNetwork indicates a connection or transfer failure.
	ErrNetwork = errors.New("download: network error")

	// ErrIO indicates a local filesystem failure.
	ErrIO = errors.New("download: storage error")

	// ErrChecksumMismatch indicates the finished file failed SHA-256 verification.
	ErrChecksumMismatch = errors.New("download: checksum mismatch")
)

// StatusError carries the HTTP status that ended a download.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download: http status %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// ChecksumError reports both digests of a failed verification.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("download: checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
