package manager

import (
	"errors"
	"fmt"

	"modelhost/pkg/types"
)

// LoadError is a classified load failure. Msg is never empty.
type LoadError struct {
	Kind    types.LoadErrorKind
	Backend types.Backend
	Msg     string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Backend, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Hint returns remediation text for the error kind.
func (e *LoadError) Hint() string { return e.Kind.Hint() }

func newLoadError(kind types.LoadErrorKind, be types.Backend, msg string, cause error) *LoadError {
	if msg == "" {
		if cause != nil {
			msg = cause.Error()
		} else {
			msg = string(kind)
		}
	}
	return &LoadError{Kind: kind, Backend: be, Msg: msg, Err: cause}
}

// AsLoadError extracts a *LoadError from err.
func AsLoadError(err error) (*LoadError, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsLoadFailure reports whether the model truly failed to load: validation
// failed or every backend was exhausted.
func IsLoadFailure(err error) bool {
	le, ok := AsLoadError(err)
	return ok && le.Kind != types.KindProbeFailed
}

// IsProbeFailure reports whether a session is loaded but no input naming
// convention was confirmed.
func IsProbeFailure(err error) bool {
	le, ok := AsLoadError(err)
	return ok && le.Kind == types.KindProbeFailed
}

// ErrLoadInProgress is returned when Load is called while another load runs.
var ErrLoadInProgress = errors.New("a load is already in progress")

// ErrClosed is returned by loads that start or finish after Close.
var ErrClosed = errors.New("manager closed")

// ErrNotLoaded is returned by Infer when no session is loaded.
var ErrNotLoaded = errors.New("no model loaded")

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error when a requested model id is not present in the registry.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// dependencyUnavailableError signals a missing native runtime so the HTTP
// layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}

// invalidRequestError marks caller mistakes (unknown model source, bad file
// name) so the HTTP layer can return 400.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return e.msg }

// IsInvalidRequest reports whether err was caused by bad caller input.
func IsInvalidRequest(err error) bool {
	var ie invalidRequestError
	return errors.As(err, &ie)
}
