//go:build !onnx

package ort

// This file provides a no-CGO stub for the ONNX runtime. It is compiled when
// the 'onnx' build tag is NOT set. The real binding lives in onnx.go.

// Built reports whether this binary carries the real runtime.
func Built() bool { return false }

type stubRuntime struct{ libPath string }

// New returns the runtime for this build. The stub refuses every session.
func New(libPath string) Runtime { return stubRuntime{libPath: libPath} }

func (stubRuntime) Name() string { return "stub" }

func (stubRuntime) Available() error { return ErrUnavailable }

func (stubRuntime) NewBuilder() (Builder, error) { return nil, ErrUnavailable }
