// Package manager negotiates an execution backend for an ONNX model, owns the
// resulting session, and coordinates inference admission. It is structured
// into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, Snapshot, LoadResult).
//   - errors.go: LoadError and helpers (IsLoadFailure, IsProbeFailure, IsTooBusy).
//   - classify.go: maps native failures onto the closed LoadErrorKind taxonomy.
//   - candidates.go: ordered backend attempt list.
//   - attempt.go: one contained backend attempt (recover, timeout, isolation).
//   - isolate.go: optional child-process pre-flight of an attempt.
//   - load.go: Load/LoadAsync state machine.
//   - introspect.go: input role inference.
//   - probe.go: adaptive forward probe of input naming conventions.
//   - admission.go: queueing and single in-flight inference admission.
//   - infer.go: Infer and Generate entry points.
//   - unload.go: drain and session release.
//   - pull.go: catalog downloads with registry rescan and auto-load.
//   - status_report.go, sanity.go: read-only reporting.
//
// Runtimes: the native runtime is injected as an ort.Runtime. Default builds
// carry a stub that refuses every session; build with `-tags=onnx` for the
// real one. Tests use ort/orttest.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (New/NewWithConfig, Load, Infer, Generate, Unload,
// Status). Internal types are subject to change.
package manager
