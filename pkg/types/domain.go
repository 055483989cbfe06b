package types

import (
	"fmt"
	"strings"
)

// Model represents a discoverable or loadable ONNX model on disk.
type Model struct {
	// Stable identifier for the model (file stem).
	// example: phi-3-mini-int4
	ID string `json:"id" example:"phi-3-mini-int4"`
	// Human-friendly name.
	// example: phi-3-mini-int4.onnx
	Name string `json:"name" example:"phi-3-mini-int4.onnx"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/onnx/phi-3-mini-int4.onnx
	Path string `json:"path" example:"/home/user/models/onnx/phi-3-mini-int4.onnx"`
	// Quantization inferred from the file name.
	// example: int4
	Quant string `json:"quant" example:"int4"`
	// Coarse model kind inferred from the file name (chat, code, multimodal, language).
	// example: chat
	Kind string `json:"kind,omitempty" example:"chat"`
	// Size of the model file in bytes.
	// example: 2147483648
	SizeBytes int64 `json:"size_bytes,omitempty" example:"2147483648"`
}

// RemoteModel is a catalog entry that can be pulled by name.
type RemoteModel struct {
	Name        string `json:"name" yaml:"name" toml:"name" validate:"required"`
	URL         string `json:"url" yaml:"url" toml:"url" validate:"required,url"`
	SHA256      string `json:"sha256,omitempty" yaml:"sha256" toml:"sha256" validate:"omitempty,len=64,hexadecimal"`
	SizeBytes   int64  `json:"size_bytes,omitempty" yaml:"size_bytes" toml:"size_bytes"`
	Description string `json:"description,omitempty" yaml:"description" toml:"description"`
}

// Backend identifies an execution backend of the native runtime.
type Backend string

const (
	BackendCPU      Backend = "cpu"
	BackendCUDA     Backend = "cuda"
	BackendDirectML Backend = "directml"
	BackendCoreML   Backend = "coreml"
	BackendOpenVINO Backend = "openvino"
	BackendQNN      Backend = "qnn"
	BackendNNAPI    Backend = "nnapi"
)

// AllBackends lists every known backend in catalog order.
var AllBackends = []Backend{
	BackendCPU, BackendCUDA, BackendDirectML, BackendCoreML,
	BackendOpenVINO, BackendQNN, BackendNNAPI,
}

// ParseBackend accepts a backend name case-insensitively.
func ParseBackend(s string) (Backend, error) {
	v := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, b := range AllBackends {
		if v == b {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

func (b Backend) String() string { return string(b) }

// Valid reports whether b is a member of the closed backend set.
func (b Backend) Valid() bool {
	_, err := ParseBackend(string(b))
	return err == nil
}

// IsAccelerator reports whether b is an NPU-class backend.
func (b Backend) IsAccelerator() bool {
	switch b {
	case BackendOpenVINO, BackendQNN, BackendNNAPI:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler so config files and JSON
// bodies accept "CUDA" as well as "cuda".
func (b *Backend) UnmarshalText(p []byte) error {
	if len(p) == 0 {
		*b = ""
		return nil
	}
	v, err := ParseBackend(string(p))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// LoadErrorKind is the closed taxonomy of load failures.
type LoadErrorKind string

const (
	KindEmptyPath                 LoadErrorKind = "empty_path"
	KindFileMissing               LoadErrorKind = "file_missing"
	KindNotOnnxFile               LoadErrorKind = "not_onnx_file"
	KindBackendRegistrationFailed LoadErrorKind = "backend_registration_failed"
	KindSessionBuildFailed        LoadErrorKind = "session_build_failed"
	KindVersionIncompatibility    LoadErrorKind = "version_incompatibility"
	KindIo                        LoadErrorKind = "io"
	KindModelUnsupported          LoadErrorKind = "model_unsupported"
	KindProbeFailed               LoadErrorKind = "probe_failed"
	KindNativeCrash               LoadErrorKind = "native_crash"
	KindUnknown                   LoadErrorKind = "unknown"
)

// Valid reports whether k is a member of the taxonomy.
func (k LoadErrorKind) Valid() bool {
	switch k {
	case KindEmptyPath, KindFileMissing, KindNotOnnxFile, KindBackendRegistrationFailed,
		KindSessionBuildFailed, KindVersionIncompatibility, KindIo, KindModelUnsupported,
		KindProbeFailed, KindNativeCrash, KindUnknown:
		return true
	}
	return false
}

// Hint returns remediation text for the kind.
func (k LoadErrorKind) Hint() string {
	switch k {
	case KindEmptyPath:
		return "select a model file before loading"
	case KindFileMissing:
		return "the model file does not exist; re-download it or fix the path"
	case KindNotOnnxFile:
		return "only .onnx model files can be loaded"
	case KindBackendRegistrationFailed:
		return "the backend is not available on this machine; install its drivers or enable fallback"
	case KindSessionBuildFailed:
		return "the runtime could not build a session; try another backend or a different quantization"
	case KindVersionIncompatibility:
		return "the model needs a newer runtime (opset/IR version); upgrade the runtime library"
	case KindIo:
		return "a file or library could not be read; check permissions and the runtime library path"
	case KindModelUnsupported:
		return "the model uses operators this backend does not support; try the cpu backend"
	case KindProbeFailed:
		return "no known input-name convention was accepted; the model may need a custom adapter"
	case KindNativeCrash:
		return "the runtime crashed during loading; enable process isolation or try another backend"
	default:
		return "unexpected failure; see the diagnostic message"
	}
}

// InputRole is the semantic role inferred for a model input.
type InputRole string

const (
	RoleIds           InputRole = "ids"
	RoleAttentionMask InputRole = "attention_mask"
	RoleTokenTypeIds  InputRole = "token_type_ids"
	RolePositionIds   InputRole = "position_ids"
	RoleUnknown       InputRole = "unknown"
)

// InputDescriptor names one graph input and its inferred role.
type InputDescriptor struct {
	Name string    `json:"name"`
	Role InputRole `json:"role"`
}

// ModelSignature is the ordered list of inputs a session declares.
type ModelSignature struct {
	Inputs []InputDescriptor `json:"inputs"`
}

// Names returns the input names whose role is r, in declaration order.
func (s ModelSignature) Names(r InputRole) []string {
	var out []string
	for _, in := range s.Inputs {
		if in.Role == r {
			out = append(out, in.Name)
		}
	}
	return out
}

// LoadConfig carries everything a load needs. Generation fields are validated
// and carried for hosts; the loader itself does not sample.
type LoadConfig struct {
	ModelPath         string  `json:"model_path"`
	Backend           Backend `json:"backend,omitempty" validate:"omitempty,backend"`
	PreferAccelerator bool    `json:"prefer_accelerator,omitempty"`
	// EnableFallback is a pointer so an omitted field keeps the default (true).
	EnableFallback *bool   `json:"enable_fallback,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature    float64 `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	TopP           float64 `json:"top_p,omitempty" validate:"gte=0,lte=1"`
}

// FallbackEnabled reports the effective fallback flag.
func (c LoadConfig) FallbackEnabled() bool {
	return c.EnableFallback == nil || *c.EnableFallback
}

// AttemptRecord is one entry of the per-backend attempt log.
type AttemptRecord struct {
	Backend    Backend       `json:"backend"`
	Success    bool          `json:"success"`
	Kind       LoadErrorKind `json:"kind,omitempty"`
	Message    string        `json:"message,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// ProbeResult records which input combination a probe accepted.
type ProbeResult struct {
	Confirmed bool     `json:"confirmed"`
	Inputs    []string `json:"inputs,omitempty"`
	Tried     int      `json:"tried"`
	Error     string   `json:"error,omitempty"`
}

// LoadOutcome is the result of a negotiated load.
type LoadOutcome struct {
	Succeeded   bool            `json:"succeeded"`
	Requested   Backend         `json:"requested"`
	BackendUsed Backend         `json:"backend_used,omitempty"`
	Signature   *ModelSignature `json:"signature,omitempty"`
	// LastError is the diagnostic of the last failed attempt, even when a later
	// backend succeeded.
	LastError string          `json:"last_error,omitempty"`
	Attempts  []AttemptRecord `json:"attempts"`
	Probe     *ProbeResult    `json:"probe,omitempty"`
}
