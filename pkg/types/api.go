package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Models found in the models directory.
	Models []Model `json:"models"`
	// Remote catalog entries that can be pulled by name.
	Catalog []RemoteModel `json:"catalog,omitempty"`
}

// BackendsResponse is returned by GET /backends.
type BackendsResponse struct {
	// Backends the catalog detected on this machine. Always contains cpu.
	// example: ["cpu","cuda"]
	Detected []Backend `json:"detected" example:"[\"cpu\",\"cuda\"]"`
	// Whether an NPU-class backend was detected.
	// example: false
	Accelerator bool `json:"accelerator" example:"false"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Load failure kind, when the error came from the loader.
	// example: session_build_failed
	Kind LoadErrorKind `json:"kind,omitempty" example:"session_build_failed"`
	// Remediation hint for Kind.
	Hint string `json:"hint,omitempty"`
	// Canned reply from the fallback responder, when one is configured.
	Fallback string `json:"fallback,omitempty"`
}

// DownloadRequest starts a background download.
type DownloadRequest struct {
	// Catalog name or absolute http(s) URL.
	// example: phi-3-mini-int4
	Source string `json:"source" validate:"required" example:"phi-3-mini-int4"`
	// Optional expected SHA-256 (hex). Overrides the catalog value.
	SHA256 string `json:"sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	// Optional destination file name inside the models directory.
	// example: phi-3-mini-int4.onnx
	FileName string `json:"file_name,omitempty" example:"phi-3-mini-int4.onnx"`
}

// DownloadStatus describes a background download.
type DownloadStatus struct {
	// Task identifier.
	// example: 4b1c1f4e-9a57-4d8a-8c59-3f7b1a0f2a11
	ID  string `json:"id" example:"4b1c1f4e-9a57-4d8a-8c59-3f7b1a0f2a11"`
	URL string `json:"url"`
	// Final destination path.
	Dest string `json:"dest"`
	// starting, downloading, completed, failed, cancelled
	// example: downloading
	Status string `json:"status" example:"downloading"`
	// Bytes present locally, including resumed bytes.
	// example: 400000
	Downloaded int64 `json:"downloaded" example:"400000"`
	// Expected total size; 0 when unknown.
	// example: 1000000
	Total int64 `json:"total" example:"1000000"`
	// Bytes per second since the transfer (re)started.
	// example: 1048576
	Speed float64 `json:"speed_bps" example:"1048576"`
	// Failure reason when Status is failed.
	Error string `json:"error,omitempty"`
}

// LoadRequest selects a model by registry id or path and carries load options.
type LoadRequest struct {
	// Registry id of the model. Ignored when model_path is set.
	// example: phi-3-mini-int4
	Model string `json:"model,omitempty" example:"phi-3-mini-int4"`
	LoadConfig
}

// InferRequest carries pre-tokenized input ids.
type InferRequest struct {
	// Token ids. Tokenization happens outside this service.
	// example: [1, 15043, 29892]
	Tokens []int64 `json:"tokens" validate:"required,min=1" example:"[1,15043,29892]"`
}

// OutputTensor is one float output of an inference call.
type OutputTensor struct {
	Name  string    `json:"name"`
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data,omitempty"`
}

// InferResponse is returned by POST /infer.
type InferResponse struct {
	Backend Backend        `json:"backend"`
	Inputs  []string       `json:"inputs"`
	Outputs []OutputTensor `json:"outputs"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loader state: unloaded, validating, attempting, loaded, failed.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Model currently loaded, if any.
	ModelID   string `json:"model_id,omitempty"`
	ModelPath string `json:"model_path,omitempty"`
	// Backend the current session runs on.
	// example: cpu
	Backend Backend `json:"backend,omitempty" example:"cpu"`
	// Signature of the loaded session.
	Signature *ModelSignature `json:"signature,omitempty"`
	// Probe outcome of the current session.
	Probe *ProbeResult `json:"probe,omitempty"`
	// Attempt log of the most recent load.
	Attempts []AttemptRecord `json:"attempts,omitempty"`
	// Last error observed by the loader (if any).
	LastError string `json:"last_error,omitempty"`
	// Kind of LastError.
	LastErrorKind LoadErrorKind `json:"last_error_kind,omitempty"`
	// Current queue length for inference requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight inference requests.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Background downloads known to the server.
	Downloads []DownloadStatus `json:"downloads,omitempty"`
	// Total number of successful loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
