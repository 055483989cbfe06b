// Package backends detects which execution backends of the native runtime are
// plausibly usable on this machine.
//
// Detection is a heuristic: a listed backend may still fail to register, and
// the loader treats the list as a hint. CPU is always present.
package backends

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"modelhost/pkg/types"
)

const defaultProbeTimeout = 3 * time.Second

// Probes are the system seams the detector reads. Tests replace them.
type Probes struct {
	GOOS   string
	GOARCH string
	// Run executes a command and returns its stdout.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
	Getenv func(key string) string
	Exists func(path string) bool
	// CPUBrands returns vendor/model strings of the installed processors.
	CPUBrands func() ([]string, error)
	// GPUVendors returns vendor names of the installed graphics cards.
	GPUVendors func() ([]string, error)
}

// SystemProbes returns probes backed by the running system.
func SystemProbes() Probes {
	return Probes{
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Getenv: os.Getenv,
		Exists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
		CPUBrands:  ghwCPUBrands,
		GPUVendors: ghwGPUVendors,
	}
}

func ghwCPUBrands() ([]string, error) {
	info, err := ghw.CPU()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range info.Processors {
		if p == nil {
			continue
		}
		out = append(out, p.Vendor+" "+p.Model)
	}
	return out, nil
}

func ghwGPUVendors() ([]string, error) {
	info, err := ghw.GPU()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range info.GraphicsCards {
		if c == nil || c.DeviceInfo == nil || c.DeviceInfo.Vendor == nil {
			continue
		}
		out = append(out, c.DeviceInfo.Vendor.Name)
	}
	return out, nil
}

// Detector runs the backend heuristics.
type Detector struct {
	probes  Probes
	timeout time.Duration
	log     zerolog.Logger

	once   sync.Once
	cached []types.Backend
}

// Option configures a Detector.
type Option func(*Detector)

// WithProbes replaces the system probes.
func WithProbes(p Probes) Option { return func(d *Detector) { d.probes = p } }

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Detector) { d.log = l } }

// WithProbeTimeout bounds each external command.
func WithProbeTimeout(t time.Duration) Option {
	return func(d *Detector) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDetector builds a Detector on the system probes unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{probes: SystemProbes(), timeout: defaultProbeTimeout, log: zerolog.Nop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns the plausible backends in catalog order, CPU first.
// Probes run concurrently; a failing probe only drops its backend.
func (d *Detector) Detect(ctx context.Context) []types.Backend {
	found := map[types.Backend]bool{types.BackendCPU: true}
	var mu sync.Mutex
	mark := func(b types.Backend, ok bool) {
		if !ok {
			return
		}
		mu.Lock()
		found[b] = true
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { mark(types.BackendCUDA, d.hasCUDA(gctx)); return nil })
	g.Go(func() error { mark(types.BackendOpenVINO, d.hasOpenVINO()); return nil })
	g.Go(func() error { mark(types.BackendQNN, d.hasQNN()); return nil })
	mark(types.BackendDirectML, d.probes.GOOS == "windows")
	mark(types.BackendCoreML, d.probes.GOOS == "darwin")
	mark(types.BackendNNAPI, d.probes.GOOS == "android")
	_ = g.Wait()

	out := make([]types.Backend, 0, len(found))
	for _, b := range types.AllBackends {
		if found[b] {
			out = append(out, b)
		}
	}
	d.log.Debug().Strs("backends", backendStrings(out)).Msg("backends detected")
	return out
}

// Cached runs Detect once and reuses the result. The one-time detection
// ignores cancellation of ctx since its result outlives the caller.
func (d *Detector) Cached(ctx context.Context) []types.Backend {
	d.once.Do(func() { d.cached = d.Detect(context.WithoutCancel(ctx)) })
	return append([]types.Backend(nil), d.cached...)
}

func (d *Detector) hasCUDA(ctx context.Context) bool {
	if d.probes.Run != nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		out, err := d.probes.Run(cctx, "nvidia-smi", "--list-gpus")
		cancel()
		if err == nil && strings.Contains(string(out), "GPU") {
			return true
		}
		if err != nil {
			d.log.Debug().Err(err).Msg("nvidia-smi probe failed")
		}
	}
	if d.probes.GPUVendors != nil {
		vendors, err := d.probes.GPUVendors()
		if err != nil {
			d.log.Debug().Err(err).Msg("gpu enumeration failed")
			return false
		}
		for _, v := range vendors {
			if strings.Contains(strings.ToLower(v), "nvidia") {
				return true
			}
		}
	}
	return false
}

var openVINOMarkers = map[string][]string{
	"windows": {`C:\Program Files\Intel\openvino`, `C:\Program Files (x86)\Intel\openvino`},
	"":        {"/usr/lib/libopenvino.so", "/opt/intel/openvino"},
}

func (d *Detector) hasOpenVINO() bool {
	if d.probes.Getenv != nil && d.probes.Getenv("INTEL_OPENVINO_DIR") != "" {
		return true
	}
	if d.probes.Exists != nil {
		markers := openVINOMarkers[""]
		if d.probes.GOOS == "windows" {
			markers = openVINOMarkers["windows"]
		}
		for _, p := range markers {
			if d.probes.Exists(p) {
				return true
			}
		}
	}
	if d.probes.CPUBrands != nil {
		brands, err := d.probes.CPUBrands()
		if err != nil {
			d.log.Debug().Err(err).Msg("cpu enumeration failed")
			return false
		}
		for _, b := range brands {
			if strings.Contains(strings.ToLower(b), "intel") {
				return true
			}
		}
	}
	return false
}

var qnnMarkers = []string{`C:\Windows\System32\QnnHtp.dll`, `C:\Windows\System32\QnnCpu.dll`}

func (d *Detector) hasQNN() bool {
	if d.probes.GOOS == "windows" && d.probes.GOARCH == "arm64" {
		return true
	}
	if d.probes.GOOS != "windows" || d.probes.Exists == nil {
		return false
	}
	for _, p := range qnnMarkers {
		if d.probes.Exists(p) {
			return true
		}
	}
	return false
}

// preferredAccelerators is the promotion order for prefer-accelerator loads.
var preferredAccelerators = []types.Backend{types.BackendOpenVINO, types.BackendQNN, types.BackendNNAPI}

// Accelerator returns the NPU-class backend to promote, if any was detected.
func Accelerator(detected []types.Backend) (types.Backend, bool) {
	for _, want := range preferredAccelerators {
		for _, b := range detected {
			if b == want {
				return b, true
			}
		}
	}
	return "", false
}

// HasAccelerator reports whether detected contains an NPU-class backend.
func HasAccelerator(detected []types.Backend) bool {
	_, ok := Accelerator(detected)
	return ok
}

func backendStrings(bs []types.Backend) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
