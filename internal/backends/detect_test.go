package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelhost/pkg/types"
)

// bareProbes reports a plain machine with no accelerators.
func bareProbes(goos, goarch string) Probes {
	return Probes{
		GOOS:   goos,
		GOARCH: goarch,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("executable file not found in $PATH")
		},
		Getenv:     func(string) string { return "" },
		Exists:     func(string) bool { return false },
		CPUBrands:  func() ([]string, error) { return []string{"AuthenticAMD Ryzen 7"}, nil },
		GPUVendors: func() ([]string, error) { return nil, nil },
	}
}

func TestDetect_CPUOnly(t *testing.T) {
	d := NewDetector(WithProbes(bareProbes("linux", "amd64")))
	got := d.Detect(context.Background())
	assert.Equal(t, []types.Backend{types.BackendCPU}, got)
	assert.False(t, HasAccelerator(got))
}

func TestDetect_PlatformBackends(t *testing.T) {
	cases := []struct {
		goos, goarch string
		want         []types.Backend
	}{
		{"windows", "amd64", []types.Backend{types.BackendCPU, types.BackendDirectML}},
		{"darwin", "arm64", []types.Backend{types.BackendCPU, types.BackendCoreML}},
		{"android", "arm64", []types.Backend{types.BackendCPU, types.BackendNNAPI}},
		{"windows", "arm64", []types.Backend{types.BackendCPU, types.BackendDirectML, types.BackendQNN}},
	}
	for _, c := range cases {
		t.Run(c.goos+"/"+c.goarch, func(t *testing.T) {
			got := NewDetector(WithProbes(bareProbes(c.goos, c.goarch))).Detect(context.Background())
			assert.Equal(t, c.want, got)
		})
	}
}

func TestDetect_CUDAViaNvidiaSMI(t *testing.T) {
	p := bareProbes("linux", "amd64")
	var gotArgs []string
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("GPU 0: NVIDIA GeForce RTX 4090 (UUID: GPU-123)\n"), nil
	}
	got := NewDetector(WithProbes(p)).Detect(context.Background())
	assert.Contains(t, got, types.BackendCUDA)
	assert.Equal(t, []string{"nvidia-smi", "--list-gpus"}, gotArgs)
}

func TestDetect_CUDAViaGPUVendor(t *testing.T) {
	p := bareProbes("linux", "amd64")
	p.GPUVendors = func() ([]string, error) { return []string{"NVIDIA Corporation"}, nil }
	got := NewDetector(WithProbes(p)).Detect(context.Background())
	assert.Contains(t, got, types.BackendCUDA)
}

func TestDetect_OpenVINO(t *testing.T) {
	t.Run("intel cpu", func(t *testing.T) {
		p := bareProbes("linux", "amd64")
		p.CPUBrands = func() ([]string, error) { return []string{"GenuineIntel Core i7"}, nil }
		got := NewDetector(WithProbes(p)).Detect(context.Background())
		assert.Contains(t, got, types.BackendOpenVINO)
		acc, ok := Accelerator(got)
		require.True(t, ok)
		assert.Equal(t, types.BackendOpenVINO, acc)
	})
	t.Run("env marker", func(t *testing.T) {
		p := bareProbes("linux", "amd64")
		p.Getenv = func(k string) string {
			if k == "INTEL_OPENVINO_DIR" {
				return "/opt/intel/openvino_2024"
			}
			return ""
		}
		assert.Contains(t, NewDetector(WithProbes(p)).Detect(context.Background()), types.BackendOpenVINO)
	})
	t.Run("library marker", func(t *testing.T) {
		p := bareProbes("linux", "amd64")
		p.Exists = func(path string) bool { return path == "/usr/lib/libopenvino.so" }
		assert.Contains(t, NewDetector(WithProbes(p)).Detect(context.Background()), types.BackendOpenVINO)
	})
}

func TestDetect_QNNDLLMarker(t *testing.T) {
	p := bareProbes("windows", "amd64")
	p.Exists = func(path string) bool { return path == `C:\Windows\System32\QnnHtp.dll` }
	got := NewDetector(WithProbes(p)).Detect(context.Background())
	assert.Contains(t, got, types.BackendQNN)
}

func TestDetect_ProbeErrorsDropOnlyTheirBackend(t *testing.T) {
	p := bareProbes("darwin", "arm64")
	p.CPUBrands = func() ([]string, error) { return nil, errors.New("no /proc") }
	p.GPUVendors = func() ([]string, error) { return nil, errors.New("no pci") }
	got := NewDetector(WithProbes(p)).Detect(context.Background())
	assert.Equal(t, []types.Backend{types.BackendCPU, types.BackendCoreML}, got)
}

func TestCached(t *testing.T) {
	calls := 0
	p := bareProbes("linux", "amd64")
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls++
		return nil, errors.New("missing")
	}
	d := NewDetector(WithProbes(p))
	_ = d.Cached(context.Background())
	_ = d.Cached(context.Background())
	assert.Equal(t, 1, calls)
}

func TestCached_IgnoresCancelledCaller(t *testing.T) {
	p := bareProbes("linux", "amd64")
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("GPU 0: NVIDIA A100\n"), nil
	}
	d := NewDetector(WithProbes(p))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Contains(t, d.Cached(ctx), types.BackendCUDA)
	assert.Contains(t, d.Cached(context.Background()), types.BackendCUDA)
}

func TestAccelerator_PromotionOrder(t *testing.T) {
	acc, ok := Accelerator([]types.Backend{types.BackendCPU, types.BackendQNN, types.BackendOpenVINO})
	require.True(t, ok)
	assert.Equal(t, types.BackendOpenVINO, acc)
	_, ok = Accelerator([]types.Backend{types.BackendCPU, types.BackendCUDA})
	assert.False(t, ok)
}
