package manager

import (
	"reflect"
	"testing"

	"modelhost/pkg/types"
)

func boolPtr(b bool) *bool { return &b }

func TestCandidates_Order(t *testing.T) {
	cpu := []types.Backend{types.BackendCPU}
	cases := []struct {
		name     string
		cfg      types.LoadConfig
		detected []types.Backend
		want     []types.Backend
	}{
		{
			name: "cpu requested keeps fallback remainder",
			cfg:  types.LoadConfig{Backend: types.BackendCPU},
			want: []types.Backend{types.BackendCPU, types.BackendCUDA, types.BackendDirectML, types.BackendOpenVINO, types.BackendCoreML},
		},
		{
			name: "cuda requested",
			cfg:  types.LoadConfig{Backend: types.BackendCUDA},
			want: []types.Backend{types.BackendCUDA, types.BackendDirectML, types.BackendOpenVINO, types.BackendCoreML, types.BackendCPU},
		},
		{
			name: "fallback disabled appends cpu",
			cfg:  types.LoadConfig{Backend: types.BackendCUDA, EnableFallback: boolPtr(false)},
			want: []types.Backend{types.BackendCUDA, types.BackendCPU},
		},
		{
			name:     "accelerator promoted ahead of request",
			cfg:      types.LoadConfig{Backend: types.BackendCUDA, PreferAccelerator: true},
			detected: []types.Backend{types.BackendCPU, types.BackendOpenVINO},
			want:     []types.Backend{types.BackendOpenVINO, types.BackendCUDA, types.BackendDirectML, types.BackendCoreML, types.BackendCPU},
		},
		{
			name:     "prefer accelerator without one detected",
			cfg:      types.LoadConfig{Backend: types.BackendCPU, PreferAccelerator: true, EnableFallback: boolPtr(false)},
			detected: cpu,
			want:     []types.Backend{types.BackendCPU},
		},
		{
			name: "qnn only when requested",
			cfg:  types.LoadConfig{Backend: types.BackendQNN, EnableFallback: boolPtr(false)},
			want: []types.Backend{types.BackendQNN, types.BackendCPU},
		},
		{
			name: "empty backend means cpu",
			cfg:  types.LoadConfig{EnableFallback: boolPtr(false)},
			want: []types.Backend{types.BackendCPU},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := candidates(c.cfg, c.detected); !reflect.DeepEqual(got, c.want) {
				t.Fatalf("candidates = %v, want %v", got, c.want)
			}
		})
	}
}

func TestCandidates_AlwaysContainCPUWithoutDuplicates(t *testing.T) {
	for _, be := range types.AllBackends {
		for _, fb := range []bool{true, false} {
			for _, prefer := range []bool{true, false} {
				cfg := types.LoadConfig{Backend: be, EnableFallback: boolPtr(fb), PreferAccelerator: prefer}
				got := candidates(cfg, types.AllBackends)
				if len(got) == 0 {
					t.Fatalf("empty list for %+v", cfg)
				}
				seen := map[types.Backend]bool{}
				for _, b := range got {
					if seen[b] {
						t.Fatalf("duplicate %s in %v", b, got)
					}
					seen[b] = true
				}
				if !seen[types.BackendCPU] {
					t.Fatalf("cpu missing from %v", got)
				}
			}
		}
	}
}
