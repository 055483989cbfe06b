//go:build onnx

package ort

import (
	"strings"
	"testing"

	"modelhost/pkg/types"
)

var (
	_ Runtime = (*onnxRuntime)(nil)
	_ Builder = (*onnxBuilder)(nil)
	_ Session = (*onnxSession)(nil)
)

func TestRegisterBackend_UnboundProviders(t *testing.T) {
	b := &onnxBuilder{}
	for _, be := range []types.Backend{types.BackendQNN, types.BackendNNAPI} {
		err := b.RegisterBackend(be)
		if err == nil || !strings.Contains(err.Error(), "not exposed") {
			t.Fatalf("%s: err = %v", be, err)
		}
	}
}

func TestRegisterBackend_AfterCommit(t *testing.T) {
	b := &onnxBuilder{}
	if err := b.RegisterBackend(types.BackendCPU); err == nil {
		t.Fatalf("expected error on a committed builder")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestGraphLevel(t *testing.T) {
	if graphLevel(OptDisabled) == graphLevel(OptAll) {
		t.Fatalf("levels should differ")
	}
}

func TestBuilt(t *testing.T) {
	if !Built() || New("").Name() != "onnxruntime" {
		t.Fatalf("expected the real runtime")
	}
}
