package orttest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

func ids(n int) ort.NamedTensor {
	return ort.NamedTensor{Name: "input_ids", Tensor: ort.Tensor{Shape: []int64{1, int64(n)}, Data: make([]int64, n)}}
}

func TestCommitRecordsAndScriptedFailures(t *testing.T) {
	rt := New("input_ids")
	rt.CommitErr = map[types.Backend]error{types.BackendCUDA: errors.New("CUDA driver version is insufficient")}

	b, err := rt.NewBuilder()
	require.NoError(t, err)
	require.NoError(t, b.RegisterBackend(types.BackendCUDA))
	_, err = b.Commit("/m.onnx", ort.CommitOptions{OptimizationLevel: ort.OptAll})
	require.Error(t, err)

	b, err = rt.NewBuilder()
	require.NoError(t, err)
	s, err := b.Commit("/m.onnx", ort.CommitOptions{})
	require.NoError(t, err)

	commits := rt.Commits()
	require.Len(t, commits, 2)
	assert.Equal(t, []types.Backend{types.BackendCUDA}, commits[0].Backends)
	assert.Empty(t, commits[1].Backends)
	assert.Equal(t, types.BackendCPU, s.(*Session).Backend)
	assert.Equal(t, 2, rt.Builders())
}

func TestRunAcceptsDeclaredInputsByDefault(t *testing.T) {
	rt := New("input_ids")
	b, _ := rt.NewBuilder()
	s, err := b.Commit("/m.onnx", ort.CommitOptions{})
	require.NoError(t, err)

	out, err := s.Run([]ort.NamedTensor{ids(3)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int64{1, 3}, out[0].Shape)

	_, err = s.Run([]ort.NamedTensor{ids(3), {Name: "attention_mask"}})
	assert.Error(t, err)
	assert.Len(t, s.(*Session).Runs(), 2)

	require.NoError(t, s.Close())
	assert.True(t, s.(*Session).Closed())
	_, err = s.Run([]ort.NamedTensor{ids(3)})
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	rt := New()
	rt.Unavailable = ort.ErrUnavailable
	assert.ErrorIs(t, rt.Available(), ort.ErrUnavailable)
	_, err := rt.NewBuilder()
	assert.ErrorIs(t, err, ort.ErrUnavailable)
}

func TestCommitPanic(t *testing.T) {
	rt := New("input_ids")
	rt.CommitPanic = map[types.Backend]any{types.BackendDirectML: "access violation"}
	b, _ := rt.NewBuilder()
	require.NoError(t, b.RegisterBackend(types.BackendDirectML))
	assert.PanicsWithValue(t, "access violation", func() { _, _ = b.Commit("/m.onnx", ort.CommitOptions{}) })
}
