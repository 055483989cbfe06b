package manager

import (
	"errors"
	"reflect"
	"testing"

	"modelhost/internal/ort"
	"modelhost/internal/ort/orttest"
	"modelhost/pkg/types"
)

func commitFake(t *testing.T, rt *orttest.Runtime) *orttest.Session {
	t.Helper()
	b, err := rt.NewBuilder()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	sess, err := b.Commit("m.onnx", ortDefaults())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return sess.(*orttest.Session)
}

// Scenario A: a model declaring the legacy pair accepts it on the first try.
func TestProbe_LegacyPairAccepted(t *testing.T) {
	rt := orttest.New("input_ids", "attention_mask")
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), []int64{101, 2023, 102})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.Confirmed || res.Tried != 1 || !reflect.DeepEqual(res.Inputs, []string{"input_ids", "attention_mask"}) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProbe_IdsOnlyModel(t *testing.T) {
	rt := orttest.New("input_ids", "attention_mask")
	rt.Accept = orttest.AcceptExactly("input_ids")
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), []int64{1, 2})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if res.Tried != 2 || !reflect.DeepEqual(res.Inputs, []string{"input_ids"}) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProbe_DeclaredNamesBeforeLegacy(t *testing.T) {
	rt := orttest.New("tokens", "mask")
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), []int64{5})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !reflect.DeepEqual(res.Inputs, []string{"tokens", "mask"}) {
		t.Fatalf("inputs = %v", res.Inputs)
	}
}

func TestProbe_AllDeclaredInputsLast(t *testing.T) {
	rt := orttest.New("input_ids", "attention_mask", "token_type_ids")
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	// pair, ids alone, then everything; the legacy combinations are duplicates.
	if res.Tried != 3 || len(res.Inputs) != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	runs := sess.Runs()
	if len(runs) != 3 {
		t.Fatalf("runs = %v", runs)
	}
}

func TestProbe_EmptyIdsMakesNoRuntimeCalls(t *testing.T) {
	rt := orttest.New("input_ids")
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), nil)
	if !IsProbeFailure(err) {
		t.Fatalf("expected probe failure, got %v", err)
	}
	if res.Confirmed || len(sess.Runs()) != 0 {
		t.Fatalf("expected no runs, got %v", sess.Runs())
	}
}

func TestProbe_ExhaustionIsProbeFailed(t *testing.T) {
	rt := orttest.New("pixel_values")
	rt.Accept = func([]string) error { return errors.New("invalid input name") }
	sess := commitFake(t, rt)
	res, err := Probe(sess, Introspect(sess), []int64{1})
	if !IsProbeFailure(err) {
		t.Fatalf("expected probe failure, got %v", err)
	}
	le, _ := AsLoadError(err)
	if le.Msg == "" || res.Error == "" || res.Tried != 3 {
		t.Fatalf("unexpected: %+v %+v", le, res)
	}
}

func TestProbe_Idempotent(t *testing.T) {
	rt := orttest.New("input_ids", "attention_mask", "position_ids")
	rt.Accept = orttest.AcceptExactly("input_ids", "attention_mask", "position_ids")
	sess := commitFake(t, rt)
	sig := Introspect(sess)
	ids := []int64{7, 8, 9}
	a, errA := Probe(sess, sig, ids)
	b, errB := Probe(sess, sig, ids)
	if errA != nil || errB != nil {
		t.Fatalf("probe errors: %v %v", errA, errB)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("probe not idempotent: %+v vs %+v", a, b)
	}
}

// tensorSession records the tensors of the last Run.
type tensorSession struct {
	inputs []string
	last   []ort.NamedTensor
}

func (s *tensorSession) Inputs() []string  { return s.inputs }
func (s *tensorSession) Outputs() []string { return []string{"logits"} }
func (s *tensorSession) Run(in []ort.NamedTensor) ([]types.OutputTensor, error) {
	s.last = in
	return nil, nil
}
func (s *tensorSession) Close() error { return nil }

func TestProbe_TensorShapesAndTruncation(t *testing.T) {
	sess := &tensorSession{inputs: []string{"input_ids", "attention_mask"}}
	ids := make([]int64, 600)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, err := Probe(sess, Introspect(sess), ids); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if len(sess.last) != 2 {
		t.Fatalf("tensors = %d", len(sess.last))
	}
	for _, nt := range sess.last {
		if !reflect.DeepEqual(nt.Tensor.Shape, []int64{1, maxProbeTokens}) || len(nt.Tensor.Data) != maxProbeTokens {
			t.Fatalf("%s shape = %v len %d", nt.Name, nt.Tensor.Shape, len(nt.Tensor.Data))
		}
	}
	if sess.last[0].Tensor.Data[0] != 1 || sess.last[0].Tensor.Data[511] != 512 {
		t.Fatalf("ids not truncated to the first tokens")
	}
	for _, v := range sess.last[1].Tensor.Data {
		if v != 1 {
			t.Fatalf("mask must be all ones")
		}
	}
}

func TestBuildInputs_Fillers(t *testing.T) {
	sig := types.ModelSignature{Inputs: []types.InputDescriptor{
		{Name: "input_ids", Role: types.RoleIds},
		{Name: "token_type_ids", Role: types.RoleTokenTypeIds},
		{Name: "position_ids", Role: types.RolePositionIds},
	}}
	got := buildInputs([]string{"input_ids", "token_type_ids", "position_ids"}, sig, []int64{4, 5, 6})
	if !reflect.DeepEqual(got[0].Tensor.Data, []int64{4, 5, 6}) ||
		!reflect.DeepEqual(got[1].Tensor.Data, []int64{0, 0, 0}) ||
		!reflect.DeepEqual(got[2].Tensor.Data, []int64{0, 1, 2}) {
		t.Fatalf("unexpected fill: %+v", got)
	}
}
