package manager

import (
	"testing"

	"modelhost/internal/ort/orttest"
	"modelhost/pkg/types"
)

func TestRoleOf(t *testing.T) {
	cases := map[string]types.InputRole{
		"input_ids":             types.RoleIds,
		"Input_IDs":             types.RoleIds,
		"encoder_input_ids":     types.RoleIds,
		"input":                 types.RoleIds,
		"tokens":                types.RoleIds,
		"attention_mask":        types.RoleAttentionMask,
		"MASK":                  types.RoleAttentionMask,
		"token_type_ids":        types.RoleTokenTypeIds,
		"position_ids":          types.RolePositionIds,
		"past_key_values.0.key": types.RoleUnknown,
		"pixel_values":          types.RoleUnknown,
	}
	for name, want := range cases {
		if got := RoleOf(name); got != want {
			t.Errorf("RoleOf(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestIntrospect_KeepsDeclarationOrder(t *testing.T) {
	rt := orttest.New("attention_mask", "input_ids", "position_ids")
	b, _ := rt.NewBuilder()
	sess, err := b.Commit("m.onnx", ortDefaults())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	sig := Introspect(sess)
	want := []types.InputDescriptor{
		{Name: "attention_mask", Role: types.RoleAttentionMask},
		{Name: "input_ids", Role: types.RoleIds},
		{Name: "position_ids", Role: types.RolePositionIds},
	}
	if len(sig.Inputs) != len(want) {
		t.Fatalf("inputs = %+v", sig.Inputs)
	}
	for i := range want {
		if sig.Inputs[i] != want[i] {
			t.Fatalf("input %d = %+v, want %+v", i, sig.Inputs[i], want[i])
		}
	}
	if ids := sig.Names(types.RoleIds); len(ids) != 1 || ids[0] != "input_ids" {
		t.Fatalf("ids names = %v", ids)
	}
}
