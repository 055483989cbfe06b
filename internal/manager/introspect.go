package manager

import (
	"strings"

	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// Introspect lists the session's inputs with inferred roles.
func Introspect(sess ort.Session) types.ModelSignature {
	names := sess.Inputs()
	sig := types.ModelSignature{Inputs: make([]types.InputDescriptor, 0, len(names))}
	for _, n := range names {
		sig.Inputs = append(sig.Inputs, types.InputDescriptor{Name: n, Role: RoleOf(n)})
	}
	return sig
}

// RoleOf infers an input's role from its name, case-insensitively.
func RoleOf(name string) types.InputRole {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "input_ids") || n == "input" || strings.Contains(n, "tokens"):
		return types.RoleIds
	case strings.Contains(n, "attention_mask") || n == "mask":
		return types.RoleAttentionMask
	case strings.Contains(n, "token_type"):
		return types.RoleTokenTypeIds
	case strings.Contains(n, "position"):
		return types.RolePositionIds
	default:
		return types.RoleUnknown
	}
}
