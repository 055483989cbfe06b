package manager

import (
	"fmt"
	"sort"
	"strings"

	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// maxProbeTokens caps the sequence a probe sends.
const maxProbeTokens = 512

// warmupTokens is the sequence probed at load time.
var warmupTokens = []int64{1, 1, 1, 1}

const (
	legacyIDsName  = "input_ids"
	legacyMaskName = "attention_mask"
)

// inspect introspects and probes a freshly committed session. A panic from
// the session is returned as a NativeCrash so the caller can close it and
// try the next backend.
func inspect(sess ort.Session, be types.Backend, ids []int64) (sig types.ModelSignature, pr types.ProbeResult, perr error, crash *LoadError) {
	defer func() {
		if r := recover(); r != nil {
			crash = newLoadError(types.KindNativeCrash, be, fmt.Sprintf("native panic during probe: %v", r), nil)
		}
	}()
	sig = Introspect(sess)
	pr, perr = Probe(sess, sig, ids)
	return sig, pr, perr, nil
}

// Probe tries input-name combinations against sess until one runs. The first
// accepted combination wins; outputs are not interpreted. It is idempotent
// for the same session and ids.
func Probe(sess ort.Session, sig types.ModelSignature, ids []int64) (types.ProbeResult, error) {
	if len(ids) == 0 {
		err := newLoadError(types.KindProbeFailed, "", "no input tokens to probe with", nil)
		return types.ProbeResult{Error: err.Msg}, err
	}
	if len(ids) > maxProbeTokens {
		ids = ids[:maxProbeTokens]
	}
	var res types.ProbeResult
	var lastErr error
	for _, names := range probeCombinations(sig) {
		res.Tried++
		if _, err := sess.Run(buildInputs(names, sig, ids)); err != nil {
			lastErr = err
			continue
		}
		res.Confirmed = true
		res.Inputs = names
		return res, nil
	}
	msg := "no known input naming convention was accepted"
	if lastErr != nil {
		msg += ": " + lastErr.Error()
	}
	err := newLoadError(types.KindProbeFailed, "", msg, lastErr)
	res.Error = err.Msg
	return res, err
}

// probeCombinations orders candidate input sets: declared ids x masks,
// declared ids alone, the legacy pair, legacy ids alone, then every declared
// input. Sets already seen in any order are skipped.
func probeCombinations(sig types.ModelSignature) [][]string {
	idNames := sig.Names(types.RoleIds)
	maskNames := sig.Names(types.RoleAttentionMask)

	var combos [][]string
	for _, id := range idNames {
		for _, mask := range maskNames {
			combos = append(combos, []string{id, mask})
		}
	}
	for _, id := range idNames {
		combos = append(combos, []string{id})
	}
	combos = append(combos, []string{legacyIDsName, legacyMaskName}, []string{legacyIDsName})
	if len(sig.Inputs) > 0 {
		all := make([]string, 0, len(sig.Inputs))
		for _, in := range sig.Inputs {
			all = append(all, in.Name)
		}
		combos = append(combos, all)
	}

	seen := make(map[string]bool, len(combos))
	out := combos[:0]
	for _, c := range combos {
		key := comboKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func comboKey(names []string) string {
	cp := append([]string(nil), names...)
	sort.Strings(cp)
	return strings.Join(cp, "\x00")
}

// buildInputs fills one tensor per name. Ids get the tokens, masks ones,
// positions 0..n-1 and everything else zeros, all shaped [1, n].
func buildInputs(names []string, sig types.ModelSignature, ids []int64) []ort.NamedTensor {
	n := len(ids)
	shape := []int64{1, int64(n)}
	roles := make(map[string]types.InputRole, len(sig.Inputs))
	for _, in := range sig.Inputs {
		roles[in.Name] = in.Role
	}
	out := make([]ort.NamedTensor, 0, len(names))
	for _, name := range names {
		role, ok := roles[name]
		if !ok {
			role = RoleOf(name)
		}
		data := make([]int64, n)
		switch role {
		case types.RoleIds:
			copy(data, ids)
		case types.RoleAttentionMask:
			for i := range data {
				data[i] = 1
			}
		case types.RolePositionIds:
			for i := range data {
				data[i] = int64(i)
			}
		}
		out = append(out, ort.NamedTensor{Name: name, Tensor: ort.Tensor{Shape: shape, Data: data}})
	}
	return out
}
