package manager

import (
	"fmt"
	"regexp"
	"strings"

	"modelhost/pkg/types"
)

// phase identifies where in an attempt a failure happened.
type phase int

const (
	phaseRegister phase = iota
	phaseCommit
)

var versionPattern = regexp.MustCompile(`\b\d+\.\d+(\.\d+)?\b`)

// classify maps a failure message onto the closed kind taxonomy. The mapping
// is advisory: it guides hints, never control flow.
func classify(p phase, msg string) types.LoadErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "panic") || strings.Contains(lower, "crash"):
		return types.KindNativeCrash
	case strings.Contains(lower, "version") || versionPattern.MatchString(lower):
		return types.KindVersionIncompatibility
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no such file"):
		return types.KindIo
	case strings.Contains(lower, "unsupported") || strings.Contains(lower, "not implemented"):
		return types.KindModelUnsupported
	case p == phaseRegister:
		return types.KindBackendRegistrationFailed
	default:
		return types.KindSessionBuildFailed
	}
}

func classifyErr(p phase, be types.Backend, err error) *LoadError {
	if le, ok := AsLoadError(err); ok {
		return le
	}
	return newLoadError(classify(p, err.Error()), be, err.Error(), err)
}

// panicError converts a recovered value into a NativeCrash.
func panicError(be types.Backend, v any) *LoadError {
	return newLoadError(types.KindNativeCrash, be, fmt.Sprintf("native panic during session build: %v", v), nil)
}
