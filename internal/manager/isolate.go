package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelhost/pkg/types"
)

// Isolator pre-flights an attempt outside the current process. A nil error
// means the in-process attempt may proceed.
type Isolator interface {
	Check(ctx context.Context, be types.Backend, modelPath string) error
}

// attemptFailurePrefix marks the diagnostic line a child attempt writes to stderr.
const attemptFailurePrefix = "attempt-failed: "

// stderrTail bounds how much child stderr is kept.
const stderrTail = 4096

// ProcessIsolator runs Command plus `--backend <b> --model <path>` and reads
// the outcome from its exit status.
type ProcessIsolator struct {
	// Command is the argv prefix, typically {os.Executable(), "attempt"}.
	Command []string
	// Timeout kills a hung child. Zero leaves the caller's context in charge.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

func (p *ProcessIsolator) Check(ctx context.Context, be types.Backend, modelPath string) error {
	if len(p.Command) == 0 {
		return errors.New("process isolator: empty command")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	args := append(append([]string(nil), p.Command[1:]...), "--backend", string(be), "--model", modelPath)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	start := time.Now()
	err := cmd.Run()
	if p.Logger != nil {
		p.Logger.Debug().Str("backend", string(be)).Dur("dur", time.Since(start)).Err(err).Msg("event=isolated_attempt")
	}
	if err == nil {
		return nil
	}
	tail := stderr.Bytes()
	if len(tail) > stderrTail {
		tail = tail[len(tail)-stderrTail:]
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return newLoadError(types.KindIo, be, "start isolated attempt: "+err.Error(), err)
	}
	if ctx.Err() != nil {
		return newLoadError(types.KindSessionBuildFailed, be, "isolated attempt timed out", ctx.Err())
	}
	if ee.ExitCode() == -1 {
		return newLoadError(types.KindNativeCrash, be, fmt.Sprintf("isolated attempt killed: %s", ee.String()), err)
	}
	if le := ParseAttemptFailure(string(tail), be); le != nil {
		return le
	}
	return newLoadError(types.KindNativeCrash, be,
		fmt.Sprintf("isolated attempt exited with code %d without a diagnostic", ee.ExitCode()), err)
}

// FormatAttemptFailure renders err as the child's diagnostic line.
func FormatAttemptFailure(err error) string {
	kind := types.KindUnknown
	msg := err.Error()
	if le, ok := AsLoadError(err); ok {
		kind, msg = le.Kind, le.Msg
	}
	return attemptFailurePrefix + string(kind) + ": " + strings.ReplaceAll(msg, "\n", " ")
}

// ParseAttemptFailure finds the last diagnostic line in child stderr.
func ParseAttemptFailure(stderr string, be types.Backend) *LoadError {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		idx := strings.Index(line, attemptFailurePrefix)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(attemptFailurePrefix):]
		kind, msg, ok := strings.Cut(rest, ": ")
		if !ok || msg == "" || !types.LoadErrorKind(kind).Valid() {
			return newLoadError(classify(phaseCommit, rest), be, rest, nil)
		}
		return newLoadError(types.LoadErrorKind(kind), be, msg, nil)
	}
	return nil
}
