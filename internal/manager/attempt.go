package manager

import (
	"context"
	"fmt"
	"time"

	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// attempt runs one backend attempt inside a containment boundary. A native
// commit is not preemptible: on timeout the attempt is abandoned and its
// goroutine closes any session that commits late.
func (m *Manager) attempt(ctx context.Context, be types.Backend, modelPath string) (ort.Session, *LoadError) {
	if m.isolator != nil {
		if err := m.isolator.Check(ctx, be, modelPath); err != nil {
			return nil, classifyErr(phaseCommit, be, err)
		}
	}

	type result struct {
		sess ort.Session
		err  *LoadError
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := buildSession(m.runtime, be, modelPath)
		ch <- result{sess: sess, err: err}
	}()

	timer := time.NewTimer(m.attemptTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.sess, r.err
	case <-timer.C:
		go func() {
			if r := <-ch; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
		return nil, newLoadError(types.KindSessionBuildFailed, be,
			fmt.Sprintf("session build timed out after %s", m.attemptTimeout), context.DeadlineExceeded)
	}
}

// buildSession registers be on a fresh builder and commits modelPath.
// Panics are recovered and reported as NativeCrash.
func buildSession(rt ort.Runtime, be types.Backend, modelPath string) (sess ort.Session, lerr *LoadError) {
	defer func() {
		if r := recover(); r != nil {
			sess = nil
			lerr = panicError(be, r)
		}
	}()
	b, err := rt.NewBuilder()
	if err != nil {
		return nil, classifyErr(phaseRegister, be, err)
	}
	defer b.Close()
	if err := b.RegisterBackend(be); err != nil {
		return nil, classifyErr(phaseRegister, be, err)
	}
	sess, err = b.Commit(modelPath, ort.CommitOptions{
		OptimizationLevel: ort.OptAll,
		IntraOpThreads:    intraOpThreads(),
	})
	if err != nil {
		return nil, classifyErr(phaseCommit, be, err)
	}
	return sess, nil
}

// RunAttempt performs one in-process attempt and releases the session. The
// hidden `attempt` command runs it in a child process for isolation.
func RunAttempt(rt ort.Runtime, be types.Backend, modelPath string) error {
	if lerr := validatePath(modelPath); lerr != nil {
		return lerr
	}
	sess, lerr := buildSession(rt, be, modelPath)
	if lerr != nil {
		return lerr
	}
	return sess.Close()
}
