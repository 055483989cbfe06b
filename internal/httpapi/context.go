package httpapi

import (
	"context"
	"sync"
	"time"
)

// serverBaseCtx is a process-level context canceled on shutdown. Background
// downloads started over HTTP live as long as it does.
var (
	baseMu        sync.RWMutex
	serverBaseCtx = context.Background()
)

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseMu.Lock()
	serverBaseCtx = ctx
	baseMu.Unlock()
}

func baseContext() context.Context {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return serverBaseCtx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// requestContext joins the base and request contexts and applies inferTimeout.
func requestContext(reqCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(baseContext(), reqCtx)
	if inferTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
