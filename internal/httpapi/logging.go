package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// parseLevel maps a per-request level name to zerolog. "off" and empty
// disable request logs; unknown names mean info.
func parseLevel(s string) zerolog.Level {
	switch s {
	case "off", "":
		return zerolog.Disabled
	case "1":
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// defaultLogLevel is read once from MODELHOST_HTTP_LOG.
var defaultLogLevel = parseLevel(os.Getenv("MODELHOST_HTTP_LOG"))

// requestLogLevel honors ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLog emits start/end lines for one handler at the request's level.
type requestLog struct {
	r     *http.Request
	op    string
	level zerolog.Level
	start time.Time
}

func newRequestLog(r *http.Request, op string) *requestLog {
	return &requestLog{r: r, op: op, level: requestLogLevel(r), start: time.Now()}
}

func (l *requestLog) event(lvl zerolog.Level) *zerolog.Event {
	if l.level == zerolog.Disabled || lvl < l.level {
		return nil
	}
	e := zlog.WithLevel(lvl).Str("op", l.op).Str("path", l.r.URL.Path)
	if rid := middleware.GetReqID(l.r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

func (l *requestLog) Start() {
	if e := l.event(zerolog.InfoLevel); e != nil {
		e.Msg(l.op + " start")
	}
}

func (l *requestLog) End(status int, err error) {
	lvl := zerolog.InfoLevel
	if status >= 500 {
		lvl = zerolog.ErrorLevel
	}
	if e := l.event(lvl); e != nil {
		e.Int("status", status).Dur("dur", time.Since(l.start)).Err(err).Msg(l.op + " end")
	}
}
