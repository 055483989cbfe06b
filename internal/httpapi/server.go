package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelhost/internal/manager"
	"modelhost/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Catalog() []types.RemoteModel
	Backends(ctx context.Context) []types.Backend
	Status() types.StatusResponse
	Ready() bool
	LoadModel(ctx context.Context, id string, cfg types.LoadConfig) (types.LoadOutcome, error)
	Generate(ctx context.Context, ids []int64) (manager.GenerateResult, error)
	Unload() error
	StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadStatus, error)
	DownloadStatus(id string) (types.DownloadStatus, bool)
	CancelDownload(id string) bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if mw := corsMiddleware(); mw != nil {
		r.Use(mw)
	}

	r.Group(func(r chi.Router) {
		r.Use(InflightMiddleware)

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels(), Catalog: svc.Catalog()})
		})

		r.Get("/backends", func(w http.ResponseWriter, r *http.Request) {
			resp := types.BackendsResponse{Detected: svc.Backends(r.Context())}
			for _, b := range resp.Detected {
				if b.IsAccelerator() {
					resp.Accelerator = true
				}
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})

		r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
			var req types.LoadRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			rl := newRequestLog(r, "load")
			rl.Start()
			ctx, cancel := requestContext(r.Context())
			defer cancel()
			out, err := svc.LoadModel(ctx, req.Model, req.LoadConfig)
			if err != nil {
				rl.End(writeServiceError(w, err), err)
				return
			}
			writeJSON(w, http.StatusOK, out)
			rl.End(http.StatusOK, nil)
		})

		r.Post("/infer", func(w http.ResponseWriter, r *http.Request) {
			var req types.InferRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if err := types.ValidateStruct(req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "tokens are required")
				return
			}
			rl := newRequestLog(r, "infer")
			rl.Start()
			ctx, cancel := requestContext(r.Context())
			defer cancel()
			res, err := svc.Generate(ctx, req.Tokens)
			if err != nil {
				// Client went away or the server is shutting down.
				if r.Context().Err() != nil || baseContext().Err() != nil {
					rl.End(499, err)
					return
				}
				rl.End(writeServiceError(w, err), err)
				return
			}
			if res.Response == nil {
				writeErrorResponse(w, types.ErrorResponse{
					Error:    res.Reason,
					Code:     http.StatusConflict,
					Kind:     types.KindProbeFailed,
					Hint:     types.KindProbeFailed.Hint(),
					Fallback: res.Fallback,
				})
				rl.End(http.StatusConflict, nil)
				return
			}
			writeJSON(w, http.StatusOK, res.Response)
			rl.End(http.StatusOK, nil)
		})

		r.Post("/unload", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.Unload(); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, svc.Status())
		})

		r.Post("/downloads", func(w http.ResponseWriter, r *http.Request) {
			var req types.DownloadRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if err := types.ValidateStruct(req); err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			// Downloads outlive the request and stop with the server.
			st, err := svc.StartDownload(baseContext(), req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, st)
		})

		r.Get("/downloads/{id}", func(w http.ResponseWriter, r *http.Request) {
			st, ok := svc.DownloadStatus(chi.URLParam(r, "id"))
			if !ok {
				writeJSONError(w, http.StatusNotFound, "download not found")
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Delete("/downloads/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if !svc.CancelDownload(id) {
				writeJSONError(w, http.StatusNotFound, "download not found")
				return
			}
			st, _ := svc.DownloadStatus(id)
			writeJSON(w, http.StatusOK, st)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSON enforces the content type and body limit. It writes the error
// response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps err and returns the status written.
func writeServiceError(w http.ResponseWriter, err error) int {
	resp := errorResponse(err)
	if resp.Code == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeErrorResponse(w, resp)
	return resp.Code
}
