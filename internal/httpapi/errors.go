package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"modelhost/internal/manager"
	"modelhost/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeErrorResponse(w, types.ErrorResponse{Error: msg, Code: status})
}

func writeErrorResponse(w http.ResponseWriter, resp types.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(resp)
}

// errorResponse maps service errors onto status codes:
// validation 400, missing model 404, load in progress 409, busy 429,
// unsupported model or unconfirmed inputs 422, runtime failures 503.
func errorResponse(err error) types.ErrorResponse {
	resp := types.ErrorResponse{Error: err.Error(), Code: http.StatusInternalServerError}
	if le, ok := manager.AsLoadError(err); ok {
		resp.Kind = le.Kind
		resp.Hint = le.Hint()
		resp.Code = loadErrorStatus(le.Kind)
	}
	var he HTTPError
	switch {
	case manager.IsInvalidRequest(err):
		resp.Code = http.StatusBadRequest
	case manager.IsModelNotFound(err):
		resp.Code = http.StatusNotFound
	case errors.Is(err, manager.ErrLoadInProgress):
		resp.Code = http.StatusConflict
	case manager.IsTooBusy(err):
		resp.Code = http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err), errors.Is(err, manager.ErrNotLoaded), errors.Is(err, manager.ErrClosed):
		resp.Code = http.StatusServiceUnavailable
	case errors.Is(err, manager.ErrEmptyInput):
		resp.Code = http.StatusBadRequest
	case errors.As(err, &he):
		resp.Code = he.StatusCode()
	}
	return resp
}

func loadErrorStatus(k types.LoadErrorKind) int {
	switch k {
	case types.KindEmptyPath, types.KindFileMissing, types.KindNotOnnxFile:
		return http.StatusBadRequest
	case types.KindModelUnsupported, types.KindProbeFailed:
		return http.StatusUnprocessableEntity
	case types.KindBackendRegistrationFailed, types.KindSessionBuildFailed,
		types.KindVersionIncompatibility, types.KindNativeCrash, types.KindIo:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
