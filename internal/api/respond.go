// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/reolink"
	"github.com/reovod/reovod/internal/vod"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Error:     msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeDomainError maps service and device errors onto HTTP status codes.
// Device-side failures surface as gateway errors since the daemon proxies
// the camera.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vod.ErrUnknownChannel), errors.Is(err, reolink.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, reolink.ErrAuth):
		writeError(w, r, http.StatusBadGateway, "camera rejected credentials")
	case errors.Is(err, reolink.ErrUpstreamUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "camera unreachable")
	case errors.Is(err, reolink.ErrTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "camera timed out")
	case errors.Is(err, reolink.ErrBadResponse), errors.Is(err, reolink.ErrUpstreamError):
		writeError(w, r, http.StatusBadGateway, "camera error")
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldPath, r.URL.Path).Msg("unhandled error")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
