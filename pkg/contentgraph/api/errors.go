package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	switch contentgraph.KindOf(err) {
	case contentgraph.KindNotFound:
		return http.StatusNotFound
	case contentgraph.KindInvalid:
		return http.StatusBadRequest
	case contentgraph.KindContextCancelled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case contentgraph.KindBlob, contentgraph.KindPartialFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, "error", err, "kind", contentgraph.KindOf(err))
	} else {
		logger.InfoContext(r.Context(), msg, "error", err, "kind", contentgraph.KindOf(err))
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error(), Kind: string(contentgraph.KindOf(err))})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg, Kind: string(contentgraph.KindInvalid)})
}
