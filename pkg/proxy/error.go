package proxy

import (
	"log/slog"
	"net/http"

	"github.com/backchannelauth/ciba/pkg/ciba"
	httphelper "github.com/backchannelauth/ciba/pkg/http"
)

// WriteError renders err as a structured protocol error body. Polling
// outcomes (authorization_pending, slow_down, ...) are expected client
// behavior and logged at info; everything else signals a bad request or a
// malfunctioning server.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	e := ciba.DefaultToServerError(err, err.Error())

	switch {
	case e.ErrorType == ciba.ServerError:
		logger.ErrorContext(r.Context(), "request error", "error", e)
	case e.IsPollingOutcome():
		logger.InfoContext(r.Context(), "polling outcome", "error", e)
	default:
		logger.WarnContext(r.Context(), "request error", "error", e)
	}

	httphelper.MarshalJSONWithStatus(w, e, statusOf(e))
}

func statusOf(e *ciba.Error) int {
	switch e.ErrorType {
	case ciba.ServerError:
		return http.StatusInternalServerError
	case ciba.InvalidClient:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
