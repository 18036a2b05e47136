package api

import (
	"net/http"

	"aarambh-client/internal/codelab"
	"aarambh-client/internal/notify"
	"aarambh-client/pkg/errors"

	"github.com/gin-gonic/gin"
)

// statusOf maps a client-side failure onto the agent's response status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrSubmitInFlight),
		errors.Is(err, errors.ErrDuplicateSubmit),
		errors.Is(err, errors.ErrSubmissionClosed),
		errors.Is(err, codelab.ErrExecuting):
		return http.StatusConflict
	case errors.Is(err, errors.ErrDialogClosed):
		return http.StatusGone
	case errors.Is(err, errors.ErrNotAuthenticated), errors.Is(err, errors.ErrSessionExpired):
		return http.StatusUnauthorized
	}

	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	case errors.KindRateLimit:
		return http.StatusTooManyRequests
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error, fallback string, toasts ...notify.Toast) {
	body := gin.H{
		"error": errors.MessageOf(err, fallback),
		"kind":  errors.KindOf(err).String(),
	}
	if len(toasts) > 0 {
		body["toasts"] = toasts
	}
	c.JSON(statusOf(err), body)
}
