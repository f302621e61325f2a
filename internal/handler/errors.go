package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/field-service/internal/errs"
)

// statusOf сопоставляет доменную ошибку HTTP-статусу.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound), errors.Is(err, errs.ErrSessionNotFound):
		return http.StatusNotFound
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsGeneration(err), errs.IsRetrieval(err), errors.Is(err, errs.ErrLLMDisabled):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
