package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gamepulse/churn-backend/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps the error taxonomy onto HTTP statuses. Missing
// or unreadable artifacts are a deployment problem, so they surface as
// 503 rather than 500.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, domain.ErrDataUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "data_unavailable", err)
	case errors.Is(err, domain.ErrArtifactMissing):
		RespondError(c, http.StatusServiceUnavailable, "artifact_missing", err)
	case errors.Is(err, domain.ErrArtifactCorrupt):
		RespondError(c, http.StatusServiceUnavailable, "artifact_corrupt", err)
	case errors.Is(err, domain.ErrSchemaMismatch):
		RespondError(c, http.StatusInternalServerError, "schema_mismatch", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
