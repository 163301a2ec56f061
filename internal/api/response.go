package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/services"
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
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError maps a ServiceError onto its status. Anything else is logged
// and surfaces as a generic 500 so store details never reach the client.
func respondServiceError(c *gin.Context, log *logger.Logger, err error) {
	if se, ok := services.AsServiceError(err); ok {
		RespondError(c, statusFor(se.Code), string(se.Code), se)
		return
	}
	log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
}
