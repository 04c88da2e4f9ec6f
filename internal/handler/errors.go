package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// statusFor maps a domain error kind to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, domain.ErrZoneBlocked) {
		return http.StatusForbidden
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAdmissionDenied, domain.KindStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		response.InternalError(c, err)
		return
	}

	var de *domain.Error
	errors.As(err, &de)
	response.Error(c, status, de.Code, de.Message, "")
}

// fail records err on span and writes the error response
func fail(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	handleError(c, err)
}
