// Package handler holds the Echo HTTP handlers of the portal API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/service"
)

// requestTimeout bounds the storage and upstream work of one request.
const requestTimeout = 10 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusFor maps a service error kind onto the HTTP status the API uses.
// Login failures and lookups of missing records are client errors (400).
func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindNotFound, service.KindConflict, service.KindAuthentication:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": msg}.  Unclassified errors are logged
// and replaced by a generic message.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status := statusFor(service.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("route", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		msg = "internal server error"
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
