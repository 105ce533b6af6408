package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// callerID identifies the authenticated caller for rate limit keys:
// user:<id>, service:<id>, or anon before the gate has run.
func callerID(c echo.Context) string {
	switch p := Principal(c).(type) {
	case *model.UserPrincipal:
		if p != nil {
			return "user:" + strconv.FormatUint(p.UserID, 10)
		}
	case *model.ServicePrincipal:
		if p != nil {
			return "service:" + p.ServiceID
		}
	}
	return "anon"
}
