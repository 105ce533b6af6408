package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// RequireRole lets the request through when the principal holds any of
// roles.  Roles come from the token snapshot, not the live user record.
// Service principals never hold roles and are always refused.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := Principal(c)
			if p == nil {
				return unauthorized(c, "authentication required")
			}
			for _, r := range roles {
				if model.PrincipalHasRole(p, r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}

// RequireScope lets the request through when the principal was granted
// scope.  Users carry the scopes embedded in their token.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := Principal(c)
			if p == nil {
				return unauthorized(c, "authentication required")
			}
			if !model.PrincipalHasScope(p, scope) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "missing scope " + scope})
			}
			return next(c)
		}
	}
}
