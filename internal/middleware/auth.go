package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vkm-portal/internal/config"
	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/utils"
)

// HeaderAPIKey carries a static service key.
const HeaderAPIKey = "X-API-Key"

const principalKey = "principal"

// TokenVerifier turns a raw session token into a user principal.
// *utils.TokenIssuer implements it.
type TokenVerifier interface {
	Verify(raw string) (*model.UserPrincipal, error)
}

// Authenticate resolves the caller from either a bearer session token or an
// X-API-Key service key and stores the principal in the context.  The
// Authorization header wins when both are sent.  Every failure ends the
// request with 401.
func Authenticate(tokens TokenVerifier, keys []config.ServiceKey) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			if auth := h.Get(echo.HeaderAuthorization); auth != "" {
				raw, err := utils.BearerToken(auth)
				if err != nil {
					return unauthorized(c, "missing bearer token")
				}
				p, err := tokens.Verify(raw)
				if err != nil {
					if errors.Is(err, utils.ErrExpiredToken) {
						return unauthorized(c, "token expired")
					}
					return unauthorized(c, "invalid token")
				}
				c.Set(principalKey, model.Principal(p))
				return next(c)
			}
			if key := h.Get(HeaderAPIKey); key != "" {
				p := matchServiceKey(keys, key)
				if p == nil {
					return unauthorized(c, "invalid api key")
				}
				c.Set(principalKey, model.Principal(p))
				return next(c)
			}
			return unauthorized(c, "authentication required")
		}
	}
}

// matchServiceKey compares key against every configured key so the lookup
// time does not depend on which one matches.
func matchServiceKey(keys []config.ServiceKey, key string) *model.ServicePrincipal {
	var found *model.ServicePrincipal
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) == 1 && found == nil {
			found = &model.ServicePrincipal{ServiceID: k.ID, Scopes: append([]string(nil), k.Scopes...)}
		}
	}
	return found
}

// Principal returns the principal stored by Authenticate, or nil.
func Principal(c echo.Context) model.Principal {
	p, _ := c.Get(principalKey).(model.Principal)
	return p
}

// CurrentUser returns the user principal of the request, if the caller
// authenticated with a session token.
func CurrentUser(c echo.Context) (*model.UserPrincipal, bool) {
	u, ok := Principal(c).(*model.UserPrincipal)
	return u, ok && u != nil
}

// RequireUser rejects callers that are not signed-in users, such as
// services presenting an API key.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentUser(c); !ok {
				return unauthorized(c, "user session required")
			}
			return next(c)
		}
	}
}

// RequireService rejects callers that did not present a service key.
// Session tokens carry read:vkm as well.
func RequireService() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := Principal(c).(*model.ServicePrincipal); !ok {
				return unauthorized(c, "service api key required")
			}
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
}
