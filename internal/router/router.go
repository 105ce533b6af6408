// Package router registers the HTTP routes of the portal API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/config"
	"github.com/iliyamo/vkm-portal/internal/handler"
	"github.com/iliyamo/vkm-portal/internal/middleware"
	"github.com/iliyamo/vkm-portal/internal/model"
)

// APIRoot prefixes every business route.
const APIRoot = "/api"

// Deps is everything the routes need.  Redis may be nil: rate limiting and
// caching are then skipped.
type Deps struct {
	Auth      *handler.AuthHandler
	Modules   *handler.ModuleHandler
	Admin     *handler.AdminHandler
	DB        handler.Pinger
	Tokens    middleware.TokenVerifier
	Keys      []config.ServiceKey
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    *zap.Logger
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAPI mounts the auth, catalog, admin and teacher routes under
// /api.  Every route is rate limited.
func RegisterAPI(e *echo.Echo, d Deps) {
	api := e.Group(APIRoot, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger))
	gate := middleware.Authenticate(d.Tokens, d.Keys)
	user := []echo.MiddlewareFunc{gate, middleware.RequireUser()}

	registerAuth(api, d.Auth, gate, user)
	registerCatalog(api, d, user)
	registerAdmin(api, d.Admin, user)
}

func registerAuth(api *echo.Group, a *handler.AuthHandler, gate echo.MiddlewareFunc, user []echo.MiddlewareFunc) {
	g := api.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/login/oauth/microsoft", a.LoginMicrosoft)

	me := g.Group("", user...)
	me.GET("/me", a.Me)
	me.PUT("/me", a.UpdateMe)
	me.DELETE("/me", a.DeleteMe)
	me.GET("/me/favorites", a.MyFavorites)
	me.PUT("/me/profile", a.UpdateProfile)
	me.POST("/users/favorites/:moduleId", a.AddFavorite)
	me.DELETE("/users/favorites/:moduleId", a.RemoveFavorite)
	me.GET("/recommendations", a.Recommendations)

	// trusted backends read any user's favorites with a service key
	g.GET("/users/:userId/favorites", a.UserFavorites, gate, middleware.RequireService(), middleware.RequireScope(model.ScopeReadModules))
}

func registerCatalog(api *echo.Group, d Deps, user []echo.MiddlewareFunc) {
	mws := append(append([]echo.MiddlewareFunc{}, user...), middleware.NewRedisCache(d.Cache, d.Redis, d.Logger))
	g := api.Group("/vkms", mws...)
	g.GET("", d.Modules.List)
	g.GET("/:id", d.Modules.Get)
}

func registerAdmin(api *echo.Group, a *handler.AdminHandler, user []echo.MiddlewareFunc) {
	admin := api.Group("/admin", append(append([]echo.MiddlewareFunc{}, user...), middleware.RequireRole(model.RoleAdmin))...)
	admin.GET("/users", a.ListUsers)
	admin.PUT("/users/:id/roles", a.UpdateRoles)
	admin.GET("/ai/training-data", a.TrainingData)
	admin.POST("/ai/retrain", a.Retrain)

	teacher := api.Group("/teacher", append(append([]echo.MiddlewareFunc{}, user...), middleware.RequireRole(model.RoleTeacher))...)
	teacher.GET("/students", a.ListStudents)
}
