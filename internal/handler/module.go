package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// Catalog is the read side of the module catalog as the API exposes it.
type Catalog interface {
	ListModules(ctx context.Context, f model.ModuleFilter, page, limit int) (model.ModulePage, error)
	GetModule(ctx context.Context, rawID string) (*model.Module, error)
}

// ModuleHandler serves /api/vkms.
type ModuleHandler struct {
	Svc Catalog
	Log *zap.Logger
}

func NewModuleHandler(svc Catalog, log *zap.Logger) *ModuleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModuleHandler{Svc: svc, Log: log}
}

// queryInt parses an optional integer query parameter.  Missing or
// malformed values yield def.
func queryInt(c echo.Context, name string, def int) int {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// List handles GET /api/vkms?search=&location=&credits=&page=&limit=.
func (h *ModuleHandler) List(c echo.Context) error {
	f := model.ModuleFilter{
		Search:   c.QueryParam("search"),
		Location: c.QueryParam("location"),
	}
	if raw := strings.TrimSpace(c.QueryParam("credits")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "credits must be a non-negative number")
		}
		f.Credits = &n
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.Svc.ListModules(ctx, f, queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Get handles GET /api/vkms/:id.
func (h *ModuleHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.Svc.GetModule(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}
