package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// UserAdmin is what the admin and teacher endpoints need from the service.
type UserAdmin interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListStudents(ctx context.Context) ([]*model.User, error)
	UpdateUserRoles(ctx context.Context, rawUserID string, roles []string) (*model.User, error)
	TrainingData(ctx context.Context) (model.TrainingSet, error)
	Retrain(ctx context.Context) (string, error)
}

// AdminHandler serves /api/admin and /api/teacher.
type AdminHandler struct {
	Svc UserAdmin
	Log *zap.Logger
}

func NewAdminHandler(svc UserAdmin, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Svc: svc, Log: log}
}

type updateRolesReq struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,oneof=admin teacher student"`
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.Svc.ListUsers(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// UpdateRoles handles PUT /api/admin/users/:id/roles.
func (h *AdminHandler) UpdateRoles(c echo.Context) error {
	var req updateRolesReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "roles must be a non-empty subset of admin, teacher, student")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.UpdateUserRoles(ctx, c.Param("id"), req.Roles)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "roles updated", "user": u})
}

// ListStudents handles GET /api/teacher/students.
func (h *AdminHandler) ListStudents(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.Svc.ListStudents(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"students": users})
}

// TrainingData handles GET /api/admin/ai/training-data.
func (h *AdminHandler) TrainingData(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	set, err := h.Svc.TrainingData(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"samples": set.Users, "size": len(set.Users), "modules": len(set.Modules)})
}

// Retrain handles POST /api/admin/ai/retrain.  Training itself runs in the
// model service after it accepts the job.
func (h *AdminHandler) Retrain(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	status, err := h.Svc.Retrain(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": status})
}
