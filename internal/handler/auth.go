package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/middleware"
	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/service"
)

// AuthService is the part of *service.AuthService the auth endpoints use.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginMicrosoft(ctx context.Context, idToken string) (*service.AuthResult, error)
	GetMe(ctx context.Context, userID uint64) (*service.MeView, error)
	UpdateMe(ctx context.Context, userID uint64, in service.UpdateMeInput) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uint64, p model.ProfilePatch) (*model.User, error)
	DeleteMe(ctx context.Context, userID uint64) error
	AddFavorite(ctx context.Context, userID uint64, rawModuleID string) ([]uint64, error)
	RemoveFavorite(ctx context.Context, userID uint64, rawModuleID string) ([]uint64, error)
	FavoriteModules(ctx context.Context, userID uint64) ([]model.Module, error)
	GetFavoritesByRawID(ctx context.Context, rawUserID string) ([]uint64, error)
	GetRecommendations(ctx context.Context, userID uint64) ([]model.Recommendation, error)
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Svc AuthService
	Log *zap.Logger
}

func NewAuthHandler(svc AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Svc: svc, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type microsoftLoginReq struct {
	IDToken string `json:"idToken" validate:"required"`
}

type updateMeReq struct {
	Username  *string             `json:"username"`
	Email     *string             `json:"email"`
	Password  *string             `json:"password"`
	Interests *[]string           `json:"interests"`
	Values    *[]string           `json:"values"`
	Goals     *[]string           `json:"goals"`
	Profile   *model.ProfilePatch `json:"profile"`
}

// profile merges the nested profile object with the top-level list fields.
// Top-level fields win.
func (r updateMeReq) profile() model.ProfilePatch {
	var p model.ProfilePatch
	if r.Profile != nil {
		p = *r.Profile
	}
	if r.Interests != nil {
		p.Interests = r.Interests
	}
	if r.Values != nil {
		p.Values = r.Values
	}
	if r.Goals != nil {
		p.Goals = r.Goals
	}
	return p
}

// userID returns the id of the signed-in user.  Routes using it sit behind
// middleware.RequireUser.
func userID(c echo.Context) uint64 {
	u, _ := middleware.CurrentUser(c)
	if u == nil {
		return 0
	}
	return u.UserID
}

// Register creates a local student account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "username, email and password are required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.Register(ctx, service.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "registration successful", "user": u})
}

// Login signs in a local account.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// LoginMicrosoft signs in with a Microsoft id token.
func (h *AuthHandler) LoginMicrosoft(c echo.Context) error {
	var req microsoftLoginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "missing idToken")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.LoginMicrosoft(ctx, req.IDToken)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Me returns the signed-in user with resolved favorites.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	me, err := h.Svc.GetMe(ctx, userID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, me)
}

// UpdateMe changes account fields and profile lists.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	var req updateMeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.UpdateMe(ctx, userID(c), service.UpdateMeInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.profile(),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account updated", "user": u})
}

// UpdateProfile changes only the profile lists.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	var req model.ProfilePatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.UpdateProfile(ctx, userID(c), req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated", "user": u})
}

// DeleteMe removes the signed-in account.
func (h *AuthHandler) DeleteMe(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.DeleteMe(ctx, userID(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}

// AddFavorite adds :moduleId to the signed-in user's favorites.
func (h *AuthHandler) AddFavorite(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	favs, err := h.Svc.AddFavorite(ctx, userID(c), c.Param("moduleId"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "module added to favorites", "favorites": favs})
}

// RemoveFavorite drops :moduleId from the signed-in user's favorites.
func (h *AuthHandler) RemoveFavorite(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	favs, err := h.Svc.RemoveFavorite(ctx, userID(c), c.Param("moduleId"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "module removed from favorites", "favorites": favs})
}

// MyFavorites lists the signed-in user's favorite modules.
func (h *AuthHandler) MyFavorites(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	mods, err := h.Svc.FavoriteModules(ctx, userID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"favorites": mods})
}

// UserFavorites lists the favorite module ids of :userId for trusted
// services.
func (h *AuthHandler) UserFavorites(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	favs, err := h.Svc.GetFavoritesByRawID(ctx, c.Param("userId"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, favs)
}

// Recommendations returns scored module suggestions.  The list is empty
// when the recommendation service is unavailable.
func (h *AuthHandler) Recommendations(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	recs, err := h.Svc.GetRecommendations(ctx, userID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"recommendations": recs})
}
