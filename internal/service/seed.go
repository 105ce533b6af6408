package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// SeedAdminInput is the administrator account enforced at startup.
type SeedAdminInput struct {
	Email    string
	Username string
	Password string
	Role     string
}

// SeedAdmin makes sure the configured administrator exists as a local
// account holding Role.  An account that drifted (other username, oauth, or
// missing the role) is deleted and registered again through the normal
// registration path.  Missing settings skip the seed.
func (s *AuthService) SeedAdmin(ctx context.Context, in SeedAdminInput) error {
	if in.Email == "" || in.Username == "" || in.Password == "" {
		s.log.Info("admin seed skipped (missing env vars)")
		return nil
	}
	role := model.Role(in.Role)
	if role == "" {
		role = model.RoleAdmin
	}
	if !model.ValidRole(role) {
		return ErrInvalidRoles
	}

	existing, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	switch {
	case err == nil:
		if existing.Username == in.Username && existing.AuthMethod == model.AuthLocal && existing.HasRole(role) {
			s.log.Info("admin user already in desired state", zap.Uint64("user_id", existing.ID))
			return nil
		}
		s.log.Warn("admin user mismatch detected, resetting", zap.Uint64("user_id", existing.ID))
		if err := s.users.Delete(ctx, existing.ID); err != nil {
			return fromRepo("seed admin: delete", err)
		}
	case !isNotFound(err):
		return fromRepo("seed admin: lookup", err)
	}

	u, err := s.Register(ctx, RegisterInput{Username: in.Username, Email: in.Email, Password: in.Password})
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, u.ID, model.UserPatch{Roles: []model.Role{role}}); err != nil {
		return fromRepo("seed admin: roles", err)
	}
	s.log.Info("admin user enforced from environment", zap.Uint64("user_id", u.ID), zap.String("role", string(role)))
	return nil
}
