package service

import (
	"context"
	"strings"

	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/repository"
)

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fromRepo("list users", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// ListStudents returns accounts holding the student role.
func (s *AuthService) ListStudents(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.ListByRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, fromRepo("list students", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// UpdateUserRoles replaces the roles of a user.  Tokens already issued keep
// their old roles until they expire.
func (s *AuthService) UpdateUserRoles(ctx context.Context, rawUserID string, roles []string) (*model.User, error) {
	id, err := repository.ParseID(rawUserID)
	if err != nil {
		return nil, ErrInvalidUserID
	}
	if len(roles) == 0 {
		return nil, ErrInvalidRoles
	}
	set := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		role := model.Role(strings.ToLower(strings.TrimSpace(r)))
		if !model.ValidRole(role) {
			return nil, ErrInvalidRoles
		}
		set = append(set, role)
	}
	u, err := s.users.Update(ctx, id, model.UserPatch{Roles: model.NormalizeRoles(set)})
	if err != nil {
		return nil, fromRepo("update roles", err)
	}
	return u, nil
}
