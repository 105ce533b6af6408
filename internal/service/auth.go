package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/identity"
	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/queue"
	"github.com/iliyamo/vkm-portal/internal/repository"
	"github.com/iliyamo/vkm-portal/internal/utils"
)

// RegisterInput is the payload of a local registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthResult is returned by every successful login.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// UpdateMeInput carries the account fields a user may change.  Nil fields
// are left alone.
type UpdateMeInput struct {
	Username *string
	Email    *string
	Password *string
	Profile  model.ProfilePatch
}

// MeView is the current user with favorites resolved to catalog modules.
type MeView struct {
	*model.User
	FavoriteModules []model.Module `json:"favoriteVkms"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a local student account.  Checks run in a fixed order:
// field validation (username, email, password), email uniqueness, username
// uniqueness.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if err := utils.ValidateRegistration(username, email, in.Password); err != nil {
		return nil, validation(err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fromRepo("register: lookup email", err)
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fromRepo("register: lookup username", err)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		AuthMethod:   model.AuthLocal,
		Roles:        []model.Role{model.RoleStudent},
		Profile:      model.Profile{Interests: []string{}, Values: []string{}, Goals: []string{}},
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fromRepo("register: create", err)
	}

	ev := queue.NewActivityEvent(queue.EventUserRegistered, u.ID)
	ev.Email = u.Email
	s.emit(ev)
	return u, nil
}

// Login authenticates a local account by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, loginFailure(ErrUserNotFound)
		}
		return nil, fromRepo("login: lookup", err)
	}
	if u.AuthMethod != model.AuthLocal || u.PasswordHash == "" {
		return nil, ErrOAuthOnlyAccount
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// LoginMicrosoft federates a Microsoft id token onto a local account,
// creating an oauth student on first sign-in.  An existing account that
// owns the email but is not linked to this identity is never taken over.
func (s *AuthService) LoginMicrosoft(ctx context.Context, idToken string) (*AuthResult, error) {
	if s.verifier == nil || strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidExternalToken
	}
	ext, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.log.Info("microsoft token rejected", zap.Error(err))
		return nil, ErrInvalidExternalToken
	}

	u, err := s.users.GetByOAuth(ctx, ext.Provider, ext.SubjectID)
	if err == nil {
		return s.issue(u)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fromRepo("oauth: lookup link", err)
	}

	if _, err := s.users.GetByEmail(ctx, ext.Email); err == nil {
		return nil, ErrAccountConflict
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fromRepo("oauth: lookup email", err)
	}

	u, err = s.createOAuthUser(ctx, ext)
	if err != nil {
		return nil, err
	}

	ev := queue.NewActivityEvent(queue.EventUserRegistered, u.ID)
	ev.Email = u.Email
	s.emit(ev)
	return s.issue(u)
}

// createOAuthUser stores a new oauth student, trying each username
// candidate until one is free.
func (s *AuthService) createOAuthUser(ctx context.Context, ext *identity.ExternalIdentity) (*model.User, error) {
	for _, name := range oauthUsernames(ext.DisplayName, ext.Email, ext.SubjectID) {
		_, err := s.users.GetByUsername(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fromRepo("oauth: lookup username", err)
		}
		u := &model.User{
			Username:   name,
			Email:      ext.Email,
			AuthMethod: model.AuthOAuth,
			OAuth:      &model.OAuthLink{Provider: ext.Provider, SubjectID: ext.SubjectID},
			Roles:      []model.Role{model.RoleStudent},
			Profile:    model.Profile{Interests: []string{}, Values: []string{}, Goals: []string{}},
		}
		err = s.users.Create(ctx, u)
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, repository.ErrDuplicateUsername):
			continue
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrAccountConflict
		default:
			return nil, fromRepo("oauth: create", err)
		}
	}
	return nil, ErrDuplicateUsername
}

// oauthUsernames lists the usernames a federated account may take, in order
// of preference: the display name, the local part of the email, then both
// suffixed with the start of the subject id and finally the full subject id.
// Every candidate passes ValidateUsername.
func oauthUsernames(displayName, email, subject string) []string {
	local, _, _ := strings.Cut(email, "@")
	bases := []string{strings.TrimSpace(displayName), strings.TrimSpace(local)}

	short := subject
	if len(short) > 6 {
		short = short[:6]
	}
	var raw []string
	raw = append(raw, bases...)
	for _, b := range bases {
		if b != "" && short != "" {
			raw = append(raw, b+"-"+short)
		}
	}
	for _, b := range bases {
		if b != "" && subject != "" {
			raw = append(raw, b+"-"+subject)
		}
	}
	if subject != "" {
		raw = append(raw, "user-"+subject)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		if seen[name] || utils.ValidateUsername(name) != nil {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok.Token, ExpiresAt: tok.Exp, User: u}, nil
}

// GetMe returns the user with favorites resolved to modules.  Favorites that
// no longer resolve in the catalog are skipped.
func (s *AuthService) GetMe(ctx context.Context, userID uint64) (*MeView, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fromRepo("me", err)
	}
	mods, err := s.resolveModules(ctx, u.Favorites)
	if err != nil {
		return nil, err
	}
	return &MeView{User: u, FavoriteModules: mods}, nil
}

// UpdateMe applies account and profile changes.  Each changed field is
// validated like at registration.  A request that changes nothing fails
// with ErrNoChanges.
func (s *AuthService) UpdateMe(ctx context.Context, userID uint64, in UpdateMeInput) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fromRepo("update me", err)
	}

	var patch model.UserPatch
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name != u.Username {
			if err := utils.ValidateUsername(name); err != nil {
				return nil, validation(err)
			}
			patch.Username = &name
		}
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != u.Email {
			if err := utils.ValidateEmail(email); err != nil {
				return nil, validation(err)
			}
			patch.Email = &email
		}
	}
	if in.Password != nil && *in.Password != "" {
		if u.AuthMethod != model.AuthLocal {
			return nil, ErrPasswordOnOAuth
		}
		if !utils.VerifyPassword(u.PasswordHash, *in.Password) {
			if err := utils.ValidatePassword(*in.Password); err != nil {
				return nil, validation(err)
			}
			hash, err := utils.HashPassword(*in.Password, s.bcryptCost)
			if err != nil {
				return nil, err
			}
			patch.PasswordHash = &hash
		}
	}
	patch.Profile = profileChanges(u.Profile, in.Profile)

	if patch.Empty() {
		return nil, ErrNoChanges
	}

	if patch.Username != nil {
		if other, err := s.users.GetByUsername(ctx, *patch.Username); err == nil && other.ID != u.ID {
			return nil, ErrDuplicateUsername
		}
	}
	if patch.Email != nil {
		if other, err := s.users.GetByEmail(ctx, *patch.Email); err == nil && other.ID != u.ID {
			return nil, ErrDuplicateEmail
		}
	}

	updated, err := s.users.Update(ctx, u.ID, patch)
	if err != nil {
		return nil, fromRepo("update me", err)
	}
	return updated, nil
}

// UpdateProfile changes only the profile lists.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, p model.ProfilePatch) (*model.User, error) {
	return s.UpdateMe(ctx, userID, UpdateMeInput{Profile: p})
}

// profileChanges keeps only the lists of p that differ from cur, with
// entries trimmed and blanks dropped.
func profileChanges(cur model.Profile, p model.ProfilePatch) model.ProfilePatch {
	var out model.ProfilePatch
	pick := func(stored []string, in *[]string) *[]string {
		if in == nil {
			return nil
		}
		clean := make([]string, 0, len(*in))
		for _, v := range *in {
			if v = strings.TrimSpace(v); v != "" {
				clean = append(clean, v)
			}
		}
		if slices.Equal(clean, stored) || (len(clean) == 0 && len(stored) == 0) {
			return nil
		}
		return &clean
	}
	out.Interests = pick(cur.Interests, p.Interests)
	out.Values = pick(cur.Values, p.Values)
	out.Goals = pick(cur.Goals, p.Goals)
	return out
}

// DeleteMe removes the account.  Favorites go with it; the catalog is not
// touched.
func (s *AuthService) DeleteMe(ctx context.Context, userID uint64) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return fromRepo("delete me", err)
	}
	s.emit(queue.NewActivityEvent(queue.EventUserDeleted, userID))
	return nil
}
