package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/iliyamo/vkm-portal/internal/model"
)

const userColumns = "id,username,email,password_hash,auth_method,oauth_provider,oauth_subject,roles,interests,values_list,goals,created_at,updated_at"

// UserRepo is the credential store: account rows in `users` plus the
// favorite references in `user_favorites`.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                        model.User
		hash, provider, subject  sql.NullString
		authMethod               string
		roles, interests, values []byte
		goals                    []byte
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &authMethod, &provider, &subject,
		&roles, &interests, &values, &goals, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	u.AuthMethod = model.AuthMethod(authMethod)
	if provider.Valid && subject.Valid {
		u.OAuth = &model.OAuthLink{Provider: provider.String, SubjectID: subject.String}
	}
	if err := decodeJSONList(roles, &u.Roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	u.Roles = model.NormalizeRoles(u.Roles)
	for _, col := range []struct {
		raw []byte
		dst *[]string
	}{{interests, &u.Profile.Interests}, {values, &u.Profile.Values}, {goals, &u.Profile.Goals}} {
		if err := decodeJSONList(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		if *col.dst == nil {
			*col.dst = []string{}
		}
	}
	return &u, nil
}

func decodeJSONList[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSONList[T any](list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}
	return json.Marshal(list)
}

// getOne runs a single-row user query and attaches the favorites.
func (r *UserRepo) getOne(ctx context.Context, where string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.Favorites, err = r.favoriteIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	return r.getOne(ctx, "id=?", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username=?", username)
}

// GetByOAuth fetches the account linked to an external identity.
func (r *UserRepo) GetByOAuth(ctx context.Context, provider, subjectID string) (*model.User, error) {
	return r.getOne(ctx, "oauth_provider=? AND oauth_subject=?", provider, subjectID)
}

// Create inserts u and fills in its ID.  Unique key violations come back as
// ErrDuplicateEmail, ErrDuplicateUsername or ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Roles = model.NormalizeRoles(u.Roles)

	var hash, provider, subject sql.NullString
	if u.PasswordHash != "" {
		hash = sql.NullString{String: u.PasswordHash, Valid: true}
	}
	if u.OAuth != nil {
		provider = sql.NullString{String: u.OAuth.Provider, Valid: true}
		subject = sql.NullString{String: u.OAuth.SubjectID, Valid: true}
	}
	roles, err := encodeJSONList(u.Roles)
	if err != nil {
		return err
	}
	lists := make([][]byte, 0, 3)
	for _, l := range [][]string{u.Profile.Interests, u.Profile.Values, u.Profile.Goals} {
		b, err := encodeJSONList(l)
		if err != nil {
			return err
		}
		lists = append(lists, b)
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username,email,password_hash,auth_method,oauth_provider,oauth_subject,roles,interests,values_list,goals) VALUES (?,?,?,?,?,?,?,?,?,?)",
		u.Username, u.Email, hash, string(u.AuthMethod), provider, subject, roles, lists[0], lists[1], lists[2])
	if err != nil {
		return classifyUserWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	if u.Favorites == nil {
		u.Favorites = []uint64{}
	}
	return nil
}

// buildUserUpdate turns a patch into SET assignments.  Profile lists live
// in their own columns, so a patch that only carries goals leaves the
// stored interests and values alone.
func buildUserUpdate(p model.UserPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	if p.Username != nil {
		sets = append(sets, "username=?")
		args = append(args, *p.Username)
	}
	if p.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	if p.PasswordHash != nil {
		sets = append(sets, "password_hash=?")
		args = append(args, *p.PasswordHash)
	}
	if p.Roles != nil {
		b, err := encodeJSONList(model.NormalizeRoles(p.Roles))
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, "roles=?")
		args = append(args, b)
	}
	for _, col := range []struct {
		name string
		val  *[]string
	}{{"interests", p.Profile.Interests}, {"values_list", p.Profile.Values}, {"goals", p.Profile.Goals}} {
		if col.val == nil {
			continue
		}
		b, err := encodeJSONList(*col.val)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, col.name+"=?")
		args = append(args, b)
	}
	return sets, args, nil
}

// Update applies the non-nil fields of p in a single statement and returns
// the stored record.
func (r *UserRepo) Update(ctx context.Context, id uint64, p model.UserPatch) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	sets, args, err := buildUserUpdate(p)
	if err != nil {
		return nil, err
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
			return nil, classifyUserWriteErr(err)
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes the account.  Deleting an id that no longer exists is not
// an error.  Favorite rows go with the user through the foreign key.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	if id == 0 {
		return ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	return err
}

// List returns every account ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
}

// ListByRole returns accounts holding role, ordered by id.
func (r *UserRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users WHERE JSON_CONTAINS(roles, JSON_QUOTE(?)) ORDER BY id", string(role))
}

func (r *UserRepo) list(ctx context.Context, q string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range out {
		if u.Favorites, err = r.favoriteIDs(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *UserRepo) exists(ctx context.Context, id uint64) error {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

// AddFavorite records (userID, moduleID).  Adding an existing pair is a
// no-op.  The updated favorite list is returned.
func (r *UserRepo) AddFavorite(ctx context.Context, userID, moduleID uint64) ([]uint64, error) {
	if userID == 0 || moduleID == 0 {
		return nil, ErrInvalidID
	}
	if err := r.exists(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO user_favorites (user_id, module_id) VALUES (?,?)", userID, moduleID); err != nil {
		return nil, err
	}
	return r.favoriteIDs(ctx, userID)
}

// RemoveFavorite deletes (userID, moduleID).  Removing a pair that is not
// there is a no-op.  The updated favorite list is returned.
func (r *UserRepo) RemoveFavorite(ctx context.Context, userID, moduleID uint64) ([]uint64, error) {
	if userID == 0 || moduleID == 0 {
		return nil, ErrInvalidID
	}
	if err := r.exists(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM user_favorites WHERE user_id=? AND module_id=?", userID, moduleID); err != nil {
		return nil, err
	}
	return r.favoriteIDs(ctx, userID)
}

// Favorites returns the favorite module ids of an existing user.
func (r *UserRepo) Favorites(ctx context.Context, userID uint64) ([]uint64, error) {
	if userID == 0 {
		return nil, ErrInvalidID
	}
	if err := r.exists(ctx, userID); err != nil {
		return nil, err
	}
	return r.favoriteIDs(ctx, userID)
}

func (r *UserRepo) favoriteIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT module_id FROM user_favorites WHERE user_id=? ORDER BY created_at, module_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
