package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vkm-portal/internal/model"
)

var userCols = []string{"id", "username", "email", "password_hash", "auth_method", "oauth_provider",
	"oauth_subject", "roles", "interests", "values_list", "goals", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(db), mock
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestClassifyUserWriteErr(t *testing.T) {
	dup := func(key string) error {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'users." + key + "'"}
	}
	assert.ErrorIs(t, classifyUserWriteErr(dup("uq_users_email")), ErrDuplicateEmail)
	assert.ErrorIs(t, classifyUserWriteErr(dup("uq_users_username")), ErrDuplicateUsername)
	assert.ErrorIs(t, classifyUserWriteErr(dup("uq_users_oauth")), ErrConflict)

	other := &mysql.MySQLError{Number: 1213, Message: "deadlock"}
	assert.Equal(t, error(other), classifyUserWriteErr(other))
}

func TestBuildUserUpdate_OnlyProvidedColumns(t *testing.T) {
	goals := []string{"become a data engineer"}
	email := "  New@Example.COM "
	sets, args, err := buildUserUpdate(model.UserPatch{
		Email:   &email,
		Profile: model.ProfilePatch{Goals: &goals},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"email=?", "goals=?"}, sets)
	require.Len(t, args, 2)
	assert.Equal(t, "new@example.com", args[0])
	assert.JSONEq(t, `["become a data engineer"]`, string(args[1].([]byte)))

	sets, _, err = buildUserUpdate(model.UserPatch{})
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestBuildUserUpdate_EmptyListClears(t *testing.T) {
	empty := []string{}
	_, args, err := buildUserUpdate(model.UserPatch{Profile: model.ProfilePatch{Interests: &empty}})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(args[0].([]byte)))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_LoadsProfileAndFavorites(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			int64(3), "jdoe", "jdoe@example.com", "$2a$hash", "local", nil, nil,
			[]byte(`["student","teacher"]`), []byte(`["ai"]`), nil, []byte(`[]`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT module_id FROM user_favorites")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"module_id"}).AddRow(int64(10)).AddRow(int64(4)))

	u, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", u.Username)
	assert.Equal(t, model.AuthLocal, u.AuthMethod)
	assert.Nil(t, u.OAuth)
	assert.Equal(t, []model.Role{model.RoleStudent, model.RoleTeacher}, u.Roles)
	assert.Equal(t, []string{"ai"}, u.Profile.Interests)
	assert.Equal(t, []string{}, u.Profile.Values)
	assert.Equal(t, []uint64{10, 4}, u.Favorites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_users_email'"})

	err := repo.Create(context.Background(), &model.User{Username: "jdoe", Email: "J@x.io", AuthMethod: model.AuthLocal})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NormalizesAndAssignsID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("jdoe", "j@x.io", sqlmock.AnyArg(), "local", nil, nil, []byte(`["student"]`),
			[]byte(`[]`), []byte(`[]`), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(12, 1))

	u := &model.User{Username: "jdoe", Email: " J@X.io", PasswordHash: "h", AuthMethod: model.AuthLocal}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, uint64(12), u.ID)
	assert.Equal(t, "j@x.io", u.Email)
	assert.Equal(t, []model.Role{model.RoleStudent}, u.Roles)
	assert.Equal(t, []uint64{}, u.Favorites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddFavorite_IdempotentInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO user_favorites")).
		WithArgs(5, 9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT module_id FROM user_favorites")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"module_id"}).AddRow(int64(9)))

	favs, err := repo.AddFavorite(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, favs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveFavorite_UnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err := repo.RemoveFavorite(context.Background(), 5, 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFavorites_InvalidID(t *testing.T) {
	repo, _ := newMockRepo(t)
	_, err := repo.Favorites(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestUpdate_EmptyPatchOnlyReads(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			int64(2), "ms", "ms@x.io", nil, "oauth", "microsoft", "oid-1",
			[]byte(`["student"]`), []byte(`[]`), []byte(`[]`), []byte(`[]`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT module_id FROM user_favorites")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"module_id"}))

	u, err := repo.Update(context.Background(), 2, model.UserPatch{})
	require.NoError(t, err)
	require.NotNil(t, u.OAuth)
	assert.Equal(t, "oid-1", u.OAuth.SubjectID)
	assert.Empty(t, u.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_DuplicateUsername(t *testing.T) {
	repo, mock := newMockRepo(t)
	name := "taken"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET username=? WHERE id=?")).
		WithArgs("taken", 2).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'taken' for key 'uq_users_username'"})

	_, err := repo.Update(context.Background(), 2, model.UserPatch{Username: &name})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}
