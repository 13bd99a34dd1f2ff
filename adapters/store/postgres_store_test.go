package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/sentinel/core"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "5b0e1c6e-3f3a-4d7e-9a55-0f2f8c1d2e3a"

var columns = []string{"id", "username", "password_hash", "nickname", "role", "renewal_token", "created_at", "updated_at"}

func newPostgresWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db).(*PostgresStore), mock
}

func principalRow(renewal any) *sqlmock.Rows {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return sqlmock.NewRows(columns).AddRow(testID, "alice", "hash", "Al", "user", renewal, ts, ts)
}

func TestPostgresStore_FindByUsername(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM principals WHERE username = \$1$`).
		WithArgs("alice").
		WillReturnRows(principalRow(nil))

	p, err := s.FindOne(context.Background(), core.ByUsername("alice"))
	require.NoError(t, err)
	assert.Equal(t, testID, p.ID)
	assert.Equal(t, "hash", p.PasswordHash)
	assert.Empty(t, p.RenewalToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDAndRenewalToken(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM principals WHERE id = \$1 AND renewal_token = \$2$`).
		WithArgs(testID, "r-1").
		WillReturnRows(principalRow("r-1"))

	p, err := s.FindOne(context.Background(), core.ByIDAndRenewalToken(testID, "r-1"))
	require.NoError(t, err)
	assert.Equal(t, "r-1", p.RenewalToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindShortCircuits(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	ctx := context.Background()

	_, err := s.FindOne(ctx, core.ByIDAndRenewalToken(testID, ""))
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	_, err = s.FindOne(ctx, core.ByID("not-a-uuid"))
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	_, err = s.FindOne(ctx, core.Predicate{})
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNotFoundAndDBError(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM principals WHERE id = \$1$`).
		WithArgs(testID).
		WillReturnError(sql.ErrNoRows)
	_, err := s.FindOne(ctx, core.ByID(testID))
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	mock.ExpectQuery(`FROM principals WHERE id = \$1$`).
		WithArgs(testID).
		WillReturnError(errors.New("connection reset"))
	_, err = s.FindOne(ctx, core.ByID(testID))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+principals\s*\(id, username, password_hash, nickname, role\)\s*VALUES\s*\(\$1, \$2, \$3, \$4, \$5\)\s*RETURNING .+$`).
		WithArgs(sqlmock.AnyArg(), "alice", "hash", "Al", "user").
		WillReturnRows(principalRow(nil))

	p, err := s.Create(context.Background(), core.NewPrincipal{Username: "alice", PasswordHash: "hash", Nickname: "Al", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, testID, p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUniqueViolation(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+principals`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.Create(context.Background(), core.NewPrincipal{Username: "alice", PasswordHash: "hash", Role: "user"})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestPostgresStore_UpdateRenewalToken(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE principals SET updated_at = now\(\), renewal_token = \$2 WHERE id = \$1 RETURNING .+$`).
		WithArgs(testID, "r-2").
		WillReturnRows(principalRow("r-2"))

	token := "r-2"
	p, err := s.Update(context.Background(), testID, core.PrincipalPatch{RenewalToken: &token})
	require.NoError(t, err)
	assert.Equal(t, "r-2", p.RenewalToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateClearsToNull(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE principals SET updated_at = now\(\), renewal_token = \$2 WHERE id = \$1`).
		WithArgs(testID, nil).
		WillReturnRows(principalRow(nil))

	empty := ""
	p, err := s.Update(context.Background(), testID, core.PrincipalPatch{RenewalToken: &empty})
	require.NoError(t, err)
	assert.Empty(t, p.RenewalToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRoleAndNickname(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE principals SET updated_at = now\(\), role = \$2, nickname = \$3 WHERE id = \$1`).
		WithArgs(testID, "admin", "Boss").
		WillReturnRows(principalRow(nil))

	role, nick := "admin", "Boss"
	_, err := s.Update(context.Background(), testID, core.PrincipalPatch{Role: &role, Nickname: &nick})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMissing(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`UPDATE principals`).
		WillReturnError(sql.ErrNoRows)

	_, err := s.Update(context.Background(), testID, core.PrincipalPatch{})
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)

	_, err = s.Update(context.Background(), "bad-id", core.PrincipalPatch{})
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)
}

func TestRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err = RunMigrations(context.Background(), db)
	assert.ErrorContains(t, err, "boom")
}
