package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/sentinel/adapters/store/migrations"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
	"github.com/pressly/goose/v3"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation
const uniqueViolation = "23505"

const principalColumns = `id, username, password_hash, nickname, role, renewal_token, created_at, updated_at`

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is a PostgreSQL implementation of the CredentialStore interface
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a new Postgres store bound to db
func NewPostgresStore(db DBTX) ports.CredentialStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// FindOne returns the principal matching where
func (s *PostgresStore) FindOne(ctx context.Context, where core.Predicate) (*core.Principal, error) {
	var (
		query string
		args  []any
	)

	switch {
	case where.MatchesRenewal():
		if where.RenewalToken == "" || !validID(where.ID) {
			return nil, core.ErrPrincipalNotFound
		}
		query = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1 AND renewal_token = $2`
		args = []any{where.ID, where.RenewalToken}
	case where.ID != "":
		if !validID(where.ID) {
			return nil, core.ErrPrincipalNotFound
		}
		query = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
		args = []any{where.ID}
	case where.Username != "":
		query = `SELECT ` + principalColumns + ` FROM principals WHERE username = $1`
		args = []any{where.Username}
	default:
		return nil, core.ErrPrincipalNotFound
	}

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Create inserts a principal. The unique index on username turns a
// concurrent duplicate into core.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, fields core.NewPrincipal) (*core.Principal, error) {
	query :=
		`INSERT INTO principals (id, username, password_hash, nickname, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING ` + principalColumns

	row := s.db.QueryRowContext(ctx, query,
		uuid.New().String(), fields.Username, fields.PasswordHash, fields.Nickname, fields.Role)

	p, err := scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, core.ErrConflict
		}
		return nil, err
	}

	return p, nil
}

// Update applies patch to the principal with the given id. An empty
// RenewalToken is stored as NULL.
func (s *PostgresStore) Update(ctx context.Context, id string, patch core.PrincipalPatch) (*core.Principal, error) {
	if !validID(id) {
		return nil, core.ErrPrincipalNotFound
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}

	if patch.RenewalToken != nil {
		args = append(args, sql.NullString{String: *patch.RenewalToken, Valid: *patch.RenewalToken != ""})
		sets = append(sets, fmt.Sprintf("renewal_token = $%d", len(args)))
	}
	if patch.Role != nil {
		args = append(args, *patch.Role)
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	if patch.Nickname != nil {
		args = append(args, *patch.Nickname)
		sets = append(sets, fmt.Sprintf("nickname = $%d", len(args)))
	}

	query := `UPDATE principals SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + principalColumns

	return scanPrincipal(s.db.QueryRowContext(ctx, query, args...))
}

func scanPrincipal(row *sql.Row) (*core.Principal, error) {
	p := &core.Principal{}
	var renewal sql.NullString

	err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.Nickname, &p.Role, &renewal, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPrincipalNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, err
		}
		return nil, fmt.Errorf("%w: db error: %v", core.ErrStoreUnavailable, err)
	}

	p.RenewalToken = renewal.String
	return p, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
