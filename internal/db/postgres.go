package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spacesedan/leadscout/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLSTATE classes for rows the database will never accept as written:
// 22 data exception, 23 integrity constraint violation.
const (
	dataExceptionClass      = "22"
	integrityViolationClass = "23"
)

// Store implements every repository on a Postgres pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate applies the embedded schema files in name order. Each file is
// idempotent so Migrate is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("[DB] read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		sql, err := migrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("[DB] read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("[DB] apply %s: %w", entry.Name(), err)
		}
		slog.Info("[DB] Applied migration", slog.String("file", entry.Name()))
	}
	return nil
}

// classify turns driver errors into the error kinds the pipeline understands.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && rejectsRow(pgErr.Code) {
		return fmt.Errorf("%w: %s: %s (sqlstate %s, constraint %q)",
			models.ErrPersistenceConflict, what, pgErr.Message, pgErr.Code, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// rejectsRow reports whether retrying the same statement can only fail again.
func rejectsRow(code string) bool {
	return strings.HasPrefix(code, dataExceptionClass) || strings.HasPrefix(code, integrityViolationClass)
}
