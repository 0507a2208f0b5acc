package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/emadnahed/shtlink/internal/database"
	"github.com/emadnahed/shtlink/internal/models"
)

const (
	// uniqueViolation is the SQLSTATE for unique constraint violations.
	uniqueViolation = "23505"

	shortCodeConstraint = "short_code_to_url_pkey"
	longValueConstraint = "short_code_to_url_url_key"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *database.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *database.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RunInTx runs fn inside a database transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: tx})
	})
}

// Get retrieves a mapping by its short code.
func (s *PostgresStore) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	return getMapping(ctx, s.pool, shortCode)
}

// List returns every stored mapping.
func (s *PostgresStore) List(ctx context.Context) ([]models.Mapping, error) {
	query := `
		SELECT short_code, url, created_at
		FROM short_code_to_url
		ORDER BY created_at, short_code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	mappings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Mapping, error) {
		var m models.Mapping
		err := row.Scan(&m.ShortCode, &m.LongValue, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

// HealthCheck pings the database.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getMapping(ctx context.Context, q queryRower, shortCode string) (*models.Mapping, error) {
	query := `
		SELECT short_code, url, created_at
		FROM short_code_to_url
		WHERE short_code = $1`

	var m models.Mapping
	err := q.QueryRow(ctx, query, shortCode).Scan(&m.ShortCode, &m.LongValue, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return &m, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Insert(ctx context.Context, m *models.Mapping) error {
	query := `
		INSERT INTO short_code_to_url (short_code, url)
		VALUES ($1, $2)
		RETURNING created_at`

	err := t.tx.QueryRow(ctx, query, m.ShortCode, m.LongValue).Scan(&m.CreatedAt)
	if err != nil {
		if conflict := classifyConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to insert mapping: %w", err)
	}
	return nil
}

func (t *postgresTx) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	return getMapping(ctx, t.tx, shortCode)
}

func (t *postgresTx) DeleteByLongValue(ctx context.Context, longValue string) (string, error) {
	// md5(url) matches the unique index expression.
	query := `
		DELETE FROM short_code_to_url
		WHERE md5(url) = md5($1) AND url = $1
		RETURNING short_code`

	var code string
	err := t.tx.QueryRow(ctx, query, longValue).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to delete mapping by url: %w", err)
	}
	return code, nil
}

func (t *postgresTx) Delete(ctx context.Context, shortCode string) (*models.Mapping, error) {
	query := `
		DELETE FROM short_code_to_url
		WHERE short_code = $1
		RETURNING short_code, url, created_at`

	var m models.Mapping
	err := t.tx.QueryRow(ctx, query, shortCode).Scan(&m.ShortCode, &m.LongValue, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete mapping: %w", err)
	}
	return &m, nil
}

func (t *postgresTx) Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	query := `
		UPDATE short_code_to_url
		SET short_code = $2
		WHERE short_code = $1
		RETURNING short_code, url, created_at`

	var m models.Mapping
	err := t.tx.QueryRow(ctx, query, shortCode, newShortCode).Scan(&m.ShortCode, &m.LongValue, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if conflict := classifyConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to rename mapping: %w", err)
	}
	return &m, nil
}

// classifyConflict maps a unique violation to the conflict error for the
// constraint it names. It returns nil for any other error.
func classifyConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}

	switch pgErr.ConstraintName {
	case shortCodeConstraint:
		return ErrShortCodeConflict
	case longValueConstraint:
		return ErrLongValueConflict
	default:
		return nil
	}
}

// Compile-time check.
var _ Store = (*PostgresStore)(nil)
