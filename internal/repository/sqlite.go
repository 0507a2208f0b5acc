package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/mattn/go-sqlite3"

	"github.com/emadnahed/shtlink/internal/database"
	"github.com/emadnahed/shtlink/internal/models"
)

// sqliteMapping is the GORM row model for short_code_to_url.
type sqliteMapping struct {
	ShortCode string    `gorm:"column:short_code;primary_key"`
	URL       string    `gorm:"column:url"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (sqliteMapping) TableName() string {
	return "short_code_to_url"
}

func (r sqliteMapping) toModel() *models.Mapping {
	return &models.Mapping{
		ShortCode: r.ShortCode,
		LongValue: r.URL,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// SQLiteStore implements Store on a SQLite database file. It is the default
// backend when no server is configured.
type SQLiteStore struct {
	db *database.SQLite
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(db *database.SQLite) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RunInTx runs fn inside a database transaction.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.db.BeginTx(ctx, nil)
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.RollbackUnlessCommitted()

	if err := fn(ctx, &sqliteTx{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves a mapping by its short code.
func (s *SQLiteStore) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sqliteGet(s.db.DB, shortCode)
}

// List returns every stored mapping.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []sqliteMapping
	if err := s.db.Order("created_at, short_code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	mappings := make([]models.Mapping, 0, len(rows))
	for _, r := range rows {
		mappings = append(mappings, *r.toModel())
	}
	return mappings, nil
}

// HealthCheck pings the database file.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func sqliteGet(db *gorm.DB, shortCode string) (*models.Mapping, error) {
	var row sqliteMapping
	if err := db.Where("short_code = ?", shortCode).Take(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return row.toModel(), nil
}

type sqliteTx struct {
	db *gorm.DB
}

func (t *sqliteTx) Insert(_ context.Context, m *models.Mapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	row := sqliteMapping{ShortCode: m.ShortCode, URL: m.LongValue, CreatedAt: m.CreatedAt}
	if err := t.db.Create(&row).Error; err != nil {
		if conflict := classifySQLiteConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to insert mapping: %w", err)
	}
	return nil
}

func (t *sqliteTx) Get(_ context.Context, shortCode string) (*models.Mapping, error) {
	return sqliteGet(t.db, shortCode)
}

func (t *sqliteTx) DeleteByLongValue(_ context.Context, longValue string) (string, error) {
	var row sqliteMapping
	if err := t.db.Where("url = ?", longValue).Take(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find mapping by url: %w", err)
	}

	if err := t.db.Delete(&sqliteMapping{}, "short_code = ?", row.ShortCode).Error; err != nil {
		return "", fmt.Errorf("failed to delete mapping by url: %w", err)
	}
	return row.ShortCode, nil
}

func (t *sqliteTx) Delete(_ context.Context, shortCode string) (*models.Mapping, error) {
	m, err := sqliteGet(t.db, shortCode)
	if err != nil {
		return nil, err
	}

	if err := t.db.Delete(&sqliteMapping{}, "short_code = ?", shortCode).Error; err != nil {
		return nil, fmt.Errorf("failed to delete mapping: %w", err)
	}
	return m, nil
}

func (t *sqliteTx) Rename(_ context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	m, err := sqliteGet(t.db, shortCode)
	if err != nil {
		return nil, err
	}
	if shortCode == newShortCode {
		return m, nil
	}

	err = t.db.Exec("UPDATE short_code_to_url SET short_code = ? WHERE short_code = ?", newShortCode, shortCode).Error
	if err != nil {
		if conflict := classifySQLiteConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to rename mapping: %w", err)
	}

	m.ShortCode = newShortCode
	return m, nil
}

// classifySQLiteConflict maps a uniqueness violation to the conflict error
// for the column it names. It returns nil for any other error.
func classifySQLiteConflict(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey && sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}

	// The driver message names the violated column.
	msg := err.Error()
	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
		strings.Contains(msg, "short_code_to_url.short_code"):
		return ErrShortCodeConflict
	case strings.Contains(msg, "short_code_to_url.url"):
		return ErrLongValueConflict
	default:
		return nil
	}
}

// Compile-time check.
var _ Store = (*SQLiteStore)(nil)
