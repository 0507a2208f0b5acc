// Package repository handles data persistence.
package repository

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/emadnahed/shtlink/internal/models"
)

// Store errors. Conflict errors name the uniqueness constraint an insert or
// rename violated.
var (
	ErrNotFound          = errors.New("mapping not found")
	ErrShortCodeConflict = errors.New("short code already exists")
	ErrLongValueConflict = errors.New("long value already mapped")
	ErrTxAborted         = errors.New("transaction aborted by concurrent update")
)

// Store is the persistence boundary of the allocation engine. It enforces
// uniqueness of both the short code and the long value.
type Store interface {
	// RunInTx runs fn in a transaction. Writes made through tx are committed
	// when fn returns nil and discarded on every other exit path, panics
	// included. Conflicts may surface either from a Tx method or from commit.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get looks up a mapping by short code outside any transaction.
	// It returns ErrNotFound when the code is not stored.
	Get(ctx context.Context, shortCode string) (*models.Mapping, error)

	// List returns every stored mapping ordered by creation time, then by
	// short code.
	List(ctx context.Context) ([]models.Mapping, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// Tx is a transactional session handed to RunInTx callbacks. It must not be
// used after the callback returns.
type Tx interface {
	// Insert stores a new mapping. It returns ErrShortCodeConflict or
	// ErrLongValueConflict when either value is already stored. CreatedAt is
	// filled in when zero.
	Insert(ctx context.Context, m *models.Mapping) error

	// Get looks up a mapping by short code.
	Get(ctx context.Context, shortCode string) (*models.Mapping, error)

	// DeleteByLongValue removes the mapping holding longValue, if any, and
	// returns the short code it was stored under ("" when absent).
	DeleteByLongValue(ctx context.Context, longValue string) (string, error)

	// Delete removes the mapping keyed by shortCode and returns it.
	Delete(ctx context.Context, shortCode string) (*models.Mapping, error)

	// Rename re-keys the mapping at shortCode to newShortCode and returns the
	// updated mapping. It returns ErrNotFound or ErrShortCodeConflict.
	Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error)
}

// IsConflict reports whether err is a uniqueness conflict of either kind.
func IsConflict(err error) bool {
	return errors.Is(err, ErrShortCodeConflict) || errors.Is(err, ErrLongValueConflict)
}

// sortMappings orders mappings by creation time, then by short code.
func sortMappings(ms []models.Mapping) {
	slices.SortFunc(ms, func(a, b models.Mapping) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ShortCode, b.ShortCode)
	})
}
