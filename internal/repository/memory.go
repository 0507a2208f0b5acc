package repository

import (
	"context"
	"sync"
	"time"

	"github.com/emadnahed/shtlink/internal/models"
)

// MemoryStore is an in-memory Store. Transactions are serialized by a single
// lock and rolled back from an undo journal.
type MemoryStore struct {
	mu     sync.RWMutex
	byCode map[string]models.Mapping // short code -> mapping
	byLong map[string]string         // long value -> short code
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode: make(map[string]models.Mapping),
		byLong: make(map[string]string),
		now:    time.Now,
	}
}

// RunInTx runs fn with exclusive access to the store.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
		tx.closed = true
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	committed = true
	return nil
}

// Get looks up a mapping by short code.
func (s *MemoryStore) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byCode[shortCode]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCode)
}

// List returns a copy of every stored mapping.
func (s *MemoryStore) List(ctx context.Context) ([]models.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Mapping, 0, len(s.byCode))
	for _, m := range s.byCode {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sortMappings(out)
	return out, nil
}

type memoryTx struct {
	s      *MemoryStore
	undo   []func()
	closed bool
}

func (tx *memoryTx) Insert(_ context.Context, m *models.Mapping) error {
	tx.checkOpen()

	if _, ok := tx.s.byCode[m.ShortCode]; ok {
		return ErrShortCodeConflict
	}
	if _, ok := tx.s.byLong[m.LongValue]; ok {
		return ErrLongValueConflict
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = tx.s.now().UTC()
	}
	tx.put(*m)
	return nil
}

func (tx *memoryTx) Get(_ context.Context, shortCode string) (*models.Mapping, error) {
	tx.checkOpen()

	m, ok := tx.s.byCode[shortCode]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (tx *memoryTx) DeleteByLongValue(_ context.Context, longValue string) (string, error) {
	tx.checkOpen()

	code, ok := tx.s.byLong[longValue]
	if !ok {
		return "", nil
	}
	tx.remove(tx.s.byCode[code])
	return code, nil
}

func (tx *memoryTx) Delete(_ context.Context, shortCode string) (*models.Mapping, error) {
	tx.checkOpen()

	m, ok := tx.s.byCode[shortCode]
	if !ok {
		return nil, ErrNotFound
	}
	tx.remove(m)
	return &m, nil
}

func (tx *memoryTx) Rename(_ context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	tx.checkOpen()

	m, ok := tx.s.byCode[shortCode]
	if !ok {
		return nil, ErrNotFound
	}
	if shortCode == newShortCode {
		return &m, nil
	}
	if _, taken := tx.s.byCode[newShortCode]; taken {
		return nil, ErrShortCodeConflict
	}

	tx.remove(m)
	m.ShortCode = newShortCode
	tx.put(m)
	return &m, nil
}

// put stores m and journals its removal.
func (tx *memoryTx) put(m models.Mapping) {
	tx.s.byCode[m.ShortCode] = m
	tx.s.byLong[m.LongValue] = m.ShortCode
	tx.undo = append(tx.undo, func() {
		delete(tx.s.byCode, m.ShortCode)
		delete(tx.s.byLong, m.LongValue)
	})
}

// remove deletes m and journals its restoration.
func (tx *memoryTx) remove(m models.Mapping) {
	delete(tx.s.byCode, m.ShortCode)
	delete(tx.s.byLong, m.LongValue)
	tx.undo = append(tx.undo, func() {
		tx.s.byCode[m.ShortCode] = m
		tx.s.byLong[m.LongValue] = m.ShortCode
	})
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) checkOpen() {
	if tx.closed {
		panic("repository: memory transaction used after it finished")
	}
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)
