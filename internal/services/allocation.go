// Package services contains business logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emadnahed/shtlink/internal/idgen"
	"github.com/emadnahed/shtlink/internal/metrics"
	"github.com/emadnahed/shtlink/internal/models"
	"github.com/emadnahed/shtlink/internal/repository"
)

// Allocation errors.
var (
	ErrOversizedInput      = fmt.Errorf("oversized input: %w", models.ErrLongValueTooLong)
	ErrShortCodeInUse      = errors.New("short code is mapped to a different value")
	ErrConcurrentUpdate    = errors.New("mapping changed concurrently, try again")
	ErrAllocationExhausted = idgen.ErrAllocationExhausted
	ErrNotFound            = repository.ErrNotFound
	ErrEmptyShortCode      = models.ErrEmptyShortCode
)

// Allocator maps long values to short codes and back.
type Allocator interface {
	Encode(ctx context.Context, longValue string) (string, error)
	Decode(ctx context.Context, shortCode string) (string, bool, error)
	Assign(ctx context.Context, longValue, shortCode string) (*models.Mapping, error)
	Delete(ctx context.Context, shortCode string) (string, error)
	Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error)
}

// txRetries bounds how often Assign, Delete and Rename rerun a transaction
// the store aborted because of a concurrent write.
const txRetries = 3

// Stats holds allocation counters.
type Stats struct {
	Encodes        int64
	Attempts       int64
	CodeCollisions int64
	LongCollisions int64
	Reencodes      int64
	Exhausted      int64
}

// AllocationEngine implements Allocator on top of a Store. It holds no locks
// of its own; the store's uniqueness constraints arbitrate between
// concurrent callers. Concurrent re-encodes of the same long value are
// last-writer-wins.
type AllocationEngine struct {
	store       repository.Store
	gen         *idgen.Generator
	src         idgen.Source
	logger      *zap.Logger
	maxAttempts int

	encodes        atomic.Int64
	attempts       atomic.Int64
	codeCollisions atomic.Int64
	longCollisions atomic.Int64
	reencodes      atomic.Int64
	exhausted      atomic.Int64
}

// NewAllocationEngine creates an engine drawing randomness from crypto/rand.
func NewAllocationEngine(store repository.Store, gen *idgen.Generator, logger *zap.Logger, maxAttempts int) *AllocationEngine {
	return NewAllocationEngineWithSource(store, gen, idgen.CryptoSource{}, logger, maxAttempts)
}

// NewAllocationEngineWithSource creates an engine with a custom randomness
// source. maxAttempts below 1 falls back to idgen.DefaultMaxAttempts.
func NewAllocationEngineWithSource(store repository.Store, gen *idgen.Generator, src idgen.Source, logger *zap.Logger, maxAttempts int) *AllocationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = idgen.DefaultMaxAttempts
	}
	return &AllocationEngine{
		store:       store,
		gen:         gen,
		src:         src,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Encode allocates a fresh short code for longValue and persists the
// mapping. If longValue is already mapped, its record is replaced by one
// under a new code and the old code stops resolving.
func (e *AllocationEngine) Encode(ctx context.Context, longValue string) (string, error) {
	if err := models.ValidateLongValue(longValue); err != nil {
		metrics.RecordAllocation(metrics.OutcomeRejected, 0)
		return "", ErrOversizedInput
	}

	e.encodes.Add(1)
	chain := e.gen.NewChain(e.src, e.maxAttempts)
	log := e.logger.With(zap.String("chain_id", uuid.NewString()))

	replace := false
	for {
		code, err := chain.Next(ctx)
		if err != nil {
			e.attempts.Add(int64(chain.Attempts()))
			if errors.Is(err, idgen.ErrAllocationExhausted) {
				e.exhausted.Add(1)
				metrics.RecordAllocation(metrics.OutcomeExhausted, chain.Attempts())
				log.Error("short code allocation exhausted",
					zap.Int("attempts", chain.Attempts()),
					zap.Int("repeats", chain.Repeats()),
					zap.Uint64("multiplier", chain.Multiplier()))
				return "", ErrAllocationExhausted
			}
			metrics.RecordAllocation(metrics.OutcomeError, chain.Attempts())
			return "", err
		}

		err = e.insert(ctx, code, longValue, replace)
		switch {
		case err == nil:
			e.attempts.Add(int64(chain.Attempts()))
			outcome := metrics.OutcomeAllocated
			if replace {
				e.reencodes.Add(1)
				outcome = metrics.OutcomeReplaced
				log.Info("long value re-encoded", zap.String("short_code", code))
			}
			metrics.RecordAllocation(outcome, chain.Attempts())
			return code, nil

		case errors.Is(err, repository.ErrShortCodeConflict), errors.Is(err, repository.ErrTxAborted):
			e.codeCollisions.Add(1)
			metrics.RecordCollision(metrics.ColumnShortCode)
			log.Debug("short code collision",
				zap.String("short_code", code),
				zap.Int("attempt", chain.Attempts()),
				zap.Error(err))

		case errors.Is(err, repository.ErrLongValueConflict):
			e.longCollisions.Add(1)
			metrics.RecordCollision(metrics.ColumnLongValue)
			log.Debug("long value already mapped, replacing", zap.Int("attempt", chain.Attempts()))
			replace = true

		default:
			e.attempts.Add(int64(chain.Attempts()))
			metrics.RecordAllocation(metrics.OutcomeError, chain.Attempts())
			log.Error("store failure during allocation", zap.Error(err))
			return "", err
		}

		if err := chain.Collide(); err != nil {
			e.attempts.Add(int64(chain.Attempts()))
			metrics.RecordAllocation(metrics.OutcomeError, chain.Attempts())
			return "", err
		}
	}
}

// insert persists one candidate in its own transaction. With replace set,
// the existing record for longValue is removed in the same transaction, and
// a candidate equal to the removed code is refused so the code changes.
func (e *AllocationEngine) insert(ctx context.Context, code, longValue string, replace bool) error {
	op := "insert"
	if replace {
		op = "replace"
	}
	start := time.Now()
	defer func() { metrics.RecordStoreOp(op, time.Since(start)) }()

	return e.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if replace {
			old, err := tx.DeleteByLongValue(ctx, longValue)
			if err != nil {
				return err
			}
			if old == code {
				return repository.ErrShortCodeConflict
			}
		}
		return tx.Insert(ctx, &models.Mapping{ShortCode: code, LongValue: longValue})
	})
}

// Decode resolves a short code. An unknown code yields ("", false, nil).
func (e *AllocationEngine) Decode(ctx context.Context, shortCode string) (string, bool, error) {
	start := time.Now()
	m, err := e.store.Get(ctx, shortCode)
	metrics.RecordStoreOp("get", time.Since(start))

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordDecode(false)
			return "", false, nil
		}
		e.logger.Error("store failure during decode", zap.String("short_code", shortCode), zap.Error(err))
		return "", false, err
	}

	metrics.RecordDecode(true)
	return m.LongValue, true, nil
}

// Assign stores a caller-chosen short code for longValue. A code already
// held by longValue is returned as is. If longValue is mapped under another
// code, that record is replaced.
func (e *AllocationEngine) Assign(ctx context.Context, longValue, shortCode string) (*models.Mapping, error) {
	if err := models.ValidateLongValue(longValue); err != nil {
		return nil, ErrOversizedInput
	}
	if err := models.ValidateShortCode(shortCode); err != nil {
		return nil, err
	}

	var result *models.Mapping
	start := time.Now()
	err := e.runTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.Get(ctx, shortCode)
		switch {
		case err == nil:
			if existing.LongValue != longValue {
				return ErrShortCodeInUse
			}
			result = existing
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		old, err := tx.DeleteByLongValue(ctx, longValue)
		if err != nil {
			return err
		}

		m := &models.Mapping{ShortCode: shortCode, LongValue: longValue}
		if err := tx.Insert(ctx, m); err != nil {
			return err
		}
		if old != "" {
			e.logger.Info("long value reassigned",
				zap.String("old_short_code", old),
				zap.String("short_code", shortCode))
		}
		result = m
		return nil
	})
	metrics.RecordStoreOp("assign", time.Since(start))

	if err != nil {
		if errors.Is(err, repository.ErrShortCodeConflict) {
			return nil, ErrShortCodeInUse
		}
		return nil, err
	}
	return result, nil
}

// Delete removes the mapping keyed by shortCode and returns the long value
// it held.
func (e *AllocationEngine) Delete(ctx context.Context, shortCode string) (string, error) {
	var deleted *models.Mapping
	start := time.Now()
	err := e.runTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		deleted, err = tx.Delete(ctx, shortCode)
		return err
	})
	metrics.RecordStoreOp("delete", time.Since(start))

	if err != nil {
		return "", err
	}

	e.logger.Info("short code deleted", zap.String("short_code", shortCode))
	return deleted.LongValue, nil
}

// Rename moves the mapping at shortCode to newShortCode.
func (e *AllocationEngine) Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	if err := models.ValidateShortCode(newShortCode); err != nil {
		return nil, err
	}

	var renamed *models.Mapping
	start := time.Now()
	err := e.runTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		renamed, err = tx.Rename(ctx, shortCode, newShortCode)
		return err
	})
	metrics.RecordStoreOp("rename", time.Since(start))

	if err != nil {
		if errors.Is(err, repository.ErrShortCodeConflict) {
			return nil, ErrShortCodeInUse
		}
		return nil, err
	}

	e.logger.Info("short code renamed",
		zap.String("short_code", shortCode),
		zap.String("new_short_code", newShortCode))
	return renamed, nil
}

// List returns every stored mapping.
func (e *AllocationEngine) List(ctx context.Context) ([]models.Mapping, error) {
	start := time.Now()
	mappings, err := e.store.List(ctx)
	metrics.RecordStoreOp("list", time.Since(start))
	return mappings, err
}

// runTx runs fn in a store transaction, rerunning it when the store aborts
// the commit because of a concurrent write. Once the retries are spent the
// abort surfaces as ErrConcurrentUpdate.
func (e *AllocationEngine) runTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txRetries; attempt++ {
		err = e.store.RunInTx(ctx, fn)
		if !errors.Is(err, repository.ErrTxAborted) {
			return err
		}
		e.logger.Debug("transaction aborted by concurrent update", zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
}

// Stats returns the current allocation statistics.
func (e *AllocationEngine) Stats() Stats {
	return Stats{
		Encodes:        e.encodes.Load(),
		Attempts:       e.attempts.Load(),
		CodeCollisions: e.codeCollisions.Load(),
		LongCollisions: e.longCollisions.Load(),
		Reencodes:      e.reencodes.Load(),
		Exhausted:      e.exhausted.Load(),
	}
}

// ResetStats resets all statistics to zero.
func (e *AllocationEngine) ResetStats() {
	e.encodes.Store(0)
	e.attempts.Store(0)
	e.codeCollisions.Store(0)
	e.longCollisions.Store(0)
	e.reencodes.Store(0)
	e.exhausted.Store(0)
}

// Compile-time check.
var _ Allocator = (*AllocationEngine)(nil)
