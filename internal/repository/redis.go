package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emadnahed/shtlink/internal/config"
	"github.com/emadnahed/shtlink/internal/models"
)

// NewRedisClient creates a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// listScanCount is the SCAN page size and MGET batch size used by List.
const listScanCount = 500

// RedisStore implements Store on Redis. Each mapping is held under two keys:
//
//	<prefix>code:<short code>        -> JSON mapping
//	<prefix>long:<sha256(long value)> -> short code
//
// Transactions are optimistic. Every key read is WATCHed and writes are
// buffered until commit, when they are applied in a single MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store. All keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// RunInTx runs fn in an optimistic transaction. A concurrent write to any
// key read by fn makes commit fail with ErrTxAborted.
func (s *RedisStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{
			store:   s,
			rtx:     rtx,
			overlay: make(map[string]*string),
		}

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit(ctx)
	})
	if errors.Is(err, redis.TxFailedErr) {
		return ErrTxAborted
	}
	return err
}

// Get retrieves a mapping by its short code.
func (s *RedisStore) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	raw, err := s.client.Get(ctx, s.codeKey(shortCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return decodeMapping(raw)
}

// List returns every stored mapping. Code keys are found with SCAN, so
// mappings written while listing may be missed.
func (s *RedisStore) List(ctx context.Context) ([]models.Mapping, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"code:*", listScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mappings: %w", err)
	}

	mappings := make([]models.Mapping, 0, len(keys))
	for start := 0; start < len(keys); start += listScanCount {
		end := min(start+listScanCount, len(keys))

		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list mappings: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Deleted between SCAN and MGET.
				continue
			}
			m, err := decodeMapping(raw)
			if err != nil {
				return nil, err
			}
			mappings = append(mappings, *m)
		}
	}

	sortMappings(mappings)
	return mappings, nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) codeKey(shortCode string) string {
	return s.prefix + "code:" + shortCode
}

func (s *RedisStore) longKey(longValue string) string {
	sum := sha256.Sum256([]byte(longValue))
	return s.prefix + "long:" + hex.EncodeToString(sum[:])
}

type redisTx struct {
	store *RedisStore
	rtx   *redis.Tx

	// overlay holds pending writes; a nil value is a pending delete.
	overlay map[string]*string
	order   []string
}

func (t *redisTx) Insert(ctx context.Context, m *models.Mapping) error {
	codeKey := t.store.codeKey(m.ShortCode)
	longKey := t.store.longKey(m.LongValue)

	existing, err := t.read(ctx, codeKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrShortCodeConflict
	}

	owner, err := t.read(ctx, longKey)
	if err != nil {
		return err
	}
	if owner != nil {
		return ErrLongValueConflict
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return t.put(m)
}

func (t *redisTx) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	return t.get(ctx, shortCode)
}

func (t *redisTx) DeleteByLongValue(ctx context.Context, longValue string) (string, error) {
	owner, err := t.read(ctx, t.store.longKey(longValue))
	if err != nil {
		return "", err
	}
	if owner == nil {
		return "", nil
	}

	m, err := t.get(ctx, *owner)
	if errors.Is(err, ErrNotFound) {
		// Dangling reverse key.
		t.write(t.store.longKey(longValue), nil)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	t.remove(m)
	return m.ShortCode, nil
}

func (t *redisTx) Delete(ctx context.Context, shortCode string) (*models.Mapping, error) {
	m, err := t.get(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	t.remove(m)
	return m, nil
}

func (t *redisTx) Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	m, err := t.get(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if shortCode == newShortCode {
		return m, nil
	}

	taken, err := t.read(ctx, t.store.codeKey(newShortCode))
	if err != nil {
		return nil, err
	}
	if taken != nil {
		return nil, ErrShortCodeConflict
	}

	t.remove(m)
	m.ShortCode = newShortCode
	if err := t.put(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *redisTx) get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	raw, err := t.read(ctx, t.store.codeKey(shortCode))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return decodeMapping(*raw)
}

// read returns the value of key as seen by this transaction, or nil when the
// key is absent. Keys read from Redis are watched first.
func (t *redisTx) read(ctx context.Context, key string) (*string, error) {
	if v, ok := t.overlay[key]; ok {
		return v, nil
	}

	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	val, err := t.rtx.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return &val, nil
}

func (t *redisTx) put(m *models.Mapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	raw := string(data)
	code := m.ShortCode
	t.write(t.store.codeKey(m.ShortCode), &raw)
	t.write(t.store.longKey(m.LongValue), &code)
	return nil
}

func (t *redisTx) remove(m *models.Mapping) {
	t.write(t.store.codeKey(m.ShortCode), nil)
	t.write(t.store.longKey(m.LongValue), nil)
}

func (t *redisTx) write(key string, value *string) {
	if _, seen := t.overlay[key]; !seen {
		t.order = append(t.order, key)
	}
	t.overlay[key] = value
}

func (t *redisTx) commit(ctx context.Context) error {
	if len(t.order) == 0 {
		return nil
	}

	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range t.order {
			if v := t.overlay[key]; v != nil {
				pipe.Set(ctx, key, *v, 0)
			} else {
				pipe.Del(ctx, key)
			}
		}
		return nil
	})
	return err
}

func decodeMapping(raw string) (*models.Mapping, error) {
	var m models.Mapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	return &m, nil
}

// Compile-time check.
var _ Store = (*RedisStore)(nil)
