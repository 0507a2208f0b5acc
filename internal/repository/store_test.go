package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emadnahed/shtlink/internal/models"
)

var errBoom = errors.New("boom")

// uniqueSuffix keeps keys from colliding across runs against shared backends.
func uniqueSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func insert(ctx context.Context, t *testing.T, s Store, code, long string) {
	t.Helper()
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, &models.Mapping{ShortCode: code, LongValue: long})
	})
	require.NoError(t, err)
}

// testStoreContract exercises the behavior every Store backend must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert then get", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		code, long := "a"+sfx, "https://example.com/"+sfx

		m := &models.Mapping{ShortCode: code, LongValue: long}
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Insert(ctx, m)
		})
		require.NoError(t, err)
		assert.False(t, m.CreatedAt.IsZero())

		got, err := s.Get(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, code, got.ShortCode)
		assert.Equal(t, long, got.LongValue)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing"+uniqueSuffix())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("short code conflict", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		insert(ctx, t, s, "b"+sfx, "https://example.com/first/"+sfx)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Insert(ctx, &models.Mapping{ShortCode: "b" + sfx, LongValue: "https://example.com/second/" + sfx})
		})
		assert.ErrorIs(t, err, ErrShortCodeConflict)
		assert.True(t, IsConflict(err))

		got, err := s.Get(ctx, "b"+sfx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/first/"+sfx, got.LongValue)
	})

	t.Run("long value conflict", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		long := "https://example.com/same/" + sfx
		insert(ctx, t, s, "c"+sfx, long)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Insert(ctx, &models.Mapping{ShortCode: "d" + sfx, LongValue: long})
		})
		assert.ErrorIs(t, err, ErrLongValueConflict)

		_, err = s.Get(ctx, "d"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rollback on error", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Insert(ctx, &models.Mapping{ShortCode: "e" + sfx, LongValue: "https://example.com/e/" + sfx}); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		_, err = s.Get(ctx, "e"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("conflict discards earlier writes", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		insert(ctx, t, s, "f"+sfx, "https://example.com/f/"+sfx)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.DeleteByLongValue(ctx, "https://example.com/f/"+sfx); err != nil {
				return err
			}
			if err := tx.Insert(ctx, &models.Mapping{ShortCode: "g" + sfx, LongValue: "https://example.com/g/" + sfx}); err != nil {
				return err
			}
			return tx.Insert(ctx, &models.Mapping{ShortCode: "g" + sfx, LongValue: "https://example.com/h/" + sfx})
		})
		assert.ErrorIs(t, err, ErrShortCodeConflict)

		got, err := s.Get(ctx, "f"+sfx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/f/"+sfx, got.LongValue)

		_, err = s.Get(ctx, "g"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("replace long value atomically", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		long := "https://example.com/replace/" + sfx
		insert(ctx, t, s, "i"+sfx, long)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			removed, err := tx.DeleteByLongValue(ctx, long)
			if err != nil {
				return err
			}
			assert.Equal(t, "i"+sfx, removed)
			return tx.Insert(ctx, &models.Mapping{ShortCode: "j" + sfx, LongValue: long})
		})
		require.NoError(t, err)

		_, err = s.Get(ctx, "i"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.Get(ctx, "j"+sfx)
		require.NoError(t, err)
		assert.Equal(t, long, got.LongValue)
	})

	t.Run("delete by missing long value", func(t *testing.T) {
		s := newStore(t)
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			removed, err := tx.DeleteByLongValue(ctx, "https://example.com/nothing/"+uniqueSuffix())
			assert.Empty(t, removed)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("tx sees its own writes", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Insert(ctx, &models.Mapping{ShortCode: "k" + sfx, LongValue: "https://example.com/k/" + sfx}); err != nil {
				return err
			}
			got, err := tx.Get(ctx, "k"+sfx)
			if err != nil {
				return err
			}
			assert.Equal(t, "https://example.com/k/"+sfx, got.LongValue)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		long := "https://example.com/delete/" + sfx
		insert(ctx, t, s, "l"+sfx, long)

		var deleted *models.Mapping
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			deleted, err = tx.Delete(ctx, "l"+sfx)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, long, deleted.LongValue)

		_, err = s.Get(ctx, "l"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)

		// The long value is free again.
		insert(ctx, t, s, "m"+sfx, long)
	})

	t.Run("delete missing", func(t *testing.T) {
		s := newStore(t)
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Delete(ctx, "missing"+uniqueSuffix())
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rename", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		long := "https://example.com/rename/" + sfx
		insert(ctx, t, s, "n"+sfx, long)

		var renamed *models.Mapping
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			renamed, err = tx.Rename(ctx, "n"+sfx, "o"+sfx)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "o"+sfx, renamed.ShortCode)
		assert.Equal(t, long, renamed.LongValue)

		_, err = s.Get(ctx, "n"+sfx)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.Get(ctx, "o"+sfx)
		require.NoError(t, err)
		assert.Equal(t, long, got.LongValue)

		// The reverse index follows the rename.
		err = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Insert(ctx, &models.Mapping{ShortCode: "p" + sfx, LongValue: long})
		})
		assert.ErrorIs(t, err, ErrLongValueConflict)
	})

	t.Run("rename onto taken code", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		insert(ctx, t, s, "q"+sfx, "https://example.com/q/"+sfx)
		insert(ctx, t, s, "r"+sfx, "https://example.com/r/"+sfx)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Rename(ctx, "q"+sfx, "r"+sfx)
			return err
		})
		assert.ErrorIs(t, err, ErrShortCodeConflict)

		got, err := s.Get(ctx, "q"+sfx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/q/"+sfx, got.LongValue)
	})

	t.Run("rename missing", func(t *testing.T) {
		s := newStore(t)
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Rename(ctx, "missing"+uniqueSuffix(), "s"+uniqueSuffix())
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		sfx := uniqueSuffix()
		insert(ctx, t, s, "t"+sfx, "https://example.com/t/"+sfx)
		insert(ctx, t, s, "u"+sfx, "https://example.com/u/"+sfx)
		insert(ctx, t, s, "v"+sfx, "https://example.com/v/"+sfx)

		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Delete(ctx, "v"+sfx)
			return err
		})
		require.NoError(t, err)

		all, err := s.List(ctx)
		require.NoError(t, err)

		// Shared backends may hold rows from other runs.
		got := make(map[string]string)
		for _, m := range all {
			if strings.HasSuffix(m.ShortCode, sfx) {
				got[m.ShortCode] = m.LongValue
				assert.False(t, m.CreatedAt.IsZero())
			}
		}
		assert.Equal(t, map[string]string{
			"t" + sfx: "https://example.com/t/" + sfx,
			"u" + sfx: "https://example.com/u/" + sfx,
		}, got)

		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt), "list is ordered by creation time")
		}
	})

	t.Run("health check", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.HealthCheck(ctx))
	})
}
