package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emadnahed/shtlink/internal/config"
)

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SQLiteConfig
		want string
	}{
		{
			name: "with busy timeout",
			cfg:  config.SQLiteConfig{Path: "shtlink.db", BusyTimeout: 5 * time.Second},
			want: "file:shtlink.db?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "without busy timeout",
			cfg:  config.SQLiteConfig{Path: "/tmp/codes.db"},
			want: "file:/tmp/codes.db?_journal_mode=WAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLiteDSN(&tt.cfg))
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shtlink.db")

	db, err := OpenSQLite(ctx, &config.SQLiteConfig{Path: path, BusyTimeout: time.Second})
	require.NoError(t, err)
	assert.NoError(t, db.HealthCheck(ctx))

	var count int
	require.NoError(t, db.DB.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM short_code_to_url").Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, db.Shutdown())

	// Reopening an existing file keeps the schema.
	db, err = OpenSQLite(ctx, &config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer db.Shutdown()
	assert.NoError(t, db.HealthCheck(ctx))
}

func TestOpenSQLite_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "shtlink.db")

	_, err := OpenSQLite(context.Background(), &config.SQLiteConfig{Path: path})
	assert.Error(t, err)
}
