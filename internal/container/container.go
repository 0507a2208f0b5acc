// Package container wires shtlink's services into a samber/do injector.
package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/emadnahed/shtlink/internal/config"
	"github.com/emadnahed/shtlink/internal/database"
	"github.com/emadnahed/shtlink/internal/idgen"
	"github.com/emadnahed/shtlink/internal/repository"
	"github.com/emadnahed/shtlink/internal/services"
	"github.com/emadnahed/shtlink/pkg/logger"
)

// New builds an injector with every package registered. Store connections
// opened later through the injector are bound to ctx.
func New(ctx context.Context, cfg *config.Config, logOutput io.Writer) *do.Injector {
	injector := do.New()

	ConfigPackage(injector, cfg)
	LoggerPackage(injector, logOutput)
	SQLitePackage(ctx, injector)
	PostgresPackage(ctx, injector)
	RedisPackage(ctx, injector)
	StorePackage(injector)
	EnginePackage(injector)

	return injector
}

// ConfigPackage registers the loaded configuration.
func ConfigPackage(injector *do.Injector, cfg *config.Config) {
	do.ProvideValue(injector, cfg)
}

// LoggerPackage registers the application logger.
func LoggerPackage(injector *do.Injector, output io.Writer) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := logger.New(output, cfg.App.LogLevel, cfg.App.LogFormat)

		switch {
		case cfg.App.IsDevelopment():
			log = log.WithOptions(zap.Development())
		case cfg.App.IsProduction():
			log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
			}))
		}
		return log.With(zap.String("env", cfg.App.Env)), nil
	})
}

// SQLitePackage registers the SQLite database. It opens the file on first use.
func SQLitePackage(ctx context.Context, injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*database.SQLite, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return database.OpenSQLite(ctx, &cfg.SQLite)
	})
}

// PostgresPackage registers the PostgreSQL pool. It connects on first use,
// giving up after the configured connect timeout.
func PostgresPackage(ctx context.Context, injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*database.Pool, error) {
		cfg := do.MustInvoke[*config.Config](i)

		ctx, cancel := connectContext(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
		return database.NewPool(ctx, &cfg.Database)
	})
}

// redisConn lets the injector close the client on shutdown.
type redisConn struct {
	*redis.Client
}

func (c *redisConn) Shutdown() error {
	return c.Close()
}

// RedisPackage registers the Redis client. It connects on first use,
// giving up after the configured connect timeout.
func RedisPackage(ctx context.Context, injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*redisConn, error) {
		cfg := do.MustInvoke[*config.Config](i)

		ctx, cancel := connectContext(ctx, cfg.Redis.ConnectTimeout)
		defer cancel()
		client, err := repository.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &redisConn{Client: client}, nil
	})
}

// StorePackage registers the Store for the configured backend.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (repository.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)

		switch {
		case cfg.Store.Backend == config.BackendMemory:
			log.Info("using in-memory store")
			return repository.NewMemoryStore(), nil

		case cfg.SQLiteEnabled():
			db, err := do.Invoke[*database.SQLite](i)
			if err != nil {
				return nil, err
			}
			log.Info("using sqlite store", zap.String("path", cfg.SQLite.Path))
			return repository.NewSQLiteStore(db), nil

		case cfg.DatabaseEnabled():
			pool, err := do.Invoke[*database.Pool](i)
			if err != nil {
				return nil, err
			}
			log.Info("using postgres store", zap.String("host", cfg.Database.Host))
			return repository.NewPostgresStore(pool), nil

		case cfg.RedisEnabled():
			conn, err := do.Invoke[*redisConn](i)
			if err != nil {
				return nil, err
			}
			log.Info("using redis store", zap.String("addr", cfg.Redis.Address()))
			return repository.NewRedisStore(conn.Client, cfg.Redis.KeyPrefix), nil

		default:
			return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
		}
	})
}

// connectContext bounds a connection attempt. A zero timeout leaves ctx
// unbounded.
func connectContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// EnginePackage registers the code generator and the allocation engine.
func EnginePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*idgen.Generator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return idgen.NewGenerator(cfg.Codegen.GeneratorConfig())
	})

	do.Provide(injector, func(i *do.Injector) (*services.AllocationEngine, error) {
		cfg := do.MustInvoke[*config.Config](i)

		store, err := do.Invoke[repository.Store](i)
		if err != nil {
			return nil, err
		}
		gen, err := do.Invoke[*idgen.Generator](i)
		if err != nil {
			return nil, err
		}
		log := do.MustInvoke[*zap.Logger](i)

		return services.NewAllocationEngine(store, gen, log, cfg.Allocation.MaxAttempts), nil
	})
}
