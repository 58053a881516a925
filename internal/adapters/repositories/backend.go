package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"transit-tracking-service/internal/config"
	"transit-tracking-service/internal/platform/db"
	"transit-tracking-service/internal/ports"
)

// Backend is the fleet repository selected by configuration.
// DB is set only for the SQL drivers.
type Backend struct {
	Repo  ports.FleetRepository
	DB    *sql.DB
	close func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend connects the configured store driver. SQL backends get their
// schema created.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &Backend{Repo: NewMemoryRepository()}, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("open backend: ping redis %q: %w", cfg.RedisAddr, err)
		}
		return &Backend{Repo: NewRedisRepository(client), close: client.Close}, nil

	case config.DriverSQLite, config.DriverPostgres:
		var (
			conn    *sql.DB
			err     error
			dialect = DialectSQLite
		)
		if cfg.StoreDriver == config.DriverPostgres {
			dialect = DialectPostgres
			conn, err = db.Open(cfg.DatabaseURL)
		} else {
			conn, err = db.OpenSQLite(cfg.DBPath)
		}
		if err != nil {
			return nil, fmt.Errorf("open backend: %w", err)
		}
		if err := InitSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open backend: %w", err)
		}
		return &Backend{Repo: NewSQLFleetRepository(conn, dialect), DB: conn, close: conn.Close}, nil

	default:
		return nil, fmt.Errorf("open backend: unknown store driver %q", cfg.StoreDriver)
	}
}

// SeedIfEmpty loads the seed file when the backend holds no vehicles yet.
// It reports whether seeding ran.
func SeedIfEmpty(ctx context.Context, repo ports.FleetRepository, seedPath string) (bool, error) {
	if seedPath == "" {
		return false, nil
	}
	vehicles, err := repo.ListVehicles(ctx)
	if err != nil {
		return false, fmt.Errorf("seed if empty: %w", err)
	}
	if len(vehicles) > 0 {
		return false, nil
	}
	if err := SeedFromJSON(ctx, repo, seedPath); err != nil {
		return false, fmt.Errorf("seed if empty: %w", err)
	}
	return true, nil
}

var errNoSQL = errors.New("store driver has no SQL schema")

// RequireSQL returns the SQL handle of b or an error for key-value drivers.
func (b *Backend) RequireSQL() (*sql.DB, error) {
	if b.DB == nil {
		return nil, errNoSQL
	}
	return b.DB, nil
}
