package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Register sqlite as database/sql driver
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLiteFile is the database file created inside the data directory.
const SQLiteFile = "policyguard.db"

// Config selects and locates the backend.
type Config struct {
	Driver      string
	DataDir     string
	PostgresDSN string
}

// Open builds the backend named by cfg.Driver. SQL backends are pinged with a
// short retry so a database that is still starting does not fail boot.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		logger.Info("using in-memory storage")
		return NewMemoryBackend(), nil

	case DriverSQLite:
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("Open: sqlite requires a data directory")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, storageErr("Open", err)
		}
		path := filepath.Join(cfg.DataDir, SQLiteFile)
		db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, storageErr("Open", err)
		}
		db.SetMaxOpenConns(1)
		b, err := openSQL(ctx, db, DialectSQLite, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite storage opened", zap.String("path", path))
		return b, nil

	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("Open: postgres requires a DSN")
		}
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, storageErr("Open", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		b, err := openSQL(ctx, db, DialectPostgres, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres storage connected")
		return b, nil

	default:
		return nil, fmt.Errorf("Open: unknown storage driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQLBackend, error) {
	attempt := 0
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
	).Do(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("storage ping failed",
				zap.String("dialect", string(dialect)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, storageErr("Open", err)
	}

	b, err := NewSQLBackend(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}
