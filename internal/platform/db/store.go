package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Options selects and tunes the backing engine.
type Options struct {
	Driver   string // "sqlite" or "postgres"
	URL      string
	MaxConns int32
	MinConns int32
}

// Store is the open handle to the relational store. It is created once at
// startup, injected into repositories and closed on shutdown.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	// Pool is only set for postgres.
	Pool *pgxpool.Pool
}

// Open connects to the configured engine and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	switch opts.Driver {
	case "postgres":
		pool, err := openPool(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Store{DB: stdlib.OpenDBFromPool(pool), Dialect: Postgres, Pool: pool}, nil
	case "sqlite", "":
		return openSQLite(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// openPool builds the pgx pool behind a postgres store. Zero MaxConns or
// MinConns keep pgx's defaults.
func openPool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// OpenInMemory opens a private in-memory SQLite store with the schema applied.
func OpenInMemory(ctx context.Context) (*Store, error) {
	s, err := openSQLite(ctx, "file::memory:")
	if err != nil {
		return nil, err
	}
	if _, err := NewMigrator(s).Up(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		url = "file::memory:"
	}
	sqlDB, err := sql.Open("sqlite", url)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps an in-memory database alive on one connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{DB: sqlDB, Dialect: SQLite}, nil
}

func (s *Store) Close() error {
	err := s.DB.Close()
	if s.Pool != nil {
		s.Pool.Close()
	}
	return err
}
