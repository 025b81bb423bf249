package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

// gooseMu guards goose's package-level dialect and FS settings.
var gooseMu sync.Mutex

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable defaults for small services; callers can override if needed.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// OpenSQLite opens (or creates) a sqlite database at path and ensures its directory exists.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// single writer; concurrent inserts queue behind it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded schema for backend to db.
func Migrate(ctx context.Context, db *sql.DB, backend string) error {
	dialect := "postgres"
	if backend == backendSQLite {
		dialect = "sqlite3"
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(logrus.StandardLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations/"+backend); err != nil {
		return fmt.Errorf("migrate %s: %w", backend, err)
	}
	return nil
}

// OpenUserRepository connects to the credential store named by databaseURL,
// applies migrations and returns the repository plus a closer for the connection.
func OpenUserRepository(ctx context.Context, databaseURL string) (UserRepository, io.Closer, error) {
	backend, target, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	switch backend {
	case backendSQLite:
		db, err := OpenSQLite(target)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(ctx, db, backendSQLite); err != nil {
			db.Close()
			return nil, nil, err
		}
		return NewSQLiteUserRepository(db), db, nil
	default:
		pool, err := Connect(ctx, target)
		if err != nil {
			return nil, nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		err = Migrate(ctx, sqlDB, backendPostgres)
		sqlDB.Close()
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPgUserRepository(pool), poolCloser{pool}, nil
	}
}

type poolCloser struct{ pool *pgxpool.Pool }

func (p poolCloser) Close() error {
	p.pool.Close()
	return nil
}

// parseDatabaseURL returns the backend and the driver-specific target
// (a pgx DSN or a sqlite file path).
func parseDatabaseURL(raw string) (string, string, error) {
	if raw == "" {
		return "", "", errors.New("DATABASE_URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return backendPostgres, raw, nil
	case "sqlite", "sqlite3", "file":
		path := strings.TrimPrefix(raw, u.Scheme+"://")
		path = strings.TrimPrefix(path, u.Scheme+":")
		if path == "" {
			return "", "", errors.New("DATABASE_URL sqlite path is empty")
		}
		return backendSQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme %q", u.Scheme)
	}
}
