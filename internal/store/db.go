package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"otpattend/internal/fault"
)

// Reconnect policy defaults for the initial ping.
const (
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 2 * time.Second
)

// DB holds the single-writer / pooled-reader pair over one SQLite file.
// Capping the writer at one connection is what serializes concurrent
// inserts; readers go through their own pool.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens the database at path with WAL mode, pings it with bounded
// retries and fixed backoff, and returns the connection pair. A path already
// in "file:" DSN form is used verbatim, which is how tests point at shared
// in-memory databases.
func NewDB(ctx context.Context, path string, retries int, backoff time.Duration) (*DB, error) {
	if retries <= 0 {
		retries = DefaultConnectRetries
	}
	if backoff <= 0 {
		backoff = DefaultConnectBackoff
	}

	dsn := path
	if !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
			path,
		)
	}

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fault.StoreUnavailable("open writer", err)
	}
	writer.SetMaxOpenConns(1)

	if err := pingWithRetry(ctx, writer, retries, backoff); err != nil {
		_ = writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fault.StoreUnavailable("open reader", err)
	}
	reader.SetMaxOpenConns(4)

	if err := pingWithRetry(ctx, reader, retries, backoff); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, err
	}

	return &DB{Writer: writer, Reader: reader, path: path}, nil
}

// pingWithRetry attempts the ping up to retries times with a fixed delay in
// between, then gives up with a connectivity fault.
func pingWithRetry(ctx context.Context, db *sql.DB, retries int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if attempt < retries {
			log.Printf("store: ping failed (attempt %d/%d), retrying in %s: %v", attempt, retries, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fault.StoreUnavailable("ping canceled", ctx.Err())
			}
		}
	}
	return fault.StoreUnavailable(fmt.Sprintf("ping failed after %d attempts", retries), err)
}

// Close closes both connections, returning the first error.
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	var firstErr error
	if d.Reader != nil {
		if err := d.Reader.Close(); err != nil {
			firstErr = err
		}
	}
	if d.Writer != nil {
		if err := d.Writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
