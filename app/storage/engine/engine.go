// Package engine provides database connectivity for the model stores. It wraps sqlx.DB
// with the engine type, so the stores can pick dialect-specific queries, and with a
// group id allowing several logical classifiers to share one database.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver loaded here
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Type is a type of database engine
type Type string

// enum of supported database engines
const (
	Unknown  Type = ""
	Sqlite   Type = "sqlite"
	Postgres Type = "postgres"
)

// SQL is a wrapper for sqlx.DB with the engine type and group id.
type SQL struct {
	sqlx.DB
	gid    string // group id, to allow per-group storage in the same database
	dbType Type
}

// NewSqlite creates a new sqlite database
func NewSqlite(file, gid string) (*SQL, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite %q: %w", file, err)
	}
	return &SQL{DB: *db, gid: gid, dbType: Sqlite}, nil
}

// NewPostgres creates a new postgres connection, retrying for a while to survive
// database startup races in containerized deployments.
func NewPostgres(ctx context.Context, conn, gid string) (*SQL, error) {
	var db *sqlx.DB
	err := repeater.NewDefault(5, time.Second).Do(ctx, func() error {
		var e error
		db, e = sqlx.ConnectContext(ctx, "postgres", conn)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQL{DB: *db, gid: gid, dbType: Postgres}, nil
}

// GID returns the group id
func (e *SQL) GID() string { return e.gid }

// Type returns the database engine type
func (e *SQL) Type() Type { return e.dbType }

// MakeLock creates a lock appropriate for the engine. Sqlite needs app-level locking,
// other engines handle concurrent writers themselves.
func (e *SQL) MakeLock() RWLocker {
	if e.dbType == Sqlite {
		return new(sync.RWMutex)
	}
	return &NoopLocker{}
}

// InitDB executes schema statements in a single transaction. All statements are
// expected to be idempotent (CREATE ... IF NOT EXISTS).
func InitDB(ctx context.Context, db *SQL, statements ...string) error {
	if db == nil {
		return fmt.Errorf("db connection is nil")
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range statements {
		if _, err = tx.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
