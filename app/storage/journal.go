// Package storage persists the classifier's life outside the process: a training
// journal recording every learned document, and model snapshots produced by the
// classifier's serializer. Both work on sqlite and postgres through the engine wrapper.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/umputun/docclass/app/storage/engine"
)

// Journal is an append-only log of training documents. Replaying it against a fresh
// classifier reproduces the model state; entries are never updated or deleted.
type Journal struct {
	*engine.SQL
	engine.RWLocker
}

// JournalEntry is a single recorded training document.
type JournalEntry struct {
	ID        int64     `db:"id"`
	GID       string    `db:"gid"`
	Timestamp time.Time `db:"timestamp"`
	Category  string    `db:"category"`
	Document  string    `db:"document"`
}

var journalSchema = engine.Query{
	Sqlite: `CREATE TABLE IF NOT EXISTS journal (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        gid TEXT NOT NULL DEFAULT '',
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        category TEXT NOT NULL,
        document TEXT NOT NULL
    )`,
	Postgres: `CREATE TABLE IF NOT EXISTS journal (
        id SERIAL PRIMARY KEY,
        gid TEXT NOT NULL DEFAULT '',
        timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        category TEXT NOT NULL,
        document TEXT NOT NULL
    )`,
}

var journalIndexes = engine.Same(`CREATE INDEX IF NOT EXISTS idx_journal_gid ON journal(gid)`)

// NewJournal creates the journal store and initializes its schema.
func NewJournal(ctx context.Context, db *engine.SQL) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	schema, err := journalSchema.For(db.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to pick journal schema: %w", err)
	}
	indexes, err := journalIndexes.For(db.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to pick journal indexes: %w", err)
	}
	if err := engine.InitDB(ctx, db, schema, indexes); err != nil {
		return nil, fmt.Errorf("failed to init journal storage: %w", err)
	}

	return &Journal{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Append records one training document and returns its journal id.
func (j *Journal) Append(ctx context.Context, category, document string) (int64, error) {
	j.Lock()
	defer j.Unlock()

	if j.Type() == engine.Postgres {
		var id int64
		err := j.GetContext(ctx, &id,
			`INSERT INTO journal (gid, category, document) VALUES ($1, $2, $3) RETURNING id`,
			j.GID(), category, document)
		if err != nil {
			return 0, fmt.Errorf("failed to append journal entry: %w", err)
		}
		return id, nil
	}

	res, err := j.ExecContext(ctx,
		`INSERT INTO journal (gid, category, document) VALUES (?, ?, ?)`,
		j.GID(), category, document)
	if err != nil {
		return 0, fmt.Errorf("failed to append journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get journal entry id: %w", err)
	}
	return id, nil
}

// After returns all entries with id greater than the given one, oldest first.
// Pass 0 to read the whole journal.
func (j *Journal) After(ctx context.Context, id int64) ([]JournalEntry, error) {
	j.RLock()
	defer j.RUnlock()

	query := j.Rebind(`SELECT id, gid, timestamp, category, document FROM journal
        WHERE gid = ? AND id > ? ORDER BY id`)
	var res []JournalEntry
	if err := j.SelectContext(ctx, &res, query, j.GID(), id); err != nil {
		return nil, fmt.Errorf("failed to read journal entries after %d: %w", id, err)
	}
	return res, nil
}

// LastID returns the id of the newest journal entry, 0 for an empty journal.
func (j *Journal) LastID(ctx context.Context) (int64, error) {
	j.RLock()
	defer j.RUnlock()

	query := j.Rebind(`SELECT COALESCE(MAX(id), 0) FROM journal WHERE gid = ?`)
	var id int64
	if err := j.GetContext(ctx, &id, query, j.GID()); err != nil {
		return 0, fmt.Errorf("failed to get last journal id: %w", err)
	}
	return id, nil
}

// Count returns the number of journal entries for the group.
func (j *Journal) Count(ctx context.Context) (int, error) {
	j.RLock()
	defer j.RUnlock()

	query := j.Rebind(`SELECT COUNT(*) FROM journal WHERE gid = ?`)
	var count int
	if err := j.GetContext(ctx, &count, query, j.GID()); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}
