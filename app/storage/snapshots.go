package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/docclass/app/storage/engine"
)

// ErrNoSnapshot is returned when a requested snapshot doesn't exist.
var ErrNoSnapshot = errors.New("no snapshot found")

// Snapshots stores serialized model states. Each record remembers the journal position
// it was taken at, so the startup sequence can replay only newer journal entries.
type Snapshots struct {
	*engine.SQL
	engine.RWLocker
}

// SnapshotRecord is a single persisted model state.
type SnapshotRecord struct {
	ID        int64     `db:"id"`
	GID       string    `db:"gid"`
	Timestamp time.Time `db:"timestamp"`
	JournalID int64     `db:"journal_id"`
	Model     []byte    `db:"model"`
}

var snapshotsSchema = engine.Query{
	Sqlite: `CREATE TABLE IF NOT EXISTS snapshots (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        gid TEXT NOT NULL DEFAULT '',
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        journal_id INTEGER NOT NULL DEFAULT 0,
        model TEXT NOT NULL
    )`,
	Postgres: `CREATE TABLE IF NOT EXISTS snapshots (
        id SERIAL PRIMARY KEY,
        gid TEXT NOT NULL DEFAULT '',
        timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        journal_id BIGINT NOT NULL DEFAULT 0,
        model TEXT NOT NULL
    )`,
}

var snapshotsIndexes = engine.Same(`CREATE INDEX IF NOT EXISTS idx_snapshots_gid ON snapshots(gid)`)

// NewSnapshots creates the snapshots store and initializes its schema.
func NewSnapshots(ctx context.Context, db *engine.SQL) (*Snapshots, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	schema, err := snapshotsSchema.For(db.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to pick snapshots schema: %w", err)
	}
	indexes, err := snapshotsIndexes.For(db.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to pick snapshots indexes: %w", err)
	}
	if err := engine.InitDB(ctx, db, schema, indexes); err != nil {
		return nil, fmt.Errorf("failed to init snapshots storage: %w", err)
	}

	return &Snapshots{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Save persists a serialized model taken at the given journal position and returns
// the snapshot id.
func (s *Snapshots) Save(ctx context.Context, model []byte, journalID int64) (int64, error) {
	s.Lock()
	defer s.Unlock()

	if s.Type() == engine.Postgres {
		var id int64
		err := s.GetContext(ctx, &id,
			`INSERT INTO snapshots (gid, journal_id, model) VALUES ($1, $2, $3) RETURNING id`,
			s.GID(), journalID, string(model))
		if err != nil {
			return 0, fmt.Errorf("failed to save snapshot: %w", err)
		}
		return id, nil
	}

	res, err := s.ExecContext(ctx,
		`INSERT INTO snapshots (gid, journal_id, model) VALUES (?, ?, ?)`,
		s.GID(), journalID, string(model))
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot id: %w", err)
	}
	return id, nil
}

// Latest returns the most recent snapshot, ErrNoSnapshot if none exists.
func (s *Snapshots) Latest(ctx context.Context) (SnapshotRecord, error) {
	s.RLock()
	defer s.RUnlock()

	query := s.Rebind(`SELECT id, gid, timestamp, journal_id, model FROM snapshots
        WHERE gid = ? ORDER BY id DESC LIMIT 1`)
	var res SnapshotRecord
	if err := s.GetContext(ctx, &res, query, s.GID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SnapshotRecord{}, ErrNoSnapshot
		}
		return SnapshotRecord{}, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return res, nil
}

// Get returns the snapshot with the given id, ErrNoSnapshot if it doesn't exist.
func (s *Snapshots) Get(ctx context.Context, id int64) (SnapshotRecord, error) {
	s.RLock()
	defer s.RUnlock()

	query := s.Rebind(`SELECT id, gid, timestamp, journal_id, model FROM snapshots
        WHERE gid = ? AND id = ?`)
	var res SnapshotRecord
	if err := s.GetContext(ctx, &res, query, s.GID(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SnapshotRecord{}, ErrNoSnapshot
		}
		return SnapshotRecord{}, fmt.Errorf("failed to get snapshot %d: %w", id, err)
	}
	return res, nil
}
