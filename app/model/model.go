// Package model owns the live classifier instance on behalf of the service. The
// classifier itself has no internal synchronization and requires callers to serialize
// mutations; Model enforces that contract with a read-write lock and couples every
// mutation with its persistence side effects: journal appends on Learn, snapshot
// save/restore, and full rebuilds from preset samples plus journal replay.
package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/umputun/docclass/app/storage"
	"github.com/umputun/docclass/lib/classifier"
)

// Journal is the training journal persistence interface.
type Journal interface {
	Append(ctx context.Context, category, document string) (int64, error)
	After(ctx context.Context, id int64) ([]storage.JournalEntry, error)
	LastID(ctx context.Context) (int64, error)
}

// Snapshots is the model snapshot persistence interface.
type Snapshots interface {
	Save(ctx context.Context, model []byte, journalID int64) (int64, error)
	Latest(ctx context.Context) (storage.SnapshotRecord, error)
	Get(ctx context.Context, id int64) (storage.SnapshotRecord, error)
}

// Presets trains a fresh classifier from preset samples during a rebuild. It gets the
// classifier before any journal replay and returns the number of documents trained.
type Presets func(c *classifier.Classifier) (int, error)

// Model is a thread-safe holder of the live classifier and its stores.
type Model struct {
	opts      classifier.Options
	journal   Journal
	snapshots Snapshots
	presets   Presets

	lock      sync.RWMutex
	cls       *classifier.Classifier
	journalID int64 // id of the last journal entry applied to cls
}

// New creates a Model with an empty classifier. Journal and snapshots may be nil for a
// purely in-memory model; presets may be nil when no sample files are configured.
func New(opts classifier.Options, journal Journal, snapshots Snapshots, presets Presets) (*Model, error) {
	cls, err := classifier.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to make classifier: %w", err)
	}
	return &Model{opts: opts, journal: journal, snapshots: snapshots, presets: presets, cls: cls}, nil
}

// Startup brings the model up to date: restores the latest snapshot if one exists,
// otherwise loads presets, then replays journal entries newer than the restored state.
func (m *Model) Startup(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.snapshots != nil {
		rec, err := m.snapshots.Latest(ctx)
		switch {
		case err == nil:
			cls, e := classifier.FromJSON(rec.Model, m.opts)
			if e != nil {
				return fmt.Errorf("failed to restore snapshot %d: %w", rec.ID, e)
			}
			m.cls = cls
			m.journalID = rec.JournalID
			log.Printf("[INFO] restored model from snapshot %d, journal position %d", rec.ID, rec.JournalID)
		case errors.Is(err, storage.ErrNoSnapshot):
			if e := m.loadPresets(); e != nil {
				return e
			}
		default:
			return fmt.Errorf("failed to get latest snapshot: %w", err)
		}
	} else if err := m.loadPresets(); err != nil {
		return err
	}

	return m.replayJournal(ctx)
}

// Learn trains the classifier with one labeled document and journals it.
func (m *Model) Learn(ctx context.Context, text, category string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.journal != nil {
		id, err := m.journal.Append(ctx, category, text)
		if err != nil {
			return fmt.Errorf("failed to journal document: %w", err)
		}
		m.journalID = id
	}
	m.cls.Learn(text, category)
	return nil
}

// Categorize returns the most likely category, false if the model is untrained.
func (m *Model) Categorize(text string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.cls.Categorize(text)
}

// CategorizeMultiple returns up to limit ranked matches.
func (m *Model) CategorizeMultiple(text string, limit int) []classifier.Match {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.cls.CategorizeMultiple(text, limit)
}

// Stats returns the current model summary.
func (m *Model) Stats() classifier.Stats {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.cls.Stats()
}

// Snapshot serializes the current model state and persists it, returning the snapshot id.
func (m *Model) Snapshot(ctx context.Context) (int64, error) {
	if m.snapshots == nil {
		return 0, fmt.Errorf("snapshots storage not configured")
	}

	m.lock.RLock()
	data, err := m.cls.ToJSON()
	journalID := m.journalID
	m.lock.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("failed to serialize model: %w", err)
	}

	id, err := m.snapshots.Save(ctx, data, journalID)
	if err != nil {
		return 0, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	log.Printf("[INFO] saved model snapshot %d at journal position %d", id, journalID)
	return id, nil
}

// Restore replaces the live classifier with a persisted snapshot, the latest one if
// id is not positive. The restored state is taken wholesale, no merge.
func (m *Model) Restore(ctx context.Context, id int64) error {
	if m.snapshots == nil {
		return fmt.Errorf("snapshots storage not configured")
	}

	var rec storage.SnapshotRecord
	var err error
	if id > 0 {
		rec, err = m.snapshots.Get(ctx, id)
	} else {
		rec, err = m.snapshots.Latest(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	cls, err := classifier.FromJSON(rec.Model, m.opts)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot %d: %w", rec.ID, err)
	}

	m.lock.Lock()
	m.cls = cls
	m.journalID = rec.JournalID
	m.lock.Unlock()

	log.Printf("[INFO] restored model from snapshot %d", rec.ID)
	return nil
}

// Reset swaps in a fresh classifier instance. The journal is left intact, so a
// subsequent Rebuild recovers the previous knowledge.
func (m *Model) Reset() error {
	cls, err := classifier.New(m.opts)
	if err != nil {
		return fmt.Errorf("failed to make classifier: %w", err)
	}

	m.lock.Lock()
	m.cls = cls
	m.journalID = 0
	m.lock.Unlock()

	log.Printf("[INFO] model reset to empty state")
	return nil
}

// Rebuild reconstructs the model from scratch: fresh classifier, preset samples,
// then full journal replay. Used when preset sample files change on disk.
func (m *Model) Rebuild(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	cls, err := classifier.New(m.opts)
	if err != nil {
		return fmt.Errorf("failed to make classifier: %w", err)
	}
	m.cls = cls
	m.journalID = 0

	if err := m.loadPresets(); err != nil {
		return err
	}
	return m.replayJournal(ctx)
}

// loadPresets trains the current classifier from preset samples, must be called with
// the write lock held.
func (m *Model) loadPresets() error {
	if m.presets == nil {
		return nil
	}
	count, err := m.presets(m.cls)
	if err != nil {
		return fmt.Errorf("failed to load preset samples: %w", err)
	}
	log.Printf("[INFO] loaded %d preset documents", count)
	return nil
}

// replayJournal applies journal entries newer than the current position, must be
// called with the write lock held.
func (m *Model) replayJournal(ctx context.Context) error {
	if m.journal == nil {
		return nil
	}

	entries, err := m.journal.After(ctx, m.journalID)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, entry := range entries {
		m.cls.Learn(entry.Document, entry.Category)
		m.journalID = entry.ID
	}
	if len(entries) > 0 {
		log.Printf("[INFO] replayed %d journal entries, position %d", len(entries), m.journalID)
	}
	return nil
}
