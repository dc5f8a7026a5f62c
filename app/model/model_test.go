package model

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/docclass/app/storage"
	"github.com/umputun/docclass/lib/classifier"
)

// fakeJournal is an in-memory Journal implementation for tests
type fakeJournal struct {
	mu      sync.Mutex
	entries []storage.JournalEntry
}

func (f *fakeJournal) Append(_ context.Context, category, document string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.entries) + 1)
	f.entries = append(f.entries, storage.JournalEntry{ID: id, Category: category, Document: document})
	return id, nil
}

func (f *fakeJournal) After(_ context.Context, id int64) ([]storage.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []storage.JournalEntry
	for _, e := range f.entries {
		if e.ID > id {
			res = append(res, e)
		}
	}
	return res, nil
}

func (f *fakeJournal) LastID(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

// fakeSnapshots is an in-memory Snapshots implementation for tests
type fakeSnapshots struct {
	mu   sync.Mutex
	recs []storage.SnapshotRecord
}

func (f *fakeSnapshots) Save(_ context.Context, model []byte, journalID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.recs) + 1)
	f.recs = append(f.recs, storage.SnapshotRecord{ID: id, JournalID: journalID, Model: model})
	return id, nil
}

func (f *fakeSnapshots) Latest(_ context.Context) (storage.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) == 0 {
		return storage.SnapshotRecord{}, storage.ErrNoSnapshot
	}
	return f.recs[len(f.recs)-1], nil
}

func (f *fakeSnapshots) Get(_ context.Context, id int64) (storage.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return storage.SnapshotRecord{}, storage.ErrNoSnapshot
}

func TestModel_LearnAndCategorize(t *testing.T) {
	ctx := context.Background()
	journal := &fakeJournal{}
	m, err := New(classifier.Options{}, journal, &fakeSnapshots{}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Learn(ctx, "hello there friend", "greeting"))
	require.NoError(t, m.Learn(ctx, "goodbye friend", "farewell"))

	top, ok := m.Categorize("hello friend")
	require.True(t, ok)
	assert.Equal(t, "greeting", top)

	assert.Len(t, journal.entries, 2, "every learn journaled")
	assert.Equal(t, 2, m.Stats().TotalDocuments)
}

func TestModel_SnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	snapshots := &fakeSnapshots{}
	m, err := New(classifier.Options{}, &fakeJournal{}, snapshots, nil)
	require.NoError(t, err)

	require.NoError(t, m.Learn(ctx, "hello there friend", "greeting"))
	require.NoError(t, m.Learn(ctx, "goodbye friend", "farewell"))

	id, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.NoError(t, m.Reset())
	_, ok := m.Categorize("hello friend")
	assert.False(t, ok, "reset wipes the live model")

	require.NoError(t, m.Restore(ctx, 0))
	top, ok := m.Categorize("hello friend")
	require.True(t, ok)
	assert.Equal(t, "greeting", top)
}

func TestModel_StartupFromSnapshotAndJournal(t *testing.T) {
	ctx := context.Background()
	journal := &fakeJournal{}
	snapshots := &fakeSnapshots{}

	// first life: learn, snapshot, learn some more
	m1, err := New(classifier.Options{}, journal, snapshots, nil)
	require.NoError(t, err)
	require.NoError(t, m1.Learn(ctx, "hello there friend", "greeting"))
	_, err = m1.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, m1.Learn(ctx, "goodbye friend", "farewell"))

	// second life picks up the snapshot plus the journal tail
	m2, err := New(classifier.Options{}, journal, snapshots, nil)
	require.NoError(t, err)
	require.NoError(t, m2.Startup(ctx))

	assert.Equal(t, m1.Stats(), m2.Stats())
	top, ok := m2.Categorize("goodbye")
	require.True(t, ok)
	assert.Equal(t, "farewell", top)
}

func TestModel_StartupEmptyStores(t *testing.T) {
	m, err := New(classifier.Options{}, &fakeJournal{}, &fakeSnapshots{}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Startup(context.Background()))

	_, ok := m.Categorize("anything")
	assert.False(t, ok)
}

func TestModel_StartupWithPresets(t *testing.T) {
	presets := func(c *classifier.Classifier) (int, error) {
		c.Learn("hello there", "greeting")
		return 1, nil
	}
	m, err := New(classifier.Options{}, &fakeJournal{}, &fakeSnapshots{}, presets)
	require.NoError(t, err)
	require.NoError(t, m.Startup(context.Background()))

	top, ok := m.Categorize("hello")
	require.True(t, ok)
	assert.Equal(t, "greeting", top)
}

func TestModel_Rebuild(t *testing.T) {
	ctx := context.Background()
	journal := &fakeJournal{}
	presetDocs := 0
	presets := func(c *classifier.Classifier) (int, error) {
		presetDocs++
		c.Learn("preset greeting text", "greeting")
		return 1, nil
	}

	m, err := New(classifier.Options{}, journal, &fakeSnapshots{}, presets)
	require.NoError(t, err)
	require.NoError(t, m.Startup(ctx))
	require.NoError(t, m.Learn(ctx, "goodbye friend", "farewell"))

	require.NoError(t, m.Rebuild(ctx))
	assert.Equal(t, 2, presetDocs, "presets loaded on startup and rebuild")

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalDocuments, "preset plus replayed journal entry")
	assert.ElementsMatch(t, []string{"greeting", "farewell"}, stats.Categories)
}

func TestModel_NoStoresConfigured(t *testing.T) {
	ctx := context.Background()
	m, err := New(classifier.Options{}, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Startup(ctx))
	require.NoError(t, m.Learn(ctx, "hello there", "greeting"), "in-memory learn works without journal")

	_, err = m.Snapshot(ctx)
	require.Error(t, err)
	require.Error(t, m.Restore(ctx, 0))
}

func TestModel_InvalidOptions(t *testing.T) {
	_, err := New(classifier.Options{MinTokenSize: -5}, nil, nil, nil)
	require.Error(t, err)
}

func TestModel_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	m, err := New(classifier.Options{}, &fakeJournal{}, &fakeSnapshots{}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Learn(ctx, "hello there friend", "greeting")
		}()
		go func() {
			defer wg.Done()
			_, _ = m.Categorize("hello friend")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, m.Stats().TotalDocuments)
}
