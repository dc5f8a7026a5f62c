package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshots_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewSnapshots(ctx, setupTestDB(t))
	require.NoError(t, err)

	model := []byte(`{"categories":["greeting"],"totalDocuments":1}`)
	id, err := s.Save(ctx, model, 42)
	require.NoError(t, err)
	assert.Positive(t, id)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model, rec.Model)
	assert.Equal(t, int64(42), rec.JournalID)
	assert.Equal(t, "gr1", rec.GID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestSnapshots_Latest(t *testing.T) {
	ctx := context.Background()
	s, err := NewSnapshots(ctx, setupTestDB(t))
	require.NoError(t, err)

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = s.Save(ctx, []byte(`{"v":1}`), 1)
	require.NoError(t, err)
	id2, err := s.Save(ctx, []byte(`{"v":2}`), 2)
	require.NoError(t, err)

	rec, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, rec.ID)
	assert.Equal(t, []byte(`{"v":2}`), rec.Model)
}

func TestSnapshots_GetMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewSnapshots(ctx, setupTestDB(t))
	require.NoError(t, err)

	_, err = s.Get(ctx, 12345)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestNewSnapshots_NilDB(t *testing.T) {
	_, err := NewSnapshots(context.Background(), nil)
	require.Error(t, err)
}
