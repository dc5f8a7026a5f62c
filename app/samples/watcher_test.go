package samples

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond) // let the watcher attach
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.txt"), []byte("hello\n"), 0o600))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 },
		3*time.Second, 50*time.Millisecond, "change picked up")

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("nope\n"), 0o600))
	time.Sleep(500 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&calls))

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), func() error { return nil })
	require.Error(t, err)
}
