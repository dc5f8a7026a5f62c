package samples

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the samples directory and calls onChange when any .txt file in it is
// written, created, removed or renamed. It blocks until the context is cancelled.
func Watch(ctx context.Context, dir string, onChange func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	done := make(chan bool)
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[INFO] stopping watcher for %s, %v", dir, ctx.Err())
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != ".txt" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				log.Printf("[DEBUG] samples change detected: %s", event)
				if e := onChange(); e != nil {
					log.Printf("[WARN] failed to apply updated samples from %s: %v", dir, e)
				}
			case e, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] watcher error: %v", e)
			}
		}
	}()

	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", dir, err)
	}
	<-done
	return nil
}
