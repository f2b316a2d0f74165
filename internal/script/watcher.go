package script

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the Set whenever its file changes on disk, debounced.
// It returns a stop function. Watching a Set with no file is a no-op.
func (s *Set) Watch() (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create script watcher: %w", err)
	}

	// Watch the directory: editors commonly replace the file, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch script directory: %w", err)
	}

	stop := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		var debounce *time.Timer
		var debounceMu sync.Mutex

		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				debounceMu.Lock()
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := s.Reload(); err != nil {
						log.Printf("[Script] reload failed, keeping previous lines: %v", err)
						return
					}
					log.Printf("[Script] reloaded %s", s.path)
				})
				debounceMu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Script] watcher error: %v", err)
			}
		}
	}()

	return func() {
		stopOnce.Do(func() {
			close(stop)
			watcher.Close()
		})
	}, nil
}
