package identity

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads profile files when they change on disk. Each reloaded
// profile is handed to the callback; running negotiations keep the snapshot
// they took when they started.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(*Profile)
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches dir for profile edits.
func NewWatcher(dir string, onChange func(*Profile)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profile watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("profile watcher: watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the event loop in the background.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.doneCh
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	// Editors emit several events per save; collect them and reload once.
	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]bool)

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !IsProfileFile(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			for name := range pending {
				w.reload(name)
			}
			pending = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Profile watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) reload(path string) {
	p, err := LoadProfile(path)
	if err != nil {
		slog.Warn("Profile reload failed", "file", filepath.Base(path), "error", err)
		return
	}
	slog.Info("Profile reloaded", "owner", p.Owner, "file", filepath.Base(path))
	if w.onChange != nil {
		w.onChange(p)
	}
}
