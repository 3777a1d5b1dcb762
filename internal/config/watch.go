package config

import (
	"path/filepath"
	"reflect"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Listener receives the new settings snapshot after a change.
type Listener func(Settings)

type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching the settings file and fans out change
// notifications to subscribed listeners. Safe to call once.
func (s *Store) Watch() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors and atomic writes replace the file,
	// which would otherwise drop the watch.
	if err := fs.Add(filepath.Dir(s.path)); err != nil {
		fs.Close()
		return err
	}

	w := &watcher{fs: fs, done: make(chan struct{})}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	go s.watchLoop(w)
	return nil
}

func (s *Store) watchLoop(w *watcher) {
	base := filepath.Base(s.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := s.v.ReadInConfig(); err != nil {
				log.Warn("settings file unreadable after change", "err", err)
				continue
			}
			if err := s.reload(); err != nil {
				log.Warn("settings reload failed", "err", err)
				continue
			}
			s.notify(s.Get())
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("settings watcher error", "err", err)
		}
	}
}

// Subscribe registers a listener for settings changes. Listeners fire
// on every Set and, when the file watcher is running, on external
// edits of the settings file.
func (s *Store) Subscribe(fn Listener) {
	s.notifyMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.notifyMu.Unlock()
}

// Close stops the watcher.
func (s *Store) Close() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return
	}
	close(w.done)
	w.fs.Close()
}

// notify delivers settings to listeners, skipping no-op changes so one
// logical write produces one notification even when Set and the fsnotify
// event both fire.
func (s *Store) notify(settings Settings) {
	s.notifyMu.Lock()
	if reflect.DeepEqual(settings, s.lastSent) {
		s.notifyMu.Unlock()
		return
	}
	s.lastSent = settings
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(settings)
	}
}
