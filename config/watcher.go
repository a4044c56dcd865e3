package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a Store when its config file changes on disk. Events are
// debounced because editors typically emit several writes per save.
type Watcher struct {
	store    Watched
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
	log      zerolog.Logger
}

// Watched is the subset of Store the watcher needs.
type Watched interface {
	Reload() error
	UserConfigFile() string
}

// NewWatcher creates a watcher for the store's user config file.
func NewWatcher(store Watched, log zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &Watcher{
		store:    store,
		watcher:  w,
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
		log:      log,
	}

	return fw, nil
}

// Watch starts watching. The containing directory is watched rather than
// the file itself so atomic rename-over saves are still observed.
func (fw *Watcher) Watch() error {
	target := fw.store.UserConfigFile()
	if err := fw.watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	go fw.run(target)
	return nil
}

func (fw *Watcher) run(target string) {
	var timer *time.Timer
	for {
		select {
		case <-fw.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(target) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(fw.debounce, func() {
				if err := fw.store.Reload(); err != nil {
					fw.log.Warn().Err(err).Msg("settings reload failed, keeping previous values")
					return
				}
				fw.log.Debug().Str("file", target).Msg("settings reloaded")
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

// Close stops watching and releases resources.
func (fw *Watcher) Close() error {
	close(fw.done)
	return fw.watcher.Close()
}
