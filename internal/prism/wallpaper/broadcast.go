package wallpaper

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeBroadcastReceiver turns filesystem changes to the platform's
// wallpaper files into Resolver.NotifyChange calls. The application entry
// point registers it at startup and unregisters it on shutdown.
type ChangeBroadcastReceiver struct {
	paths    []string
	resolver *Resolver
	logger   zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewChangeBroadcastReceiver(paths []string, r *Resolver, logger zerolog.Logger) *ChangeBroadcastReceiver {
	return &ChangeBroadcastReceiver{paths: paths, resolver: r, logger: logger}
}

// Register starts watching. Parent directories are watched so editors and
// wallpaper tools that replace files by rename are still seen.
func (b *ChangeBroadcastReceiver) Register() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watcher != nil {
		return nil
	}
	if len(b.paths) == 0 {
		return errors.New("no wallpaper paths to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	targets := make(map[string]struct{}, len(b.paths))
	dirs := make(map[string]struct{})
	for _, p := range b.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return err
		}
	}

	b.watcher = w
	b.done = make(chan struct{})
	go b.loop(w, targets, b.done)

	b.logger.Info().Strs("paths", b.paths).Msg("wallpaper change receiver registered")
	return nil
}

// Unregister stops watching and waits for the event loop to exit.
func (b *ChangeBroadcastReceiver) Unregister() error {
	b.mu.Lock()
	w, done := b.watcher, b.done
	b.watcher, b.done = nil, nil
	b.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func (b *ChangeBroadcastReceiver) loop(w *fsnotify.Watcher, targets map[string]struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if _, ok := targets[filepath.Clean(event.Name)]; !ok {
				continue
			}
			b.logger.Debug().Str("path", event.Name).Stringer("op", event.Op).Msg("wallpaper changed")
			b.resolver.NotifyChange()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.logger.Warn().Err(err).Msg("wallpaper watcher error")
		}
	}
}
