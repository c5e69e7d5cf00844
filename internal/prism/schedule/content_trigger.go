package schedule

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

var ErrNoTriggerPaths = errors.New("no watchable trigger paths")

// ContentTrigger fires on the first filesystem change under any of Paths.
// Directories are watched with their descendants.
type ContentTrigger struct {
	Paths []string
}

func (t ContentTrigger) Wait(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	added := 0
	for _, p := range t.Paths {
		n, err := addTree(w, p)
		if err != nil {
			return err
		}
		added += n
	}
	if added == 0 {
		return ErrNoTriggerPaths
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-w.Events:
			if !ok {
				return errors.New("trigger watcher closed")
			}
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("trigger watcher closed")
			}
			return err
		}
	}
}

// addTree watches path; for a directory, every subdirectory is added too.
// Missing paths are skipped.
func addTree(w *fsnotify.Watcher, path string) (int, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		if err := w.Add(path); err != nil {
			return 0, err
		}
		return 1, nil
	}

	n := 0
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
