package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/session"
	"github.com/fsnotify/fsnotify"
)

const (
	watchTick   = 250 * time.Millisecond
	watchSettle = 300 * time.Millisecond
)

// WatchImage reloads the session image whenever the file at path is written
// or replaced. Editors and scanners write in bursts, so a reload waits until
// the file has been quiet for watchSettle. It returns once the watch is set
// up; the loop runs until ctx is done. onReload may be nil.
func WatchImage(ctx context.Context, s *session.Session, path string, onReload func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory so atomic renames over the file are seen
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	logger.InfoLog("[watch]: watching %s", path)

	go func() {
		defer w.Close()
		var pending time.Time
		ticker := time.NewTicker(watchTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					pending = time.Now()
				}
			case <-ticker.C:
				if pending.IsZero() || time.Since(pending) < watchSettle {
					continue
				}
				pending = time.Time{}
				err := s.ReloadImage()
				if err != nil {
					logger.ErrorLog("[watch]: reloading %s: %v", path, err)
				} else {
					logger.DebugLog("[watch]: reloaded %s", path)
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.ErrorLog("[watch]: %v", err)
			}
		}
	}()
	return nil
}
