package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/go-thor/rabbit/errors"
)

// Watch reloads path whenever it changes and hands the result to fn. A
// file that fails to load is reported through fn with a nil config. Watch
// blocks until ctx is done.
//
// The parent directory is watched so that editors replacing the file by
// rename are noticed.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInternal, err, "create watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "resolve config path")
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(errors.ErrorCodeNotFound, err, "watch config directory")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			fn(Load(abs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fn(nil, errors.Wrap(errors.ErrorCodeInternal, err, "watch config"))
		}
	}
}
