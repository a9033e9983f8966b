package library

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"implayer/internal/audio"
	"implayer/internal/m3u"
)

// Watch follows filesystem changes in the music directory until the context
// is cancelled. Audio files appearing or disappearing flip the broken-stub
// flag on any playlist entries pointing at them and rebuild the synthetic
// views; new playlist files are loaded on sight.
func (lib *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(lib.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				lib.handleEvent(event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				lib.log.Warn().Err(err).Msg("watcher error")
			}
		}
	}()
	return nil
}

func (lib *Library) handleEvent(event fsnotify.Event) {
	const relevant = fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	if event.Op&relevant == 0 {
		return
	}

	switch {
	case audio.IsSupported(event.Name):
		lib.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("audio file changed")
		lib.store.RefreshMissing(event.Name)
		lib.RefreshViews()
	case filepath.Ext(event.Name) == m3u.Extension && event.Op&fsnotify.Create != 0:
		// A playlist dropped into the directory from outside.
		if err := lib.Rescan(); err != nil {
			lib.log.Warn().Err(err).Msg("rescan after playlist change failed")
		}
	}
}
