// Package library manages the music directory: discovering audio files and
// playlist files, maintaining the synthetic All / All Unused views, probing
// durations in the background and watching the directory for changes.
package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"implayer/internal/audio"
	"implayer/internal/logging"
	"implayer/internal/m3u"
	"implayer/internal/playlist"
	playerrors "implayer/pkg/errors"
)

// Library binds a music directory to the playlist store.
type Library struct {
	dir   string
	store *playlist.Store
	log   zerolog.Logger

	prober *Prober
}

// NewLibrary creates a library over the given directory. The prober may be
// nil, in which case durations stay unset until something else fills them.
func NewLibrary(dir string, store *playlist.Store, prober *Prober) *Library {
	return &Library{
		dir:    dir,
		store:  store,
		log:    logging.For("library"),
		prober: prober,
	}
}

// Dir returns the music directory the library manages.
func (lib *Library) Dir() string {
	return lib.dir
}

// Open scans the directory, loads every playlist file into the store,
// installs the synthetic views and kicks off background duration probing.
// Malformed playlist files are skipped with a warning; they never abort
// startup.
func (lib *Library) Open(ctx context.Context) error {
	songs, playlists, err := lib.scan()
	if err != nil {
		return err
	}

	for _, path := range playlists {
		if _, err := lib.store.Load(path); err != nil {
			lib.log.Warn().Str("path", path).Err(err).Msg("skipping malformed playlist")
		}
	}
	lib.refreshVirtual(songs)

	lib.log.Info().
		Int("songs", len(songs)).
		Int("playlists", len(playlists)).
		Msg("library opened")

	if lib.prober != nil {
		go lib.prober.Run(ctx, songs)
	}
	return nil
}

// Rescan re-walks the directory and rebuilds the synthetic views. Playlist
// files already loaded are left alone; new ones are picked up.
func (lib *Library) Rescan() error {
	songs, playlists, err := lib.scan()
	if err != nil {
		return err
	}
	for _, path := range playlists {
		id := playlist.PlaylistID(path)
		if _, err := lib.store.Playlist(id); err == nil {
			continue
		}
		if _, err := lib.store.Load(path); err != nil {
			lib.log.Warn().Str("path", path).Err(err).Msg("skipping malformed playlist")
		}
	}
	lib.refreshVirtual(songs)
	return nil
}

// scan walks the directory collecting audio files and playlist files.
func (lib *Library) scan() (songs, playlists []string, err error) {
	err = filepath.WalkDir(lib.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			lib.log.Warn().Str("path", p).Err(err).Msg("scan error")
			return nil
		}
		if d.IsDir() {
			// Dot directories hold in-progress work (download staging)
			// and never contribute songs.
			if p != lib.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case audio.IsSupported(p):
			songs = append(songs, p)
		case filepath.Ext(p) == m3u.Extension:
			playlists = append(playlists, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, &playerrors.ScanError{Path: lib.dir, Err: err}
	}
	sort.Strings(songs)
	sort.Strings(playlists)
	return songs, playlists, nil
}

// refreshVirtual rebuilds the All and All Unused views from the scanned
// files. A song is "used" when any real playlist references it.
func (lib *Library) refreshVirtual(songs []string) {
	used := make(map[string]bool)
	for _, info := range lib.store.Playlists() {
		if info.Virtual {
			continue
		}
		for _, song := range info.Songs {
			used[song.Path] = true
		}
	}

	var unused []string
	for _, path := range songs {
		if !used[path] {
			unused = append(unused, path)
		}
	}

	lib.store.RegisterVirtual(playlist.AllPlaylistName, songs)
	lib.store.RegisterVirtual(playlist.AllUnusedPlaylistName, unused)
}

// RefreshViews rebuilds the synthetic views from the current directory
// contents. It is the cheap follow-up to store mutations that change which
// songs count as used.
func (lib *Library) RefreshViews() {
	songs, _, err := lib.scan()
	if err != nil {
		lib.log.Warn().Err(err).Msg("view refresh scan failed")
		return
	}
	lib.refreshVirtual(songs)
}
