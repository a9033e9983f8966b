package playlist

import (
	"fmt"
	"os"
	"path/filepath"

	playerrors "implayer/pkg/errors"
)

// RenameSongFile renames the song's file on disk to newName (a bare file
// name, kept in the same directory) and updates the canonical record and
// every playlist referencing it in one logical step. On any failure the old
// name and all references are left unchanged.
func (s *Store) RenameSongFile(oldPath, newName string) error {
	newPath := filepath.Join(filepath.Dir(oldPath), newName)
	if newPath == oldPath {
		return nil
	}

	s.mu.Lock()

	song, ok := s.songs[oldPath]
	if !ok {
		s.mu.Unlock()
		return playerrors.ErrNoSuchSong
	}
	if _, err := os.Stat(newPath); err == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already exists", playerrors.ErrRenameFailed, newName)
	}
	if s.songs[newPath] != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already referenced", playerrors.ErrRenameFailed, newName)
	}

	renamedOnDisk := false
	if !song.Missing {
		if err := s.syncer.RenameFile(oldPath, newPath); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", playerrors.ErrRenameFailed, err)
		}
		renamedOnDisk = true
	}

	type affected struct {
		l        *list
		snapshot []item
	}
	var touched []affected
	for _, l := range s.lists {
		for _, it := range l.items {
			if it.song == song {
				touched = append(touched, affected{l: l, snapshot: l.snapshot()})
				break
			}
		}
	}

	prev := *song
	artist, title := SplitDisplayName(newPath)
	song.Path = newPath
	song.Artist = artist
	song.Title = title
	if _, err := os.Stat(newPath); err != nil {
		song.Missing = true
	} else {
		song.Missing = false
	}
	delete(s.songs, oldPath)
	s.songs[newPath] = song

	for _, a := range touched {
		for i, it := range a.l.items {
			if it.song == song {
				// Keep the entry style the playlist already used.
				if filepath.IsAbs(it.entry) {
					a.l.items[i].entry = newPath
				} else {
					a.l.items[i].entry = s.entryFor(newPath)
				}
			}
		}
	}

	rollback := func(flushed []affected) {
		*song = prev
		delete(s.songs, newPath)
		s.songs[oldPath] = song
		for _, a := range touched {
			a.l.items = a.snapshot
		}
		if renamedOnDisk {
			if err := s.syncer.RenameFile(newPath, oldPath); err != nil {
				s.log.Error().Err(err).Str("path", newPath).Msg("rename rollback failed")
			}
		}
		for _, a := range flushed {
			if a.l.virtual {
				continue
			}
			if err := s.syncer.WritePlaylist(a.l.path, a.l.entries()); err != nil {
				s.log.Error().Err(err).Str("playlist", a.l.id).Msg("restore flush failed")
			}
		}
	}

	var flushed []affected
	for _, a := range touched {
		if a.l.virtual {
			continue
		}
		if err := s.syncer.WritePlaylist(a.l.path, a.l.entries()); err != nil {
			rollback(flushed)
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", playerrors.ErrRenameFailed, err)
		}
		flushed = append(flushed, a)
	}

	ids := make([]string, len(touched))
	for i, a := range touched {
		ids[i] = a.l.id
	}
	s.mu.Unlock()

	s.log.Info().Str("from", oldPath).Str("to", newPath).Msg("renamed song file")
	s.notify(ids...)
	return nil
}
