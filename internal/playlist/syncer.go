package playlist

import (
	"os"

	"implayer/internal/m3u"
)

// Syncer translates store mutations into filesystem operations. It exists as
// an interface so persistence failures can be simulated in tests.
type Syncer interface {
	// WritePlaylist persists the ordered entry list for the playlist file at
	// path. The replacement must be atomic: a crash mid-write may leave the
	// old content behind, never a truncated file.
	WritePlaylist(path string, entries []string) error
	// RenameFile renames a song file on disk.
	RenameFile(oldPath, newPath string) error
	// RemoveFile deletes a file, tolerating it already being gone.
	RemoveFile(path string) error
}

// FileSyncer is the production Syncer writing m3u8 files via the
// temp-file-then-rename discipline.
type FileSyncer struct{}

func (FileSyncer) WritePlaylist(path string, entries []string) error {
	return m3u.WriteFileAtomic(path, entries)
}

func (FileSyncer) RenameFile(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (FileSyncer) RemoveFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
