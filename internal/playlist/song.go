package playlist

import (
	"os"
	"path/filepath"
	"strings"

	"implayer/api"
)

var formatByExt = map[string]api.FormatKind{
	".mp3":  api.FormatMP3,
	".flac": api.FormatFLAC,
	".m4a":  api.FormatM4A,
	".ogg":  api.FormatOGG,
	".oga":  api.FormatOGG,
	".wav":  api.FormatWAV,
}

// FormatOf returns the format kind derived from the file extension.
func FormatOf(path string) api.FormatKind {
	return formatByExt[strings.ToLower(filepath.Ext(path))]
}

// IsAudioFile reports whether the path has a recognized audio extension.
func IsAudioFile(path string) bool {
	return FormatOf(path) != api.FormatUnknown
}

// SplitDisplayName derives artist and title from an "Artist - Title" file
// name. Files without the separator keep the whole stem as the title.
func SplitDisplayName(path string) (artist, title string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.SplitN(stem, "-", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "", strings.TrimSpace(stem)
}

// PlaylistID derives the playlist id from its file path: the base name
// without the extension.
func PlaylistID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// NewSong builds a Song record for the given absolute path, marking it as a
// broken stub when the file does not exist.
func NewSong(path string) *api.Song {
	artist, title := SplitDisplayName(path)
	_, err := os.Stat(path)
	return &api.Song{
		Path:    path,
		Title:   title,
		Artist:  artist,
		Format:  FormatOf(path),
		Missing: err != nil,
	}
}
