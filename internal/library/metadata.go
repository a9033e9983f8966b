package library

import (
	"os"

	"github.com/dhowden/tag"
)

// ReadTags pulls the embedded title and artist tags from an audio file.
// Untagged or unreadable files return empty strings; file-name parsing
// remains the source of truth in that case.
func ReadTags(path string) (title, artist string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return meta.Title(), meta.Artist()
}
