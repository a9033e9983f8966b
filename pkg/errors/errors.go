package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// Decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrCorruptStream     = errors.New("corrupt audio stream")
	ErrDecodeAborted     = errors.New("decode aborted mid-stream")

	// Playback.
	ErrNoSuchSong        = errors.New("no such song")
	ErrInvalidTransition = errors.New("invalid playback transition")
	ErrInvalidVolume     = errors.New("volume must be between 0.0 and 1.0")

	// Store / filesystem.
	ErrInvalidPlaylistFile = errors.New("invalid playlist file")
	ErrPlaylistNotFound    = errors.New("playlist not found")
	ErrRenameFailed        = errors.New("rename failed")
	ErrPersistFailed       = errors.New("persist failed")
	ErrReadOnlyPlaylist    = errors.New("playlist is read-only")
	ErrDuplicateSong       = errors.New("song already in playlist")

	// Download pipeline.
	ErrFetchFailed     = errors.New("fetch failed")
	ErrNormalizeFailed = errors.New("normalize failed")
	ErrCancelled       = errors.New("cancelled")
	ErrJobNotFound     = errors.New("download job not found")
)

// PlayerError wraps errors with the failing operation and song path.
type PlayerError struct {
	Op   string // Operation that failed
	Song string // Song path if applicable
	Err  error  // Underlying error
}

func (e *PlayerError) Error() string {
	if e.Song != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Song, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError.
func NewPlayerError(op, song string, err error) *PlayerError {
	return &PlayerError{Op: op, Song: song, Err: err}
}

// ScanError represents an error during music directory scanning.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error at %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
