// Package audio contains the decoder adapter and the playback engine.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	playerrors "implayer/pkg/errors"
)

// SupportedExtensions returns the audio file extensions the decoder handles.
func SupportedExtensions() []string {
	return []string{".mp3", ".wav", ".flac", ".ogg", ".oga", ".m4a"}
}

// IsSupported checks whether the decoder recognizes the file's extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}

// DecoderConfig selects the external helper binaries and the fixed output
// rate every decoded stream is normalized to.
type DecoderConfig struct {
	FFmpegPath  string
	FFprobePath string
	SampleRate  int
}

// Open returns a decode handle for the file at path. The handle is a lazy,
// finite, restartable PCM stream; exhaustion signals natural completion and
// a non-nil Err() afterwards means the decode aborted mid-stream.
//
// Unrecognized extensions fail with ErrUnsupportedFormat, header or frame
// parse failures with ErrCorruptStream.
func Open(path string, cfg DecoderConfig) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".m4a" {
		return openFFmpeg(path, cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, playerrors.NewPlayerError("open", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %s", playerrors.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %v", playerrors.ErrCorruptStream, err)
	}
	return streamer, format, nil
}
