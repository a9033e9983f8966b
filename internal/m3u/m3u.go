// Package m3u reads and writes m3u8 playlist files: UTF-8 text, one media
// file path per non-comment line.
package m3u

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	playerrors "implayer/pkg/errors"
)

// Extension is the playlist file extension handled by this package.
const Extension = ".m3u8"

// Parse reads playlist entries from r. Blank lines and lines starting with
// '#' are skipped. Entry order is preserved verbatim. Content that is not
// valid UTF-8 fails with ErrInvalidPlaylistFile.
func Parse(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", playerrors.ErrInvalidPlaylistFile)
	}

	var entries []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", playerrors.ErrInvalidPlaylistFile, err)
	}
	return entries, nil
}

// ParseFile reads playlist entries from the file at path.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Write writes entries to w, one path per line.
func Write(w io.Writer, entries []string) error {
	bw := bufio.NewWriter(w)
	for _, entry := range entries {
		if _, err := bw.WriteString(entry); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFileAtomic writes entries to path by writing a temporary file in the
// same directory and renaming it over the target. A crash mid-write can never
// leave a truncated playlist behind.
func WriteFileAtomic(path string, entries []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp playlist: %w", err)
	}
	tmpName := tmp.Name()

	if err := Write(tmp, entries); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp playlist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp playlist: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace playlist: %w", err)
	}
	return nil
}
