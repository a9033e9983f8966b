package download

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// Fetcher downloads the audio for a query or URL into a directory and
// returns the path of the resulting file. The contract is "nil error + the
// file exists" or failure.
type Fetcher interface {
	Fetch(ctx context.Context, query, dir string) (string, error)
}

// ProgressFunc receives human-readable progress lines during a fetch.
type ProgressFunc func(line string)

// progressFetcher is implemented by fetchers that can report progress; the
// pipeline feeds it into job updates when available.
type progressFetcher interface {
	FetchWithProgress(ctx context.Context, query, dir string, progress ProgressFunc) (string, error)
}

// YTDLPFetcher fetches audio through yt-dlp. The format selector picks the
// best audio-only stream in a container the decoder can play.
type YTDLPFetcher struct {
	Format string
}

// NewYTDLPFetcher returns a fetcher using the given yt-dlp format selector.
func NewYTDLPFetcher(format string) *YTDLPFetcher {
	return &YTDLPFetcher{Format: format}
}

func (f *YTDLPFetcher) Fetch(ctx context.Context, query, dir string) (string, error) {
	return f.FetchWithProgress(ctx, query, dir, nil)
}

func (f *YTDLPFetcher) FetchWithProgress(ctx context.Context, query, dir string, progress ProgressFunc) (string, error) {
	dl := ytdlp.New().
		Format(f.Format).
		NoPlaylist().
		RestrictFilenames().
		Output(filepath.Join(dir, "%(title)s.%(ext)s"))

	if progress != nil {
		dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes > 0 {
				pct := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
				progress(fmt.Sprintf("%.0f%%", pct))
			}
		})
	}

	result, err := dl.Run(ctx, query)
	if err != nil {
		return "", err
	}
	info, err := result.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("extract download info: %w", err)
	}
	if len(info) == 0 || info[0].Filename == nil || *info[0].Filename == "" {
		return "", fmt.Errorf("downloader reported no output file")
	}
	return *info[0].Filename, nil
}
