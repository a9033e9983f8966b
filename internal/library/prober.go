package library

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"implayer/api"
	"implayer/internal/audio"
	"implayer/internal/logging"
	"implayer/internal/playlist"
)

// Prober fills in song durations in the background using a worker pool, so
// opening a large directory never blocks on probing every file up front.
// Embedded tags are read at the same time to improve on file-name metadata.
type Prober struct {
	store       *playlist.Store
	ffprobePath string
	workers     int
	log         zerolog.Logger
}

// NewProber creates a duration prober with the given worker count.
func NewProber(store *playlist.Store, ffprobePath string, workers int) *Prober {
	if workers <= 0 {
		workers = 4
	}
	return &Prober{
		store:       store,
		ffprobePath: ffprobePath,
		workers:     workers,
		log:         logging.For("prober"),
	}
}

// Run probes every path and records the results on the store. It returns
// when all paths are processed or the context is cancelled.
func (p *Prober) Run(ctx context.Context, paths []string) {
	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				p.probe(ctx, path)
			}
		}()
	}
	wg.Wait()
}

func (p *Prober) probe(ctx context.Context, path string) {
	dur, err := audio.ProbeDuration(ctx, p.ffprobePath, path)
	if err != nil {
		p.log.Debug().Str("path", path).Err(err).Msg("duration probe failed")
		return
	}
	title, artist := ReadTags(path)
	p.store.UpdateDuration(path, api.Song{
		Duration: dur,
		Title:    title,
		Artist:   artist,
	})
}
