// Package download runs the fetch-then-normalize pipeline: an external
// downloader produces an audio file, an external loudness tool adjusts it in
// place, and the result is handed to the requesting playlist.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"implayer/api"
	"implayer/internal/logging"
	playerrors "implayer/pkg/errors"
)

// Options tunes the pipeline's external tool invocations.
type Options struct {
	// NormalizeCommand is the argv prefix of the loudness tool; the fetched
	// file path is appended as the last argument. Empty skips the stage.
	NormalizeCommand []string
	FetchTimeout     time.Duration
	NormalizeTimeout time.Duration
}

type job struct {
	snapshot api.DownloadJob
	cancel   context.CancelFunc
}

// Pipeline runs download jobs. Each job is its own goroutine working through
// Fetching then Normalizing; jobs never touch playlist state themselves —
// the success callback is where the result gets added to a playlist.
type Pipeline struct {
	dir     string
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger

	onUpdate  func(api.DownloadJob)
	onSuccess func(playlistID, path string)

	mu   sync.Mutex
	jobs map[string]*job
}

// NewPipeline creates a pipeline downloading into dir.
func NewPipeline(dir string, fetcher Fetcher, opts Options) *Pipeline {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Minute
	}
	if opts.NormalizeTimeout <= 0 {
		opts.NormalizeTimeout = 5 * time.Minute
	}
	return &Pipeline{
		dir:     dir,
		fetcher: fetcher,
		opts:    opts,
		log:     logging.For("download"),
		jobs:    make(map[string]*job),
	}
}

// SetCallbacks registers the update and success hooks. Must be called before
// the first Request. onSuccess runs off the job goroutine after the job has
// already been marked Succeeded.
func (p *Pipeline) SetCallbacks(onUpdate func(api.DownloadJob), onSuccess func(playlistID, path string)) {
	p.onUpdate = onUpdate
	p.onSuccess = onSuccess
}

// Request starts a new download job for the playlist and returns its id.
func (p *Pipeline) Request(playlistID, query string) string {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		snapshot: api.DownloadJob{
			ID:         uuid.NewString(),
			PlaylistID: playlistID,
			Query:      query,
			Status:     api.JobFetching,
			StartedAt:  time.Now(),
		},
		cancel: cancel,
	}

	p.mu.Lock()
	p.jobs[j.snapshot.ID] = j
	p.mu.Unlock()

	p.log.Info().Str("job", j.snapshot.ID).Str("query", query).Msg("download requested")
	p.publish(j.snapshot.ID)
	go p.run(ctx, j.snapshot.ID)
	return j.snapshot.ID
}

// Job returns a snapshot of the job.
func (p *Pipeline) Job(id string) (api.DownloadJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return api.DownloadJob{}, playerrors.ErrJobNotFound
	}
	return j.snapshot, nil
}

// Jobs returns snapshots of all jobs, newest first.
func (p *Pipeline) Jobs() []api.DownloadJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]api.DownloadJob, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.snapshot)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Cancel aborts a running job. The external process is killed, any fetched
// file is deleted and the job fails with a cancellation reason. Cancelling a
// job already in a terminal state is an error.
func (p *Pipeline) Cancel(id string) error {
	p.mu.Lock()
	j, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return playerrors.ErrJobNotFound
	}
	if j.snapshot.Status.Terminal() {
		p.mu.Unlock()
		return playerrors.ErrInvalidTransition
	}
	cancel := j.cancel
	p.mu.Unlock()

	cancel()
	return nil
}

// Forget drops a terminal job from the table. Running jobs cannot be
// forgotten.
func (p *Pipeline) Forget(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return playerrors.ErrJobNotFound
	}
	if !j.snapshot.Status.Terminal() {
		return playerrors.ErrInvalidTransition
	}
	delete(p.jobs, id)
	return nil
}

func (p *Pipeline) run(ctx context.Context, id string) {
	snap, err := p.Job(id)
	if err != nil {
		return
	}
	query := snap.Query

	// The downloader works in a per-job staging directory so that whatever
	// it leaves behind on cancel or failure (partial files included) can be
	// wiped wholesale. The file moves into the music directory only once
	// the fetch has fully succeeded.
	staging, err := os.MkdirTemp(p.dir, ".fetch-")
	if err != nil {
		p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrFetchFailed, err))
		return
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, p.opts.FetchTimeout)
	var path string
	if pf, ok := p.fetcher.(progressFetcher); ok {
		path, err = pf.FetchWithProgress(fetchCtx, query, staging, func(line string) {
			p.withJob(id, func(j *job) { j.snapshot.Progress = line })
			p.publish(id)
		})
	} else {
		path, err = p.fetcher.Fetch(fetchCtx, query, staging)
	}
	cancelFetch()
	if err == nil {
		if _, statErr := os.Stat(path); statErr != nil {
			err = fmt.Errorf("downloader output missing: %w", statErr)
		}
	}
	if err != nil {
		os.RemoveAll(staging)
		if ctx.Err() != nil {
			p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrCancelled, err))
		} else {
			p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrFetchFailed, err))
		}
		return
	}

	final := filepath.Join(p.dir, filepath.Base(path))
	if err := os.Rename(path, final); err != nil {
		os.RemoveAll(staging)
		p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrFetchFailed, err))
		return
	}
	os.RemoveAll(staging)
	path = final

	p.withJob(id, func(j *job) {
		j.snapshot.Status = api.JobNormalizing
		j.snapshot.OutputPath = path
		j.snapshot.Progress = ""
	})
	p.publish(id)

	if err := p.normalize(ctx, path); err != nil {
		if ctx.Err() != nil {
			os.Remove(path)
			p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrCancelled, err))
			return
		}
		// The fetched file stays on disk: a successful download is not
		// thrown away over a loudness-pass failure.
		p.fail(id, fmt.Errorf("%w: %v", playerrors.ErrNormalizeFailed, err))
		return
	}

	snap = p.withJob(id, func(j *job) {
		j.snapshot.Status = api.JobSucceeded
		j.snapshot.FinishedAt = time.Now()
	})
	p.log.Info().Str("job", id).Str("path", path).Msg("download succeeded")
	p.publish(id)
	if p.onSuccess != nil {
		p.onSuccess(snap.PlaylistID, path)
	}
}

// normalize runs the loudness tool on the file in place.
func (p *Pipeline) normalize(ctx context.Context, path string) error {
	argv := p.opts.NormalizeCommand
	if len(argv) == 0 {
		return nil
	}
	normCtx, cancel := context.WithTimeout(ctx, p.opts.NormalizeTimeout)
	defer cancel()

	cmd := exec.CommandContext(normCtx, argv[0], append(append([]string{}, argv[1:]...), path)...)
	cmd.WaitDelay = 5 * time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %v: %s", argv[0], err, out)
	}
	return nil
}

func (p *Pipeline) fail(id string, reason error) {
	p.withJob(id, func(j *job) {
		j.snapshot.Status = api.JobFailed
		j.snapshot.Err = reason.Error()
		j.snapshot.FinishedAt = time.Now()
	})
	p.log.Warn().Str("job", id).Err(reason).Msg("download failed")
	p.publish(id)
}

// withJob mutates a job under the lock and returns the updated snapshot.
func (p *Pipeline) withJob(id string, fn func(*job)) api.DownloadJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return api.DownloadJob{}
	}
	fn(j)
	return j.snapshot
}

func (p *Pipeline) publish(id string) {
	if p.onUpdate == nil {
		return
	}
	snap, err := p.Job(id)
	if err != nil {
		return
	}
	p.onUpdate(snap)
}
