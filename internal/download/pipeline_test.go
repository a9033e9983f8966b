package download

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"implayer/api"
	playerrors "implayer/pkg/errors"
)

// fakeFetcher writes a file into the target directory, or fails, or blocks
// until cancelled.
type fakeFetcher struct {
	file  string
	err   error
	block bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, query, dir string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, f.file)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// partialFetcher leaves a half-written file in the staging directory and
// returns no path, the way the real downloader behaves when it is killed
// mid-transfer.
type partialFetcher struct{}

func (partialFetcher) Fetch(ctx context.Context, query, dir string) (string, error) {
	if err := os.WriteFile(filepath.Join(dir, "song.m4a.part"), []byte("partial"), 0o644); err != nil {
		return "", err
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func waitTerminal(t *testing.T, updates <-chan api.DownloadJob) api.DownloadJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Status.Terminal() {
				return snap
			}
		case <-deadline:
			t.Fatal("job never reached a terminal state")
		}
	}
}

func newTestPipeline(t *testing.T, fetcher Fetcher, normalize []string) (*Pipeline, chan api.DownloadJob, chan string) {
	t.Helper()
	p := NewPipeline(t.TempDir(), fetcher, Options{
		NormalizeCommand: normalize,
		FetchTimeout:     5 * time.Second,
		NormalizeTimeout: 5 * time.Second,
	})
	updates := make(chan api.DownloadJob, 32)
	added := make(chan string, 4)
	p.SetCallbacks(
		func(snap api.DownloadJob) { updates <- snap },
		func(playlistID, path string) { added <- path },
	)
	return p, updates, added
}

func TestPipelineSuccess(t *testing.T) {
	p, updates, added := newTestPipeline(t, &fakeFetcher{file: "song.m4a"}, []string{"true"})

	id := p.Request("mix", "some song")
	snap := waitTerminal(t, updates)
	if snap.Status != api.JobSucceeded {
		t.Fatalf("status = %v (%s), want succeeded", snap.Status, snap.Err)
	}
	if _, err := os.Stat(snap.OutputPath); err != nil {
		t.Errorf("output file missing: %v", err)
	}

	select {
	case path := <-added:
		if path != snap.OutputPath {
			t.Errorf("success callback got %q, want %q", path, snap.OutputPath)
		}
	case <-time.After(time.Second):
		t.Error("success callback never fired")
	}

	got, err := p.Job(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PlaylistID != "mix" || got.Query != "some song" {
		t.Errorf("job snapshot = %+v", got)
	}
}

func TestPipelineNormalizeFailureKeepsFile(t *testing.T) {
	p, updates, added := newTestPipeline(t, &fakeFetcher{file: "song.m4a"}, []string{"false"})

	p.Request("mix", "some song")
	snap := waitTerminal(t, updates)
	if snap.Status != api.JobFailed {
		t.Fatalf("status = %v, want failed", snap.Status)
	}
	if !strings.Contains(snap.Err, playerrors.ErrNormalizeFailed.Error()) {
		t.Errorf("failure reason = %q, want normalize failure", snap.Err)
	}
	// The successful download survives the failed loudness pass.
	if _, err := os.Stat(snap.OutputPath); err != nil {
		t.Errorf("fetched file was deleted: %v", err)
	}
	select {
	case <-added:
		t.Error("failed job was handed to the playlist")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipelineFetchFailure(t *testing.T) {
	p, updates, _ := newTestPipeline(t, &fakeFetcher{err: errors.New("no such video")}, nil)

	p.Request("mix", "gone")
	snap := waitTerminal(t, updates)
	if snap.Status != api.JobFailed {
		t.Fatalf("status = %v, want failed", snap.Status)
	}
	if !strings.Contains(snap.Err, playerrors.ErrFetchFailed.Error()) {
		t.Errorf("failure reason = %q, want fetch failure", snap.Err)
	}
}

func TestPipelineCancel(t *testing.T) {
	p, updates, _ := newTestPipeline(t, &fakeFetcher{block: true}, nil)

	if err := p.Cancel("nope"); !errors.Is(err, playerrors.ErrJobNotFound) {
		t.Fatalf("Cancel(unknown) = %v, want ErrJobNotFound", err)
	}

	id := p.Request("mix", "slow song")
	if err := p.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	snap := waitTerminal(t, updates)
	if snap.Status != api.JobFailed {
		t.Fatalf("status = %v, want failed", snap.Status)
	}
	if !strings.Contains(snap.Err, playerrors.ErrCancelled.Error()) {
		t.Errorf("failure reason = %q, want cancellation", snap.Err)
	}

	if err := p.Cancel(id); !errors.Is(err, playerrors.ErrInvalidTransition) {
		t.Errorf("Cancel(terminal) = %v, want ErrInvalidTransition", err)
	}
}

func TestPipelineCancelRemovesPartialFile(t *testing.T) {
	p, updates, _ := newTestPipeline(t, partialFetcher{}, nil)

	id := p.Request("mix", "slow song")
	// Let the fetcher get far enough to drop its partial file.
	time.Sleep(50 * time.Millisecond)
	if err := p.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	snap := waitTerminal(t, updates)
	if !strings.Contains(snap.Err, playerrors.ErrCancelled.Error()) {
		t.Fatalf("failure reason = %q, want cancellation", snap.Err)
	}

	var left []string
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			left = append(left, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("partial files still on disk after explicit cancel: %v", left)
	}
}

func TestPipelineSuccessLeavesOnlyFinalFile(t *testing.T) {
	p, updates, _ := newTestPipeline(t, &fakeFetcher{file: "song.m4a"}, nil)

	p.Request("mix", "some song")
	snap := waitTerminal(t, updates)
	if snap.Status != api.JobSucceeded {
		t.Fatalf("status = %v (%s), want succeeded", snap.Status, snap.Err)
	}
	if filepath.Dir(snap.OutputPath) != p.dir {
		t.Errorf("output %q not in the music directory %q", snap.OutputPath, p.dir)
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "song.m4a" {
		t.Errorf("music directory not left with just the download: %v", entries)
	}
}

func TestPipelineForget(t *testing.T) {
	p, updates, _ := newTestPipeline(t, &fakeFetcher{file: "song.m4a"}, nil)

	id := p.Request("mix", "some song")
	if err := p.Forget(id); !errors.Is(err, playerrors.ErrInvalidTransition) && err != nil {
		// The job may already have finished; both outcomes are legal here.
		t.Logf("Forget while running: %v", err)
	}
	waitTerminal(t, updates)

	if err := p.Forget(id); err != nil {
		t.Fatalf("Forget(terminal) = %v", err)
	}
	if _, err := p.Job(id); !errors.Is(err, playerrors.ErrJobNotFound) {
		t.Errorf("Job after Forget = %v, want ErrJobNotFound", err)
	}
	if err := p.Forget(id); !errors.Is(err, playerrors.ErrJobNotFound) {
		t.Errorf("Forget twice = %v, want ErrJobNotFound", err)
	}
}

func TestPipelineJobsNewestFirst(t *testing.T) {
	p, updates, _ := newTestPipeline(t, &fakeFetcher{file: "a.m4a"}, nil)

	first := p.Request("mix", "one")
	waitTerminal(t, updates)
	second := p.Request("mix", "two")
	waitTerminal(t, updates)

	jobs := p.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != second || jobs[1].ID != first {
		t.Errorf("jobs not newest first: %s, %s", jobs[0].ID, jobs[1].ID)
	}
}
