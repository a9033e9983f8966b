package audio

import (
	"context"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/rs/zerolog"

	"implayer/api"
	"implayer/internal/logging"
	playerrors "implayer/pkg/errors"
)

// Engine owns the audio output and streams decoded PCM into it. It is a
// three-state machine (stopped/playing/paused); transport commands are
// serialized behind one mutex so they can never interleave.
//
// The engine plays single files. Which song comes next is not its concern:
// it reports natural completion (or a mid-stream decode abort) through the
// song-end hook and the facade decides what to do.
type Engine struct {
	cfg DecoderConfig
	out Output
	log zerolog.Logger

	mu         sync.Mutex
	status     api.PlaybackStatus
	streamer   beep.StreamSeekCloser
	srcRate    beep.SampleRate
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	level      float64
	generation int

	onSongEnd  func(aborted bool)
	onPosition func(pos time.Duration)
}

// NewEngine creates a playback engine feeding the given output.
func NewEngine(cfg DecoderConfig, out Output, volume float64) *Engine {
	return &Engine{
		cfg:    cfg,
		out:    out,
		log:    logging.For("playback"),
		status: api.StatusStopped,
		level:  volume,
	}
}

// SetHooks registers the natural-end and position callbacks. Must be called
// before Start. The song-end hook runs on its own goroutine, never on the
// audio-feeding path.
func (e *Engine) SetHooks(onSongEnd func(aborted bool), onPosition func(time.Duration)) {
	e.onSongEnd = onSongEnd
	e.onPosition = onPosition
}

// Start acquires the audio device and begins emitting position updates until
// the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.out.Init(beep.SampleRate(e.cfg.SampleRate)); err != nil {
		return playerrors.NewPlayerError("audio device init", "", err)
	}
	go e.trackPosition(ctx)
	return nil
}

// trackPosition periodically reports the audio-clock position while playing.
func (e *Engine) trackPosition(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-ticker.C:
			e.mu.Lock()
			playing := e.status == api.StatusPlaying
			e.mu.Unlock()
			if playing && e.onPosition != nil {
				e.onPosition(e.Position())
			}
		}
	}
}

// Play opens a decode handle for the file, releases any previous one and
// starts streaming. The state becomes Playing; on failure it is unchanged.
func (e *Engine) Play(path string) error {
	streamer, format, err := Open(path, e.cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	e.streamer = streamer
	e.srcRate = format.SampleRate
	e.ctrl = &beep.Ctrl{Streamer: streamer}

	var resampled beep.Streamer = e.ctrl
	if format.SampleRate != beep.SampleRate(e.cfg.SampleRate) {
		resampled = beep.Resample(4, format.SampleRate, beep.SampleRate(e.cfg.SampleRate), e.ctrl)
	}
	e.volume = &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   e.level*2 - 1,
		Silent:   e.level == 0,
	}

	e.generation++
	gen := e.generation
	// The callback fires on the audio-feeding loop with the device lock
	// held; hop off it immediately.
	e.out.Play(beep.Seq(e.volume, beep.Callback(func() {
		go e.songEnded(gen)
	})))
	e.status = api.StatusPlaying

	e.log.Debug().Str("path", path).Msg("playing")
	return nil
}

// Pause stops frame delivery without releasing the decode handle, so Resume
// continues from the same position. Valid only while Playing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != api.StatusPlaying {
		return playerrors.ErrInvalidTransition
	}
	e.out.Lock()
	e.ctrl.Paused = true
	e.out.Unlock()
	e.status = api.StatusPaused
	return nil
}

// Resume restarts frame delivery. Valid only while Paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != api.StatusPaused {
		return playerrors.ErrInvalidTransition
	}
	e.out.Lock()
	e.ctrl.Paused = false
	e.out.Unlock()
	e.status = api.StatusPlaying
	return nil
}

// Stop releases the decode handle and transitions to Stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.out.Clear()
	if e.streamer != nil {
		e.streamer.Close()
		e.streamer = nil
	}
	e.ctrl = nil
	e.volume = nil
	e.generation++
	e.status = api.StatusStopped
}

// Seek moves the playhead, clamping to the song bounds. Containers without
// true seek support restart the decode and discard frames up to the target.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return playerrors.ErrInvalidTransition
	}
	n := e.srcRate.N(pos)
	if n < 0 {
		n = 0
	}
	if l := e.streamer.Len(); l > 0 && n >= l {
		n = l - 1
	}
	e.out.Lock()
	err := e.streamer.Seek(n)
	e.out.Unlock()
	if err != nil {
		return playerrors.NewPlayerError("seek", "", err)
	}
	return nil
}

// SetVolume sets the volume level (0.0 to 1.0).
func (e *Engine) SetVolume(level float64) error {
	if level < 0 || level > 1 {
		return playerrors.ErrInvalidVolume
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = level
	if e.volume != nil {
		e.out.Lock()
		e.volume.Volume = level*2 - 1
		e.volume.Silent = level == 0
		e.out.Unlock()
	}
	return nil
}

// Volume returns the current volume level.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// Status returns the transport state.
func (e *Engine) Status() api.PlaybackStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Position returns the elapsed time of the current song, derived from the
// number of samples the decoder has handed to the device rather than any
// wall clock. It is monotonically non-decreasing while playing and frozen
// while paused.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return 0
	}
	e.out.Lock()
	pos := e.streamer.Position()
	e.out.Unlock()
	return e.srcRate.D(pos)
}

// songEnded handles the streamer running out, distinguishing natural
// completion from a mid-stream decode abort.
func (e *Engine) songEnded(gen int) {
	e.mu.Lock()
	if gen != e.generation || e.status == api.StatusStopped {
		e.mu.Unlock()
		return
	}
	aborted := false
	if e.streamer != nil {
		aborted = e.streamer.Err() != nil
		if aborted {
			e.log.Warn().Err(e.streamer.Err()).Msg("decode aborted mid-stream")
		}
		e.streamer.Close()
		e.streamer = nil
	}
	e.ctrl = nil
	e.volume = nil
	e.generation++
	e.status = api.StatusStopped
	cb := e.onSongEnd
	e.mu.Unlock()

	if cb != nil {
		cb(aborted)
	}
}
