package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/faiface/beep"

	playerrors "implayer/pkg/errors"
)

// ffmpegStreamer decodes containers beep has no native decoder for (m4a/aac)
// by piping interleaved s16le stereo PCM out of an ffmpeg child process.
// Seeking restarts the decode and discards frames up to the target position;
// that cost is accepted in exchange for not parsing the container ourselves.
type ffmpegStreamer struct {
	path       string
	ffmpegPath string
	rate       int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	br     *bufio.Reader

	pos    int // samples handed out since the last (re)start
	length int // total samples, from the ffprobe duration; -1 if unknown
	err    error
	closed bool
}

func openFFmpeg(path string, cfg DecoderConfig) (beep.StreamSeekCloser, beep.Format, error) {
	// Probe first: it validates the container header up front so a corrupt
	// file fails at open time, not on the audio path.
	dur, err := ProbeDuration(context.Background(), cfg.FFprobePath, path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %v", playerrors.ErrCorruptStream, err)
	}

	s := &ffmpegStreamer{
		path:       path,
		ffmpegPath: cfg.FFmpegPath,
		rate:       cfg.SampleRate,
		length:     int(float64(cfg.SampleRate) * dur.Seconds()),
	}
	if err := s.start(); err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %v", playerrors.ErrCorruptStream, err)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(cfg.SampleRate),
		NumChannels: 2,
		Precision:   2,
	}
	return s, format, nil
}

func (s *ffmpegStreamer) start() error {
	cmd := exec.Command(s.ffmpegPath,
		"-v", "error",
		"-i", s.path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(s.rate),
		"-ac", "2",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.cmd = cmd
	s.stdout = stdout
	s.br = bufio.NewReaderSize(stdout, 64*1024)
	s.pos = 0
	return nil
}

func (s *ffmpegStreamer) stop() {
	if s.cmd == nil {
		return
	}
	s.stdout.Close()
	s.cmd.Process.Kill()
	s.cmd.Wait()
	s.cmd = nil
}

func (s *ffmpegStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.closed || s.err != nil || s.cmd == nil {
		return 0, false
	}
	var frame [4]byte
	for n = range samples {
		if _, err := io.ReadFull(s.br, frame[:]); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.err = fmt.Errorf("%w: %v", playerrors.ErrDecodeAborted, err)
			} else if werr := s.cmd.Wait(); werr != nil {
				// ffmpeg exited non-zero: the stream was cut short.
				s.err = fmt.Errorf("%w: %v", playerrors.ErrDecodeAborted, werr)
				s.cmd = nil
			} else {
				s.cmd = nil
			}
			s.pos += n
			return n, n > 0
		}
		left := int16(uint16(frame[0]) | uint16(frame[1])<<8)
		right := int16(uint16(frame[2]) | uint16(frame[3])<<8)
		samples[n][0] = float64(left) / (1 << 15)
		samples[n][1] = float64(right) / (1 << 15)
	}
	s.pos += n
	return n, true
}

func (s *ffmpegStreamer) Err() error {
	return s.err
}

func (s *ffmpegStreamer) Len() int {
	return s.length
}

func (s *ffmpegStreamer) Position() int {
	return s.pos
}

// Seek restarts the decode and discards samples until the target position.
func (s *ffmpegStreamer) Seek(p int) error {
	if s.closed {
		return fmt.Errorf("seek on closed stream")
	}
	if p < 0 {
		p = 0
	}
	if p < s.pos || s.cmd == nil {
		s.stop()
		s.err = nil
		if err := s.start(); err != nil {
			s.err = fmt.Errorf("%w: %v", playerrors.ErrDecodeAborted, err)
			return s.err
		}
	}
	discard := make([][2]float64, 512)
	for s.pos < p {
		want := p - s.pos
		if want > len(discard) {
			want = len(discard)
		}
		n, ok := s.Stream(discard[:want])
		if !ok || n == 0 {
			break
		}
	}
	return s.err
}

func (s *ffmpegStreamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

// ProbeDuration asks ffprobe for the duration of an audio file. It is used
// for lazy duration probing across all supported formats.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
