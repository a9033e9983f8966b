package audio

import (
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Output is the audio device the engine streams into. It is an interface so
// the engine's state machine can be exercised without real hardware.
type Output interface {
	// Init acquires the device at the given sample rate. Calling it again
	// with the same rate is a no-op.
	Init(rate beep.SampleRate) error
	// Play starts pulling from the streamer on the device's feeding loop.
	Play(s beep.Streamer)
	// Clear stops pulling and drops the current streamer.
	Clear()
	// Lock/Unlock guard any access to streamers the device is pulling from;
	// the feeding loop holds the same lock while mixing.
	Lock()
	Unlock()
}

// SpeakerOutput drives the process-wide beep speaker. The device is acquired
// once and held for the engine's lifetime.
type SpeakerOutput struct {
	rate beep.SampleRate
}

// NewSpeakerOutput returns an uninitialized speaker-backed output.
func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

func (o *SpeakerOutput) Init(rate beep.SampleRate) error {
	if o.rate == rate {
		return nil
	}
	// A tenth of a second of buffer keeps underruns inaudible without
	// making transport commands feel laggy.
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	o.rate = rate
	return nil
}

func (o *SpeakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *SpeakerOutput) Clear()               { speaker.Clear() }
func (o *SpeakerOutput) Lock()                { speaker.Lock() }
func (o *SpeakerOutput) Unlock()              { speaker.Unlock() }
