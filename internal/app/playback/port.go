package playback

import (
	"time"

	"github.com/osa030/tonebox/internal/domain/signal"
)

// SourceID identifies a signal source created on a Device.
type SourceID string

// Device is the audio primitive the engine drives. Connected sources are
// summed through a single master gain.
type Device interface {
	// SampleRate returns the output sample rate in Hz.
	SampleRate() int
	// NewToneSource creates an oscillator. It produces nothing until connected.
	NewToneSource(w signal.Waveform, hz float64) (SourceID, error)
	// NewBufferSource creates a buffer player over samples recorded at sampleRate.
	NewBufferSource(samples []float32, sampleRate int, loop bool) (SourceID, error)
	// Connect routes a source to the master gain.
	Connect(id SourceID) error
	// Disconnect stops a source and releases it.
	Disconnect(id SourceID)
	// SetFrequency changes an oscillator's frequency without restarting it.
	SetFrequency(id SourceID, hz float64)
	// SetGain changes the master gain.
	SetGain(level float64)
	// Close releases the output device.
	Close() error
}

// Scheduler runs fn once on the next tick. The returned function cancels
// the tick if it has not fired yet.
type Scheduler interface {
	ScheduleTick(fn func()) (cancel func())
}

// Clock supplies wall-clock time to the modulation loop.
type Clock interface {
	Now() time.Time
}
