// Package signal provides the signal vocabulary shared by the engine and its hosts.
package signal

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// Frequency and sweep bounds.
const (
	MinFrequency     = 20.0    // Hz
	MaxFrequency     = 20000.0 // Hz
	MinSweepDuration = 0.1     // seconds
	MaxSweepDuration = 60.0    // seconds
)

// Errors
var (
	ErrUnknownWaveform   = errors.New("unknown waveform")
	ErrUnknownNoiseColor = errors.New("unknown noise color")
	ErrUnknownMode       = errors.New("unknown sound mode")
	ErrUnknownTransition = errors.New("unknown transition")
)

// Waveform represents the shape of a periodic tone.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

// Waveforms lists every supported waveform.
var Waveforms = []Waveform{Sine, Square, Sawtooth, Triangle}

// NoiseColor represents the spectral shape of a noise signal.
type NoiseColor string

const (
	White  NoiseColor = "white"
	Pink   NoiseColor = "pink"
	Brown  NoiseColor = "brown"
	Blue   NoiseColor = "blue"
	Violet NoiseColor = "violet"
	Grey   NoiseColor = "grey"
)

// NoiseColors lists every supported noise color.
var NoiseColors = []NoiseColor{White, Pink, Brown, Blue, Violet, Grey}

// Mode selects which signal is produced.
type Mode string

const (
	ModeTone   Mode = "tone"
	ModeNoise  Mode = "noise"
	ModeRhythm Mode = "rhythm"
)

// Modes lists every sound mode.
var Modes = []Mode{ModeTone, ModeNoise, ModeRhythm}

// Transition is the interpolation curve of a frequency sweep.
type Transition string

const (
	Linear      Transition = "linear"
	Exponential Transition = "exponential"
	SineEase    Transition = "sine"
)

// Transitions lists every sweep transition.
var Transitions = []Transition{Linear, Exponential, SineEase}

func (w Waveform) String() string   { return string(w) }
func (c NoiseColor) String() string { return string(c) }
func (m Mode) String() string       { return string(m) }
func (t Transition) String() string { return string(t) }

// ParseWaveform parses a waveform name (case-insensitive).
func ParseWaveform(s string) (Waveform, error) {
	w := Waveform(normalize(s))
	for _, known := range Waveforms {
		if w == known {
			return w, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownWaveform, "%q", s)
}

// ParseNoiseColor parses a noise color name. "gray" is accepted as an alias of grey.
func ParseNoiseColor(s string) (NoiseColor, error) {
	n := normalize(s)
	if n == "gray" {
		n = string(Grey)
	}
	c := NoiseColor(n)
	for _, known := range NoiseColors {
		if c == known {
			return c, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownNoiseColor, "%q", s)
}

// ParseMode parses a sound mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(normalize(s))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownMode, "%q", s)
}

// ParseTransition parses a transition name.
func ParseTransition(s string) (Transition, error) {
	t := Transition(normalize(s))
	for _, known := range Transitions {
		if t == known {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownTransition, "%q", s)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ClampFrequency limits f to [MinFrequency, MaxFrequency].
// NaN is mapped to MinFrequency.
func ClampFrequency(f float64) float64 {
	if math.IsNaN(f) {
		return MinFrequency
	}
	return math.Max(MinFrequency, math.Min(MaxFrequency, f))
}

// ClampVolume limits v to [0, 1]. NaN is mapped to 0.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// InAudibleRange reports whether f lies in [MinFrequency, MaxFrequency].
func InAudibleRange(f float64) bool {
	return f >= MinFrequency && f <= MaxFrequency
}

// ShiftOctave doubles (up) or halves (down) f and clamps the result.
func ShiftOctave(f float64, up bool) float64 {
	if up {
		return ClampFrequency(f * 2)
	}
	return ClampFrequency(f / 2)
}
