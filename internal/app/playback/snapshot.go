package playback

import (
	"math"

	"github.com/osa030/tonebox/internal/app/sweep"
	"github.com/osa030/tonebox/internal/domain/signal"
)

// Snapshot is a read-only copy of the playback state.
type Snapshot struct {
	State         State
	Mode          signal.Mode
	Sounding      bool
	Frequency     float64
	Waveform      signal.Waveform
	NoiseColor    signal.NoiseColor
	Volume        float64
	Sweep         *sweep.Config
	SweepRunning  bool
	SweepProgress float64 // Progress of the current traversal in [0, 1]
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		State:        e.stateLocked(),
		Mode:         e.mode,
		Sounding:     e.sounding,
		Frequency:    e.frequency,
		Waveform:     e.waveform,
		NoiseColor:   e.noiseColor,
		Volume:       e.volume,
		SweepRunning: e.sweepRunning,
	}
	if e.sweep != nil {
		cfg := *e.sweep
		s.Sweep = &cfg
		if e.sweepRunning {
			elapsed := e.clock.Now().Sub(e.sweepStart).Seconds()
			s.SweepProgress = math.Min(math.Max(elapsed/cfg.Duration, 0), 1)
		}
	}
	return s
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	if !e.sounding {
		return StateIdle
	}
	switch e.mode {
	case signal.ModeNoise:
		return StateNoise
	case signal.ModeRhythm:
		return StateRhythm
	default:
		return StateTone
	}
}

// Frequency returns the stored frequency; in rhythm mode this is the live
// swept frequency.
func (e *Engine) Frequency() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frequency
}

// Waveform returns the tone waveform.
func (e *Engine) Waveform() signal.Waveform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waveform
}

// NoiseColor returns the noise color.
func (e *Engine) NoiseColor() signal.NoiseColor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.noiseColor
}

// Mode returns the sound mode.
func (e *Engine) Mode() signal.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Volume returns the master volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// IsSounding reports whether an output is connected.
func (e *Engine) IsSounding() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sounding
}

// IsSweepRunning reports whether the modulation loop is active.
func (e *Engine) IsSweepRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepRunning
}

// Sweep returns a copy of the configured sweep, if any.
func (e *Engine) Sweep() (sweep.Config, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sweep == nil {
		return sweep.Config{}, false
	}
	return *e.sweep, true
}
