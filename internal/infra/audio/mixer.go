// Package audio provides the software audio primitive driven by the
// playback engine and its sound card output.
package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/tonebox/internal/app/playback"
	"github.com/osa030/tonebox/internal/domain/signal"
)

// ErrUnknownSource is returned for operations on sources the mixer does not hold.
var ErrUnknownSource = errors.New("unknown source")

// gainTimeConstant is the smoothing time of master gain changes, in seconds.
const gainTimeConstant = 0.005

type mixerSource struct {
	src       source
	osc       *oscillator // nil for buffer players
	connected bool
}

// Mixer sums connected sources through a master gain and renders mono
// float32 PCM. It is safe for concurrent use by the engine and the output
// goroutine.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	sources    map[playback.SourceID]*mixerSource
	gain       float64 // current, smoothed
	targetGain float64
	gainCoef   float64

	scratch []float32 // Read buffer, owned by the output goroutine
}

// NewMixer creates a mixer rendering at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		sources:    make(map[playback.SourceID]*mixerSource),
		gainCoef:   1 - math.Exp(-1/(gainTimeConstant*float64(sampleRate))),
	}
}

// SampleRate returns the output sample rate.
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// NewToneSource creates a disconnected oscillator.
func (m *Mixer) NewToneSource(w signal.Waveform, hz float64) (playback.SourceID, error) {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return "", errors.Newf("invalid tone frequency %v", hz)
	}
	osc := newOscillator(w, hz, m.sampleRate)
	return m.add(&mixerSource{src: osc, osc: osc}), nil
}

// NewBufferSource creates a disconnected buffer player. The samples are not copied.
func (m *Mixer) NewBufferSource(samples []float32, sampleRate int, loop bool) (playback.SourceID, error) {
	if sampleRate <= 0 {
		return "", errors.Newf("invalid buffer sample rate %d", sampleRate)
	}
	return m.add(&mixerSource{src: newPlayer(samples, sampleRate, m.sampleRate, loop)}), nil
}

func (m *Mixer) add(s *mixerSource) playback.SourceID {
	id := playback.SourceID(uuid.NewString())
	m.mu.Lock()
	m.sources[id] = s
	m.mu.Unlock()
	return id
}

// Connect routes a source to the master gain.
func (m *Mixer) Connect(id playback.SourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok {
		return errors.Wrapf(ErrUnknownSource, "%s", id)
	}
	s.connected = true
	return nil
}

// Disconnect stops and forgets a source. Unknown IDs are ignored.
func (m *Mixer) Disconnect(id playback.SourceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
}

// SetFrequency retunes an oscillator in place. Buffer players and unknown
// IDs are ignored.
func (m *Mixer) SetFrequency(id playback.SourceID, hz float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[id]; ok && s.osc != nil {
		s.osc.setFrequency(hz)
	}
}

// SetGain sets the master gain target, clamped to [0, 1].
func (m *Mixer) SetGain(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetGain = signal.ClampVolume(level)
}

// Connected returns the number of connected sources.
func (m *Mixer) Connected() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sources {
		if s.connected {
			n++
		}
	}
	return n
}

// Render fills out with mixed samples.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		var sum float64
		for _, s := range m.sources {
			if s.connected {
				sum += s.src.next()
			}
		}
		m.gain += (m.targetGain - m.gain) * m.gainCoef
		out[i] = float32(sum * m.gain)
	}
}

// Read implements io.Reader producing float32 little-endian samples.
func (m *Mixer) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(m.scratch) < n {
		m.scratch = make([]float32, n)
	}
	samples := m.scratch[:n]
	m.Render(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n * 4, nil
}
