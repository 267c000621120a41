package audio

import (
	"math"

	"github.com/osa030/tonebox/internal/domain/signal"
)

// source produces one sample per call at the mixer's sample rate.
type source interface {
	next() float64
}

// oscillator is a phase-accumulating tone generator. Changing its
// frequency keeps the phase, so retuning is click-free.
type oscillator struct {
	waveform   signal.Waveform
	sampleRate float64
	phase      float64 // [0, 1)
	step       float64
}

func newOscillator(w signal.Waveform, hz float64, sampleRate int) *oscillator {
	o := &oscillator{waveform: w, sampleRate: float64(sampleRate)}
	o.setFrequency(hz)
	return o
}

func (o *oscillator) setFrequency(hz float64) {
	o.step = hz / o.sampleRate
}

func (o *oscillator) next() float64 {
	p := o.phase
	o.phase += o.step
	if o.phase >= 1 {
		o.phase -= math.Floor(o.phase)
	}

	switch o.waveform {
	case signal.Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case signal.Sawtooth:
		return 2*p - 1
	case signal.Triangle:
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

// player replays a sample buffer, converting its rate by nearest sample.
type player struct {
	samples []float32
	pos     float64
	step    float64
	loop    bool
}

func newPlayer(samples []float32, bufferRate, outputRate int, loop bool) *player {
	step := 1.0
	if bufferRate > 0 && outputRate > 0 {
		step = float64(bufferRate) / float64(outputRate)
	}
	return &player{samples: samples, step: step, loop: loop}
}

func (p *player) next() float64 {
	n := len(p.samples)
	if n == 0 {
		return 0
	}
	i := int(p.pos)
	if i >= n {
		if !p.loop {
			return 0
		}
		p.pos = math.Mod(p.pos, float64(n))
		i = int(p.pos)
	}
	p.pos += p.step
	return float64(p.samples[i])
}
