// Package noise synthesizes colored noise buffers.
package noise

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/osa030/tonebox/internal/domain/signal"
)

// Pink noise filter bank (Paul Kellett's refined method).
var (
	pinkRetain = [6]float64{0.99886, 0.99332, 0.96900, 0.86650, 0.55000, -0.7616}
	pinkGain   = [6]float64{0.0555179, 0.0750759, 0.1538520, 0.3104856, 0.5329522, -0.0168980}
)

const (
	pinkDirectGain = 0.5362
	pinkCarryGain  = 0.115926
	pinkScale      = 0.11

	brownStep    = 0.02
	brownLeak    = 1.02
	brownBoost   = 3.5
	violetDivide = 4.0
	greyScale    = 0.25
)

// Grey noise equal-loudness approximation.
var (
	greyRetain = [4]float64{0.99, 0.96, 0.92, 0.88}
	greyGain   = [4]float64{0.121, 0.234, 0.345, 0.289}
)

// Synthesizer fills sample buffers with colored noise.
// A Synthesizer is not safe for concurrent use; use one per goroutine.
type Synthesizer struct {
	rng *rand.Rand
}

// New creates a synthesizer drawing from rng. A nil rng gets a time-seeded source.
func New(rng *rand.Rand) *Synthesizer {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Synthesizer{rng: rng}
}

// Generate returns n samples of the given color using a fresh random source.
func Generate(color signal.NoiseColor, n int) []float32 {
	return New(nil).Generate(color, n)
}

// SampleCount returns the number of samples covering seconds at sampleRate.
func SampleCount(sampleRate int, seconds float64) int {
	n := int(math.Round(float64(sampleRate) * seconds))
	if n < 0 {
		return 0
	}
	return n
}

// Generate returns n samples of the given color. n <= 0 yields an empty buffer.
func (s *Synthesizer) Generate(color signal.NoiseColor, n int) []float32 {
	if n < 0 {
		n = 0
	}
	buf := make([]float32, n)
	s.Fill(color, buf)
	return buf
}

// Fill overwrites buf with noise of the given color. Filter state starts
// from zero for every call.
func (s *Synthesizer) Fill(color signal.NoiseColor, buf []float32) {
	switch color {
	case signal.Pink:
		s.pink(buf)
	case signal.Brown:
		s.brown(buf)
	case signal.Blue:
		s.blue(buf)
	case signal.Violet:
		s.violet(buf)
	case signal.Grey:
		s.grey(buf)
	default:
		s.white(buf)
	}
}

// uniform returns a sample in [-1, 1).
func (s *Synthesizer) uniform() float64 {
	return s.rng.Float64()*2 - 1
}

func (s *Synthesizer) white(buf []float32) {
	for i := range buf {
		buf[i] = float32(s.uniform())
	}
}

func (s *Synthesizer) pink(buf []float32) {
	var b [6]float64
	var carry float64

	for i := range buf {
		white := s.uniform()
		sum := carry + white*pinkDirectGain
		for k := range b {
			b[k] = pinkRetain[k]*b[k] + white*pinkGain[k]
			sum += b[k]
		}
		buf[i] = float32(sum * pinkScale)
		carry = white * pinkCarryGain
	}
}

func (s *Synthesizer) brown(buf []float32) {
	var last float64
	for i := range buf {
		white := s.uniform()
		// The integrator state is kept before the boost; feeding the
		// boosted value back would make the walk diverge.
		last = (last + brownStep*white) / brownLeak
		buf[i] = float32(last * brownBoost)
	}
}

func (s *Synthesizer) blue(buf []float32) {
	var last float64
	for i := range buf {
		white := s.uniform()
		buf[i] = float32(white - last)
		last = white
	}
}

func (s *Synthesizer) violet(buf []float32) {
	var prev1, prev2 float64
	for i := range buf {
		white := s.uniform()
		buf[i] = float32((white - 2*prev1 + prev2) / violetDivide)
		prev2 = prev1
		prev1 = white
	}
}

func (s *Synthesizer) grey(buf []float32) {
	white := make([]float32, len(buf))
	s.white(white)

	var b [4]float64
	for i, w := range white {
		var sum float64
		for k := range b {
			b[k] = greyRetain[k]*b[k] + float64(w)*greyGain[k]
			sum += b[k]
		}
		buf[i] = float32(sum * greyScale)
	}
}
