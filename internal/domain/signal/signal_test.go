package signal

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWaveform(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Waveform
		wantErr bool
	}{
		{name: "sine", input: "sine", want: Sine},
		{name: "upper case with spaces", input: "  SAWTOOTH ", want: Sawtooth},
		{name: "triangle", input: "triangle", want: Triangle},
		{name: "unknown", input: "pulse", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWaveform(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownWaveform))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNoiseColor(t *testing.T) {
	for _, c := range NoiseColors {
		got, err := ParseNoiseColor(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseNoiseColor("Gray")
	require.NoError(t, err)
	assert.Equal(t, Grey, got)

	_, err = ParseNoiseColor("red")
	assert.True(t, errors.Is(err, ErrUnknownNoiseColor))
}

func TestParseModeAndTransition(t *testing.T) {
	m, err := ParseMode("Rhythm")
	require.NoError(t, err)
	assert.Equal(t, ModeRhythm, m)

	_, err = ParseMode("chord")
	assert.True(t, errors.Is(err, ErrUnknownMode))

	tr, err := ParseTransition("exponential")
	require.NoError(t, err)
	assert.Equal(t, Exponential, tr)

	_, err = ParseTransition("cubic")
	assert.True(t, errors.Is(err, ErrUnknownTransition))
}

func TestClampFrequency(t *testing.T) {
	assert.Equal(t, MinFrequency, ClampFrequency(5))
	assert.Equal(t, MaxFrequency, ClampFrequency(25000))
	assert.Equal(t, 440.0, ClampFrequency(440))
	assert.Equal(t, MinFrequency, ClampFrequency(math.NaN()))
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 1.0, ClampVolume(1.5))
	assert.Equal(t, 0.0, ClampVolume(-1))
	assert.Equal(t, 0.3, ClampVolume(0.3))
	assert.Equal(t, 0.0, ClampVolume(math.NaN()))
}

func TestShiftOctave(t *testing.T) {
	assert.Equal(t, 880.0, ShiftOctave(440, true))
	assert.Equal(t, 220.0, ShiftOctave(440, false))
	assert.Equal(t, MaxFrequency, ShiftOctave(15000, true))
	assert.Equal(t, MinFrequency, ShiftOctave(30, false))
}

func TestFindFrequencyPreset(t *testing.T) {
	p, ok := FindFrequencyPreset("natural a")
	require.True(t, ok)
	assert.Equal(t, 432.0, p.Frequency)
	assert.True(t, p.MatchesPreset(432.05))
	assert.False(t, p.MatchesPreset(433))

	p, ok = FindFrequencyPreset("1kHz")
	require.True(t, ok)
	assert.Equal(t, CategoryScientific, p.Category)

	_, ok = FindFrequencyPreset("nope")
	assert.False(t, ok)
}
