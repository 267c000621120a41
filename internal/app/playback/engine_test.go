package playback

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tonebox/internal/app/sweep"
	"github.com/osa030/tonebox/internal/domain/signal"
)

type fakeSource struct {
	tone      bool
	waveform  signal.Waveform
	frequency float64
	samples   int
	loop      bool
	connected bool
}

type fakeDevice struct {
	sampleRate   int
	sources      map[SourceID]*fakeSource
	ops          []string
	gain         float64
	closed       bool
	next         int
	maxConnected int
	connectErr   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{sampleRate: 8000, sources: make(map[SourceID]*fakeSource)}
}

func (d *fakeDevice) SampleRate() int { return d.sampleRate }

func (d *fakeDevice) NewToneSource(w signal.Waveform, hz float64) (SourceID, error) {
	d.next++
	id := SourceID(fmt.Sprintf("tone-%d", d.next))
	d.sources[id] = &fakeSource{tone: true, waveform: w, frequency: hz}
	d.ops = append(d.ops, "create "+string(id))
	return id, nil
}

func (d *fakeDevice) NewBufferSource(samples []float32, sampleRate int, loop bool) (SourceID, error) {
	d.next++
	id := SourceID(fmt.Sprintf("buffer-%d", d.next))
	d.sources[id] = &fakeSource{samples: len(samples), loop: loop}
	d.ops = append(d.ops, "create "+string(id))
	return id, nil
}

func (d *fakeDevice) Connect(id SourceID) error {
	if d.connectErr != nil {
		return d.connectErr
	}
	d.sources[id].connected = true
	d.ops = append(d.ops, "connect "+string(id))
	if n := len(d.connected()); n > d.maxConnected {
		d.maxConnected = n
	}
	return nil
}

func (d *fakeDevice) Disconnect(id SourceID) {
	if s, ok := d.sources[id]; ok {
		s.connected = false
	}
	d.ops = append(d.ops, "disconnect "+string(id))
}

func (d *fakeDevice) SetFrequency(id SourceID, hz float64) {
	d.sources[id].frequency = hz
}

func (d *fakeDevice) SetGain(level float64) { d.gain = level }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) connected() []*fakeSource {
	var out []*fakeSource
	for _, s := range d.sources {
		if s.connected {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDevice) only(t *testing.T) *fakeSource {
	t.Helper()
	c := d.connected()
	require.Len(t, c, 1)
	return c[0]
}

type fakeScheduler struct {
	pending func()
	armed   int
	cancels int
}

func (s *fakeScheduler) ScheduleTick(fn func()) func() {
	s.pending = fn
	s.armed++
	return func() {
		s.cancels++
		s.pending = nil
	}
}

// fire runs the pending tick, if any.
func (s *fakeScheduler) fire() bool {
	fn := s.pending
	if fn == nil {
		return false
	}
	s.pending = nil
	fn()
	return true
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(seconds float64) {
	c.now = c.now.Add(time.Duration(seconds * float64(time.Second)))
}

type harness struct {
	engine *Engine
	device *fakeDevice
	sched  *fakeScheduler
	clock  *fakeClock
}

func newHarness(cfg Config) *harness {
	h := &harness{
		device: newFakeDevice(),
		sched:  &fakeScheduler{},
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.engine = New(cfg, h.device, h.sched, h.clock)
	return h
}

func drain(ch <-chan Event) []EventType {
	var types []EventType
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return types
			}
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func linearSweep(loop bool) sweep.Config {
	return sweep.Config{Enabled: true, StartFrequency: 200, EndFrequency: 800, Duration: 5, Transition: signal.Linear, Loop: loop}
}

func TestEngine_ToneScenario(t *testing.T) {
	h := newHarness(Config{Frequency: 440, Waveform: signal.Sine, Mode: signal.ModeTone, Volume: 0.3})
	assert.Equal(t, 0.3, h.device.gain)

	require.NoError(t, h.engine.Play())
	src := h.device.only(t)
	assert.True(t, src.tone)
	assert.Equal(t, signal.Sine, src.waveform)
	assert.Equal(t, 440.0, src.frequency)
	assert.Equal(t, StateTone, h.engine.State())

	require.NoError(t, h.engine.SetFrequency(880))
	assert.Equal(t, 880.0, src.frequency)
	assert.Equal(t, 880.0, h.engine.Frequency())
	assert.Len(t, h.device.sources, 1, "frequency change must not recreate the source")

	require.NoError(t, h.engine.Stop())
	assert.Empty(t, h.device.connected())
	assert.False(t, h.engine.IsSounding())
	assert.Equal(t, StateIdle, h.engine.State())

	assert.Equal(t, []EventType{EventStarted, EventStopped}, drain(h.engine.Events()))
}

func TestEngine_PlayIsIdempotent(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.engine.Play())
	require.NoError(t, h.engine.Play())

	assert.Len(t, h.device.sources, 1)
	assert.Len(t, h.device.connected(), 1)
}

func TestEngine_StopWhenIdle(t *testing.T) {
	h := newHarness(DefaultConfig())

	assert.NoError(t, h.engine.Stop())
	assert.NoError(t, h.engine.Stop())
	assert.Empty(t, h.device.ops)
	assert.Empty(t, drain(h.engine.Events()))
}

func TestEngine_SetVolume(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{name: "above range", input: 1.5, want: 1.0},
		{name: "below range", input: -1, want: 0.0},
		{name: "in range", input: 0.25, want: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig())
			require.NoError(t, h.engine.SetVolume(tt.input))
			assert.Equal(t, tt.want, h.engine.Volume())
			assert.Equal(t, tt.want, h.device.gain)
		})
	}

	h := newHarness(DefaultConfig())
	err := h.engine.SetVolume(math.NaN())
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	assert.Equal(t, 0.3, h.engine.Volume())
}

func TestEngine_SetFrequencyRejectsOutOfRange(t *testing.T) {
	h := newHarness(DefaultConfig())

	for _, hz := range []float64{0, 19.9, 20000.1, math.NaN(), math.Inf(1)} {
		err := h.engine.SetFrequency(hz)
		assert.True(t, errors.Is(err, ErrInvalidParameter), "hz=%v", hz)
	}
	assert.Equal(t, 440.0, h.engine.Frequency())

	assert.NoError(t, h.engine.SetFrequency(20))
	assert.NoError(t, h.engine.SetFrequency(20000))
}

func TestEngine_SwitchToneToNoise(t *testing.T) {
	h := newHarness(Config{Mode: signal.ModeTone, NoiseColor: signal.Pink})

	require.NoError(t, h.engine.Play())
	require.NoError(t, h.engine.SetMode(signal.ModeNoise))

	assert.Equal(t, []string{
		"create tone-1", "connect tone-1",
		"disconnect tone-1",
		"create buffer-2", "connect buffer-2",
	}, h.device.ops)
	assert.Equal(t, 1, h.device.maxConnected)

	src := h.device.only(t)
	assert.False(t, src.tone)
	assert.True(t, src.loop)
	assert.Equal(t, 2*h.device.sampleRate, src.samples)
	assert.Equal(t, StateNoise, h.engine.State())
	assert.Equal(t, signal.Pink, h.engine.NoiseColor())
}

func TestEngine_SetModeWhileIdle(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.engine.SetMode(signal.ModeNoise))
	assert.Empty(t, h.device.ops)
	assert.Equal(t, signal.ModeNoise, h.engine.Mode())

	require.NoError(t, h.engine.Play())
	assert.False(t, h.device.only(t).tone)
}

func TestEngine_SetModeUnknown(t *testing.T) {
	h := newHarness(DefaultConfig())
	err := h.engine.SetMode("chord")
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	assert.Equal(t, signal.ModeTone, h.engine.Mode())
}

func TestEngine_SetNoiseColor(t *testing.T) {
	h := newHarness(Config{Mode: signal.ModeNoise})

	require.NoError(t, h.engine.Play())
	first := h.device.only(t)

	require.NoError(t, h.engine.SetNoiseColor(signal.Brown))
	second := h.device.only(t)
	assert.NotSame(t, first, second)
	assert.False(t, first.connected)
	assert.Equal(t, signal.Brown, h.engine.NoiseColor())
	assert.Equal(t, 1, h.device.maxConnected)

	assert.Equal(t, []EventType{EventStarted, EventSignalChanged}, drain(h.engine.Events()))
}

func TestEngine_SetNoiseColorInToneModeDoesNotRestart(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.engine.Play())
	require.NoError(t, h.engine.SetNoiseColor(signal.Violet))

	assert.Len(t, h.device.sources, 1)
	assert.Equal(t, signal.Violet, h.engine.NoiseColor())
}

func TestEngine_SetWaveformRestartsTone(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.engine.Play())
	require.NoError(t, h.engine.SetFrequency(523.25))
	require.NoError(t, h.engine.SetWaveform(signal.Square))

	src := h.device.only(t)
	assert.Equal(t, signal.Square, src.waveform)
	assert.Equal(t, 523.25, src.frequency)
	assert.Len(t, h.device.sources, 2)
	assert.Equal(t, 1, h.device.maxConnected)
}

func TestEngine_SetWaveformWhileIdle(t *testing.T) {
	h := newHarness(DefaultConfig())

	require.NoError(t, h.engine.SetWaveform(signal.Triangle))
	assert.Empty(t, h.device.ops)

	require.NoError(t, h.engine.Play())
	assert.Equal(t, signal.Triangle, h.device.only(t).waveform)
}

func TestEngine_NonLoopingSweep(t *testing.T) {
	cfg := linearSweep(false)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})

	require.NoError(t, h.engine.Play())
	src := h.device.only(t)
	assert.Equal(t, 200.0, src.frequency)
	assert.True(t, h.engine.IsSweepRunning())
	require.NotNil(t, h.sched.pending)

	h.clock.advance(2.5)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 500, src.frequency, 1e-9)
	assert.InDelta(t, 500, h.engine.Frequency(), 1e-9)

	snap := h.engine.Snapshot()
	assert.Equal(t, StateRhythm, snap.State)
	assert.True(t, snap.SweepRunning)
	assert.InDelta(t, 0.5, snap.SweepProgress, 1e-9)

	h.clock.advance(2.5)
	require.True(t, h.sched.fire())
	assert.Equal(t, 800.0, src.frequency)
	assert.False(t, h.engine.IsSweepRunning())
	assert.Nil(t, h.sched.pending, "finished sweep must not schedule another tick")
	assert.True(t, h.engine.IsSounding())

	assert.Equal(t, []EventType{EventStarted, EventSweepStarted, EventSweepFinished}, drain(h.engine.Events()))
}

func TestEngine_LoopingSweepWraps(t *testing.T) {
	cfg := linearSweep(true)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})

	require.NoError(t, h.engine.Play())
	src := h.device.only(t)

	h.clock.advance(4)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 680, src.frequency, 1e-9)

	h.clock.advance(1)
	require.True(t, h.sched.fire())
	assert.Equal(t, 200.0, src.frequency)
	assert.True(t, h.engine.IsSweepRunning())
	require.NotNil(t, h.sched.pending)

	// The clock restarted at the wrap.
	h.clock.advance(1.25)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 350, src.frequency, 1e-9)

	assert.Contains(t, drain(h.engine.Events()), EventSweepLooped)
}

func TestEngine_ExponentialSweepMidpoint(t *testing.T) {
	cfg := sweep.Config{Enabled: true, StartFrequency: 100, EndFrequency: 400, Duration: 2, Transition: signal.Exponential}
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})

	require.NoError(t, h.engine.Play())
	h.clock.advance(1)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 200, h.engine.Frequency(), 1e-9)
}

func TestEngine_StopCancelsPendingTick(t *testing.T) {
	cfg := linearSweep(true)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})

	require.NoError(t, h.engine.Play())
	stale := h.sched.pending
	require.NotNil(t, stale)

	require.NoError(t, h.engine.Stop())
	assert.Equal(t, 1, h.sched.cancels)
	assert.Nil(t, h.sched.pending)
	assert.False(t, h.engine.IsSweepRunning())

	// A tick that was already in flight must not resurrect the sweep.
	ops := len(h.device.ops)
	before := h.engine.Frequency()
	h.clock.advance(2)
	stale()
	assert.Equal(t, before, h.engine.Frequency())
	assert.Len(t, h.device.ops, ops)
	assert.Nil(t, h.sched.pending)
}

func TestEngine_RhythmWithoutSweepPlaysStoredFrequency(t *testing.T) {
	h := newHarness(Config{Mode: signal.ModeRhythm, Frequency: 330})

	require.NoError(t, h.engine.Play())
	assert.Equal(t, 330.0, h.device.only(t).frequency)
	assert.False(t, h.engine.IsSweepRunning())
	assert.Nil(t, h.sched.pending)
}

func TestEngine_ConfigureSweepWhileSounding(t *testing.T) {
	h := newHarness(Config{Mode: signal.ModeRhythm, Frequency: 330})
	require.NoError(t, h.engine.Play())
	src := h.device.only(t)

	require.NoError(t, h.engine.ConfigureSweep(linearSweep(false)))
	assert.True(t, h.engine.IsSweepRunning())
	assert.Equal(t, 200.0, src.frequency)

	h.clock.advance(1)
	stale := h.sched.pending
	require.NoError(t, h.engine.ConfigureSweep(linearSweep(true)))
	assert.Equal(t, 200.0, src.frequency, "reconfiguring resets the sweep clock")

	stale()
	assert.Equal(t, 200.0, src.frequency)

	h.clock.advance(2.5)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 500, src.frequency, 1e-9)
}

func TestEngine_ConfigureSweepDisabledHaltsLoop(t *testing.T) {
	cfg := linearSweep(false)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})

	require.NoError(t, h.engine.Play())
	h.clock.advance(2.5)
	require.True(t, h.sched.fire())

	disabled := cfg
	disabled.Enabled = false
	require.NoError(t, h.engine.ConfigureSweep(disabled))

	assert.False(t, h.engine.IsSweepRunning())
	assert.Nil(t, h.sched.pending)
	assert.True(t, h.engine.IsSounding())
	assert.InDelta(t, 500, h.device.only(t).frequency, 1e-9)
}

func TestEngine_ConfigureSweepInToneModeDoesNotModulate(t *testing.T) {
	h := newHarness(DefaultConfig())
	require.NoError(t, h.engine.Play())

	require.NoError(t, h.engine.ConfigureSweep(linearSweep(true)))
	assert.False(t, h.engine.IsSweepRunning())
	assert.Equal(t, 440.0, h.device.only(t).frequency)

	got, ok := h.engine.Sweep()
	require.True(t, ok)
	assert.Equal(t, linearSweep(true), got)
}

func TestEngine_ConfigureSweepInvalid(t *testing.T) {
	h := newHarness(DefaultConfig())

	bad := sweep.Config{Enabled: true, StartFrequency: 0, EndFrequency: 400, Duration: 2, Transition: signal.Exponential}
	err := h.engine.ConfigureSweep(bad)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	_, ok := h.engine.Sweep()
	assert.False(t, ok, "rejected sweep must not be stored")
}

func TestEngine_LeavingRhythmHaltsSweep(t *testing.T) {
	cfg := linearSweep(true)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})
	require.NoError(t, h.engine.Play())

	require.NoError(t, h.engine.SetMode(signal.ModeTone))
	assert.False(t, h.engine.IsSweepRunning())
	assert.Nil(t, h.sched.pending)
	assert.True(t, h.device.only(t).tone)
}

func TestEngine_EnteringRhythmDoesNotStartSweep(t *testing.T) {
	cfg := linearSweep(true)
	h := newHarness(Config{Mode: signal.ModeTone, Frequency: 300, Sweep: &cfg})
	require.NoError(t, h.engine.Play())

	require.NoError(t, h.engine.SetMode(signal.ModeRhythm))
	assert.False(t, h.engine.IsSweepRunning())
	assert.Equal(t, 300.0, h.device.only(t).frequency)

	require.NoError(t, h.engine.StartSweep())
	assert.True(t, h.engine.IsSweepRunning())
	assert.Equal(t, 200.0, h.device.only(t).frequency)
}

func TestEngine_WaveformChangeRestartsSweep(t *testing.T) {
	cfg := linearSweep(false)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})
	require.NoError(t, h.engine.Play())

	h.clock.advance(2.5)
	require.True(t, h.sched.fire())
	require.NoError(t, h.engine.SetWaveform(signal.Sawtooth))

	src := h.device.only(t)
	assert.Equal(t, signal.Sawtooth, src.waveform)
	assert.Equal(t, 200.0, src.frequency)
	assert.True(t, h.engine.IsSweepRunning())

	assert.Equal(t, []EventType{EventStarted, EventSweepStarted, EventSignalChanged, EventSweepStarted}, drain(h.engine.Events()))
}

func TestEngine_NewDropsInvalidSweep(t *testing.T) {
	tests := []struct {
		name string
		cfg  sweep.Config
	}{
		{name: "exponential from zero", cfg: sweep.Config{Enabled: true, StartFrequency: 0, EndFrequency: 800, Duration: 5, Transition: signal.Exponential, Loop: true}},
		{name: "zero duration", cfg: sweep.Config{Enabled: true, StartFrequency: 200, EndFrequency: 800, Duration: 0, Transition: signal.Linear, Loop: true}},
		{name: "above audible range", cfg: sweep.Config{Enabled: true, StartFrequency: 200, EndFrequency: 50000, Duration: 5, Transition: signal.Linear}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			h := newHarness(Config{Mode: signal.ModeRhythm, Frequency: 330, Sweep: &cfg})

			_, ok := h.engine.Sweep()
			assert.False(t, ok)

			require.NoError(t, h.engine.Play())
			assert.False(t, h.engine.IsSweepRunning())
			h.clock.advance(1)
			h.sched.fire()

			hz := h.device.only(t).frequency
			assert.False(t, math.IsNaN(hz))
			assert.Equal(t, 330.0, hz)
			assert.Equal(t, []EventType{EventStarted}, drain(h.engine.Events()))
		})
	}
}

func TestEngine_SweepClampsWhenClockStepsBack(t *testing.T) {
	cfg := linearSweep(true)
	h := newHarness(Config{Mode: signal.ModeRhythm, Sweep: &cfg})
	require.NoError(t, h.engine.Play())
	src := h.device.only(t)

	h.clock.advance(-2)
	require.True(t, h.sched.fire())
	assert.Equal(t, 200.0, src.frequency)
	assert.Equal(t, 0.0, h.engine.Snapshot().SweepProgress)

	h.clock.advance(3)
	require.True(t, h.sched.fire())
	assert.InDelta(t, 320, src.frequency, 1e-9)
	assert.GreaterOrEqual(t, src.frequency, cfg.StartFrequency)
	assert.LessOrEqual(t, src.frequency, cfg.EndFrequency)
}

func TestEngine_StartSweepPreconditions(t *testing.T) {
	h := newHarness(Config{Mode: signal.ModeRhythm})

	err := h.engine.StartSweep()
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.True(t, errors.Is(err, ErrNoSweep))

	require.NoError(t, h.engine.ConfigureSweep(linearSweep(false)))
	err = h.engine.StartSweep()
	assert.True(t, errors.Is(err, ErrNotRhythm), "engine is silent")

	require.NoError(t, h.engine.Play())
	require.NoError(t, h.engine.StopSweep())
	assert.False(t, h.engine.IsSweepRunning())
	assert.True(t, h.engine.IsSounding())

	require.NoError(t, h.engine.StartSweep())
	assert.True(t, h.engine.IsSweepRunning())
}

func TestEngine_ShiftOctave(t *testing.T) {
	h := newHarness(DefaultConfig())
	require.NoError(t, h.engine.Play())

	f, err := h.engine.ShiftOctave(true)
	require.NoError(t, err)
	assert.Equal(t, 880.0, f)
	assert.Equal(t, 880.0, h.device.only(t).frequency)

	f, err = h.engine.ShiftOctave(false)
	require.NoError(t, err)
	assert.Equal(t, 440.0, f)
}

func TestEngine_Dispose(t *testing.T) {
	h := newHarness(DefaultConfig())
	require.NoError(t, h.engine.Play())

	require.NoError(t, h.engine.Dispose())
	assert.True(t, h.device.closed)
	assert.Empty(t, h.device.connected())

	_, open := <-h.engine.Events()
	for open {
		_, open = <-h.engine.Events()
	}

	assert.NoError(t, h.engine.Dispose())

	checks := map[string]error{
		"play":      h.engine.Play(),
		"stop":      h.engine.Stop(),
		"frequency": h.engine.SetFrequency(500),
		"waveform":  h.engine.SetWaveform(signal.Square),
		"noise":     h.engine.SetNoiseColor(signal.Grey),
		"mode":      h.engine.SetMode(signal.ModeNoise),
		"volume":    h.engine.SetVolume(0.5),
		"sweep":     h.engine.ConfigureSweep(linearSweep(false)),
	}
	for name, err := range checks {
		assert.True(t, errors.Is(err, ErrDisposed), name)
		assert.True(t, errors.Is(err, ErrInvalidState), name)
	}
	assert.Equal(t, signal.Sine, h.engine.Waveform())
}

func TestEngine_ConnectFailureLeavesEngineSilent(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.device.connectErr = errors.New("device unavailable")

	err := h.engine.Play()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unavailable")
	assert.False(t, h.engine.IsSounding())
}
