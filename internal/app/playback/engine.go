package playback

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonebox/internal/app/noise"
	"github.com/osa030/tonebox/internal/app/sweep"
	"github.com/osa030/tonebox/internal/domain/signal"
)

// Errors
var (
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidParameter = sweep.ErrInvalidParameter

	ErrDisposed  = errors.Mark(errors.New("engine disposed"), ErrInvalidState)
	ErrNoSweep   = errors.Mark(errors.New("no sweep enabled"), ErrInvalidState)
	ErrNotRhythm = errors.Mark(errors.New("not sounding in rhythm mode"), ErrInvalidState)
)

// Config holds the initial engine state.
type Config struct {
	Frequency          float64
	Waveform           signal.Waveform
	NoiseColor         signal.NoiseColor
	Mode               signal.Mode
	Volume             float64
	NoiseBufferSeconds float64       // Length of the looped noise buffer
	Sweep              *sweep.Config // Optional initial sweep
}

// DefaultConfig returns the engine defaults: 440 Hz sine tone at 0.3 volume.
func DefaultConfig() Config {
	return Config{
		Frequency:          440,
		Waveform:           signal.Sine,
		NoiseColor:         signal.White,
		Mode:               signal.ModeTone,
		Volume:             0.3,
		NoiseBufferSeconds: 2,
	}
}

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceTone
	sourceNoise
)

// Engine owns the playback state. All methods are safe for concurrent use;
// they are serialized with the modulation loop by a single mutex.
type Engine struct {
	mu sync.Mutex

	// Collaborators
	device    Device
	scheduler Scheduler
	clock     Clock

	// Playback state
	mode       signal.Mode
	frequency  float64
	waveform   signal.Waveform
	noiseColor signal.NoiseColor
	volume     float64
	sweep      *sweep.Config
	sounding   bool

	// Connected output
	source     SourceID
	sourceKind sourceKind

	// Modulation loop
	sweepRunning bool
	sweepGen     uint64    // Bumped on every halt; ticks of older generations are dropped
	sweepStart   time.Time // Start of the current traversal
	sweepCancel  func()

	noiseSeconds float64
	disposed     bool

	// Events
	eventCh chan Event
}

// New creates an engine and applies the initial volume to the device.
func New(cfg Config, device Device, scheduler Scheduler, clock Clock) *Engine {
	def := DefaultConfig()
	if cfg.Frequency <= 0 || math.IsNaN(cfg.Frequency) {
		cfg.Frequency = def.Frequency
	}
	if cfg.Waveform == "" {
		cfg.Waveform = def.Waveform
	}
	if cfg.NoiseColor == "" {
		cfg.NoiseColor = def.NoiseColor
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.NoiseBufferSeconds <= 0 {
		cfg.NoiseBufferSeconds = def.NoiseBufferSeconds
	}

	e := &Engine{
		device:       device,
		scheduler:    scheduler,
		clock:        clock,
		mode:         cfg.Mode,
		frequency:    cfg.Frequency,
		waveform:     cfg.Waveform,
		noiseColor:   cfg.NoiseColor,
		volume:       signal.ClampVolume(cfg.Volume),
		noiseSeconds: cfg.NoiseBufferSeconds,
		eventCh:      make(chan Event, 32),
	}
	if cfg.Sweep != nil {
		if err := cfg.Sweep.Validate(); err != nil {
			zlog.Warn().Msgf("playback: initial sweep ignored: %v", err)
		} else {
			s := *cfg.Sweep
			e.sweep = &s
		}
	}
	device.SetGain(e.volume)
	return e
}

// Events returns the event channel. It is closed by Dispose.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Play connects the signal for the current mode. It is a no-op while sounding.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("play", ErrDisposed)
	}
	if e.sounding {
		return nil
	}

	e.sounding = true
	if err := e.startLocked(); err != nil {
		e.sounding = false
		return err
	}

	zlog.Debug().Msgf("playback: started: mode=%s frequency=%.2f waveform=%s noise=%s",
		e.mode, e.frequency, e.waveform, e.noiseColor)
	e.sendEventLocked(EventStarted)
	e.resumeSweepLocked()
	return nil
}

// Stop disconnects the output and halts the modulation loop. Stopping an
// idle engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("stop", ErrDisposed)
	}
	if !e.sounding {
		return nil
	}

	e.silenceLocked()
	zlog.Debug().Msg("playback: stopped")
	e.sendEventLocked(EventStopped)
	return nil
}

// SetFrequency updates the stored frequency and retunes a connected tone
// without reconnecting it. Hosts clamp user input to [20, 20000] Hz; values
// outside that range are rejected.
func (e *Engine) SetFrequency(hz float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("set frequency", ErrDisposed)
	}
	if !signal.InAudibleRange(hz) {
		return errors.Mark(errors.Newf("frequency %v Hz outside [%v, %v]", hz, signal.MinFrequency, signal.MaxFrequency), ErrInvalidParameter)
	}

	e.applyFrequencyLocked(hz)
	return nil
}

// ShiftOctave doubles or halves the frequency, clamped to the audible range,
// and returns the new value.
func (e *Engine) ShiftOctave(up bool) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.frequency, e.invalidStateLocked("shift octave", ErrDisposed)
	}

	e.applyFrequencyLocked(signal.ShiftOctave(e.frequency, up))
	return e.frequency, nil
}

// SetWaveform changes the tone waveform. A sounding tone is restarted with
// the new waveform; in rhythm mode this also restarts the sweep.
func (e *Engine) SetWaveform(w signal.Waveform) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("set waveform", ErrDisposed)
	}
	w, err := signal.ParseWaveform(string(w))
	if err != nil {
		return errors.Mark(err, ErrInvalidParameter)
	}

	e.waveform = w
	if e.sounding && (e.mode == signal.ModeTone || e.mode == signal.ModeRhythm) {
		return e.restartLocked()
	}
	return nil
}

// SetNoiseColor changes the noise color. Sounding noise is replaced with a
// freshly synthesized buffer.
func (e *Engine) SetNoiseColor(c signal.NoiseColor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("set noise color", ErrDisposed)
	}
	c, err := signal.ParseNoiseColor(string(c))
	if err != nil {
		return errors.Mark(err, ErrInvalidParameter)
	}

	e.noiseColor = c
	if e.sounding && e.mode == signal.ModeNoise {
		return e.restartLocked()
	}
	return nil
}

// SetMode switches between tone, noise and rhythm. While sounding, the old
// signal is disconnected before the new one is connected. Entering rhythm
// mode this way plays a plain tone; the sweep is started by ConfigureSweep
// or StartSweep.
func (e *Engine) SetMode(m signal.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("set mode", ErrDisposed)
	}
	m, err := signal.ParseMode(string(m))
	if err != nil {
		return errors.Mark(err, ErrInvalidParameter)
	}
	if m == e.mode {
		return nil
	}

	e.haltSweepLocked()
	e.mode = m
	if !e.sounding {
		return nil
	}

	e.disconnectLocked()
	if m == signal.ModeNoise {
		err = e.startNoiseLocked()
	} else {
		err = e.startToneLocked(e.frequency)
	}
	if err != nil {
		e.sounding = false
		return err
	}

	zlog.Debug().Msgf("playback: mode changed: mode=%s", m)
	e.sendEventLocked(EventSignalChanged)
	return nil
}

// SetVolume clamps v to [0, 1] and applies it to the master gain.
func (e *Engine) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("set volume", ErrDisposed)
	}
	if math.IsNaN(v) {
		return errors.Mark(errors.New("volume is NaN"), ErrInvalidParameter)
	}

	e.volume = signal.ClampVolume(v)
	e.device.SetGain(e.volume)
	return nil
}

// ConfigureSweep replaces the sweep. An enabled sweep restarts the
// modulation loop from zero when sounding in rhythm mode; a disabled one
// halts it and leaves the tone at its last frequency.
func (e *Engine) ConfigureSweep(cfg sweep.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("configure sweep", ErrDisposed)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.sweep = &cfg
	if !cfg.Enabled {
		if e.haltSweepLocked() {
			e.sendEventLocked(EventSweepStopped)
		}
		return nil
	}

	if e.sounding && e.mode == signal.ModeRhythm {
		e.haltSweepLocked()
		e.startSweepLocked()
	}
	return nil
}

// StartSweep restarts the configured sweep from its start frequency.
func (e *Engine) StartSweep() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("start sweep", ErrDisposed)
	}
	if e.sweep == nil || !e.sweep.Enabled {
		return e.invalidStateLocked("start sweep", ErrNoSweep)
	}
	if !e.sounding || e.mode != signal.ModeRhythm {
		return e.invalidStateLocked("start sweep", ErrNotRhythm)
	}

	e.haltSweepLocked()
	e.startSweepLocked()
	return nil
}

// StopSweep halts the modulation loop. The tone keeps sounding.
func (e *Engine) StopSweep() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return e.invalidStateLocked("stop sweep", ErrDisposed)
	}
	if e.haltSweepLocked() {
		e.sendEventLocked(EventSweepStopped)
	}
	return nil
}

// Dispose stops playback and releases the device. The engine is unusable
// afterwards; further calls return ErrDisposed. Dispose is idempotent.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return nil
	}

	e.silenceLocked()
	e.disposed = true
	close(e.eventCh)

	if err := e.device.Close(); err != nil {
		return errors.Wrap(err, "failed to close audio device")
	}
	zlog.Debug().Msg("playback: disposed")
	return nil
}

// startLocked connects the signal for the current mode. In rhythm mode with
// an enabled sweep the tone starts at the sweep's start frequency; the sweep
// itself is started by resumeSweepLocked.
// Must be called with lock held.
func (e *Engine) startLocked() error {
	switch e.mode {
	case signal.ModeNoise:
		return e.startNoiseLocked()
	case signal.ModeRhythm:
		if e.sweepEnabledLocked() {
			return e.startToneLocked(e.sweep.StartFrequency)
		}
		return e.startToneLocked(e.frequency)
	default:
		return e.startToneLocked(e.frequency)
	}
}

func (e *Engine) sweepEnabledLocked() bool {
	return e.sweep != nil && e.sweep.Enabled
}

// resumeSweepLocked starts the sweep after the signal has been announced.
// Must be called with lock held.
func (e *Engine) resumeSweepLocked() {
	if e.sounding && e.mode == signal.ModeRhythm && e.sweepEnabledLocked() && !e.sweepRunning {
		e.startSweepLocked()
	}
}

// restartLocked replaces the connected signal after a parameter change.
// Must be called with lock held.
func (e *Engine) restartLocked() error {
	e.haltSweepLocked()
	e.disconnectLocked()
	if err := e.startLocked(); err != nil {
		e.sounding = false
		return err
	}
	e.sendEventLocked(EventSignalChanged)
	e.resumeSweepLocked()
	return nil
}

// silenceLocked halts modulation and disconnects the output.
// Must be called with lock held.
func (e *Engine) silenceLocked() {
	e.haltSweepLocked()
	e.disconnectLocked()
	e.sounding = false
}

func (e *Engine) startToneLocked(hz float64) error {
	id, err := e.device.NewToneSource(e.waveform, hz)
	if err != nil {
		return errors.Wrap(err, "failed to create tone source")
	}
	if err := e.device.Connect(id); err != nil {
		e.device.Disconnect(id)
		return errors.Wrap(err, "failed to connect tone source")
	}
	e.source = id
	e.sourceKind = sourceTone
	e.frequency = hz
	return nil
}

func (e *Engine) startNoiseLocked() error {
	rate := e.device.SampleRate()
	samples := noise.Generate(e.noiseColor, noise.SampleCount(rate, e.noiseSeconds))

	id, err := e.device.NewBufferSource(samples, rate, true)
	if err != nil {
		return errors.Wrap(err, "failed to create noise source")
	}
	if err := e.device.Connect(id); err != nil {
		e.device.Disconnect(id)
		return errors.Wrap(err, "failed to connect noise source")
	}
	e.source = id
	e.sourceKind = sourceNoise
	return nil
}

func (e *Engine) disconnectLocked() {
	if e.sourceKind == sourceNone {
		return
	}
	e.device.Disconnect(e.source)
	e.source = ""
	e.sourceKind = sourceNone
}

// applyFrequencyLocked stores hz and retunes a connected tone.
func (e *Engine) applyFrequencyLocked(hz float64) {
	e.frequency = hz
	if e.sourceKind == sourceTone {
		e.device.SetFrequency(e.source, hz)
	}
}

// startSweepLocked resets the sweep clock and runs the first tick
// immediately. Must be called with lock held and no sweep running.
func (e *Engine) startSweepLocked() {
	e.sweepRunning = true
	e.sweepStart = e.clock.Now()
	gen := e.sweepGen

	zlog.Debug().Msgf("playback: sweep started: %.2f -> %.2f Hz over %.2fs transition=%s loop=%v",
		e.sweep.StartFrequency, e.sweep.EndFrequency, e.sweep.Duration, e.sweep.Transition, e.sweep.Loop)
	e.sendEventLocked(EventSweepStarted)
	e.tickLocked(gen)
}

// haltSweepLocked cancels the pending tick and invalidates any tick already
// in flight. Reports whether a sweep was running.
func (e *Engine) haltSweepLocked() bool {
	if !e.sweepRunning {
		return false
	}
	e.sweepGen++
	if e.sweepCancel != nil {
		e.sweepCancel()
		e.sweepCancel = nil
	}
	e.sweepRunning = false
	return true
}

// onTick is the scheduler callback of generation gen.
func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed || !e.sweepRunning || gen != e.sweepGen {
		return
	}
	e.sweepCancel = nil
	e.tickLocked(gen)
}

// tickLocked applies the frequency for the current progress and schedules
// the next tick unless the sweep has finished.
func (e *Engine) tickLocked(gen uint64) {
	cfg := *e.sweep
	now := e.clock.Now()

	progress := math.Min(math.Max(now.Sub(e.sweepStart).Seconds()/cfg.Duration, 0), 1)
	if progress >= 1 {
		if !cfg.Loop {
			e.applyFrequencyLocked(cfg.EndFrequency)
			e.haltSweepLocked()
			zlog.Debug().Msgf("playback: sweep finished at %.2f Hz", cfg.EndFrequency)
			e.sendEventLocked(EventSweepFinished)
			return
		}
		e.sweepStart = now
		progress = 0
		e.sendEventLocked(EventSweepLooped)
	}

	e.applyFrequencyLocked(cfg.FrequencyAt(progress))
	e.sweepCancel = e.scheduler.ScheduleTick(func() {
		e.onTick(gen)
	})
}

// invalidStateLocked reports an operation that cannot run in the current state.
func (e *Engine) invalidStateLocked(op string, err error) error {
	zlog.Warn().Msgf("playback: %s ignored: %v", op, err)
	return err
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (e *Engine) sendEventLocked(t EventType) {
	select {
	case e.eventCh <- Event{Type: t, State: e.stateLocked(), Frequency: e.frequency}:
	default:
		// Channel full, drop event
	}
}
