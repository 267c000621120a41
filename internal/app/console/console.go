// Package console provides a line-command interpreter that drives the
// playback engine from a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonebox/internal/app/playback"
	"github.com/osa030/tonebox/internal/app/sweep"
	"github.com/osa030/tonebox/internal/domain/signal"
)

var (
	// ErrQuit is returned by Execute when the user asks to leave.
	ErrQuit = errors.New("quit")
	// ErrUnknownCommand is returned for input that names no command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command is given malformed arguments.
	ErrUsage = errors.New("usage")
)

// Controller is the part of the playback engine the console drives.
type Controller interface {
	Play() error
	Stop() error
	SetFrequency(hz float64) error
	ShiftOctave(up bool) (float64, error)
	SetWaveform(w signal.Waveform) error
	SetNoiseColor(c signal.NoiseColor) error
	SetMode(m signal.Mode) error
	SetVolume(v float64) error
	ConfigureSweep(cfg sweep.Config) error
	StartSweep() error
	StopSweep() error
	Snapshot() playback.Snapshot
}

// LineReader yields one line of user input per call.
type LineReader interface {
	ReadLine() (string, error)
}

// Console interprets commands against a Controller.
type Console struct {
	ctl     Controller
	presets *sweep.Presets
	out     io.Writer
}

// New creates a console writing its replies to out.
func New(ctl Controller, presets *sweep.Presets, out io.Writer) *Console {
	if presets == nil {
		presets = sweep.BuiltinPresets()
	}
	return &Console{ctl: ctl, presets: presets, out: out}
}

// Run reads commands until input ends, the user quits or ctx is done.
// Command errors are reported and do not end the loop.
func (c *Console) Run(ctx context.Context, in LineReader) error {
	type result struct {
		line string
		err  error
	}
	lines := make(chan result)
	next := make(chan struct{}, 1)

	go func() {
		defer close(lines)
		for range next {
			line, err := in.ReadLine()
			select {
			case lines <- result{line, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	for {
		next <- struct{}{}
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-lines:
			if !ok {
				return nil
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return errors.Wrap(r.err, "failed to read command")
			}
			if err := c.Execute(r.line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				zlog.Debug().Msgf("console: %q: %v", r.line, err)
				c.printf("error: %v\n", err)
			}
		}
	}
}

// Execute runs one command line.
func (c *Console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "play":
		return c.play()
	case "stop":
		return c.stop()
	case "freq", "f":
		return c.freq(args)
	case "up":
		return c.octave(true)
	case "down":
		return c.octave(false)
	case "nudge":
		return c.nudge(args)
	case "wave", "w":
		return c.wave(args)
	case "noise", "n":
		return c.noise(args)
	case "mode", "m":
		return c.mode(args)
	case "vol", "volume":
		return c.volume(args)
	case "preset", "p":
		return c.preset(args)
	case "sweep", "s":
		return c.sweep(args)
	case "status":
		c.status()
		return nil
	case "help", "?":
		c.help()
		return nil
	case "quit", "exit", "q":
		return ErrQuit
	default:
		return errors.Wrapf(ErrUnknownCommand, "%q (try help)", fields[0])
	}
}

func (c *Console) play() error {
	if err := c.ctl.Play(); err != nil {
		return err
	}
	c.printf("playing %s\n", describe(c.ctl.Snapshot()))
	return nil
}

func (c *Console) stop() error {
	if err := c.ctl.Stop(); err != nil {
		return err
	}
	c.printf("stopped\n")
	return nil
}

func (c *Console) freq(args []string) error {
	if len(args) != 1 {
		return errors.Wrap(ErrUsage, "freq <hz>")
	}
	hz, err := parseFrequency(args[0])
	if err != nil {
		return err
	}
	return c.setFrequency(hz)
}

func (c *Console) nudge(args []string) error {
	if len(args) != 1 {
		return errors.Wrap(ErrUsage, "nudge <delta hz>")
	}
	delta, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return errors.Wrapf(ErrUsage, "nudge: %q is not a number", args[0])
	}
	return c.setFrequency(c.ctl.Snapshot().Frequency + delta)
}

// setFrequency clamps user input into the audible range before handing it on.
func (c *Console) setFrequency(hz float64) error {
	hz = signal.ClampFrequency(hz)
	if err := c.ctl.SetFrequency(hz); err != nil {
		return err
	}
	c.printf("frequency %s\n", formatFrequency(hz))
	return nil
}

func (c *Console) octave(up bool) error {
	hz, err := c.ctl.ShiftOctave(up)
	if err != nil {
		return err
	}
	c.printf("frequency %s\n", formatFrequency(hz))
	return nil
}

func (c *Console) wave(args []string) error {
	if len(args) != 1 {
		return errors.Wrapf(ErrUsage, "wave <%s>", joinNames(signal.Waveforms))
	}
	w, err := signal.ParseWaveform(args[0])
	if err != nil {
		return err
	}
	if err := c.ctl.SetWaveform(w); err != nil {
		return err
	}
	c.printf("waveform %s\n", w)
	return nil
}

func (c *Console) noise(args []string) error {
	if len(args) != 1 {
		return errors.Wrapf(ErrUsage, "noise <%s>", joinNames(signal.NoiseColors))
	}
	color, err := signal.ParseNoiseColor(args[0])
	if err != nil {
		return err
	}
	if err := c.ctl.SetNoiseColor(color); err != nil {
		return err
	}
	c.printf("noise %s\n", color)
	return nil
}

func (c *Console) mode(args []string) error {
	if len(args) != 1 {
		return errors.Wrapf(ErrUsage, "mode <%s>", joinNames(signal.Modes))
	}
	m, err := signal.ParseMode(args[0])
	if err != nil {
		return err
	}
	if err := c.ctl.SetMode(m); err != nil {
		return err
	}
	c.printf("mode %s\n", m)
	return nil
}

func (c *Console) volume(args []string) error {
	if len(args) != 1 {
		return errors.Wrap(ErrUsage, "vol <0..1 | percent%>")
	}
	arg := args[0]
	scale := 1.0
	if strings.HasSuffix(arg, "%") {
		arg, scale = strings.TrimSuffix(arg, "%"), 0.01
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return errors.Wrapf(ErrUsage, "vol: %q is not a number", args[0])
	}
	if err := c.ctl.SetVolume(v * scale); err != nil {
		return err
	}
	c.printf("volume %.0f%%\n", c.ctl.Snapshot().Volume*100)
	return nil
}

func (c *Console) preset(args []string) error {
	if len(args) == 0 {
		for _, p := range signal.FrequencyPresets {
			c.printf("  %-12s %9s  %s\n", p.Name, formatFrequency(p.Frequency), p.Description)
		}
		return nil
	}
	name := strings.Join(args, " ")
	p, ok := signal.FindFrequencyPreset(name)
	if !ok {
		return errors.Wrapf(ErrUsage, "preset: unknown preset %q", name)
	}
	return c.setFrequency(p.Frequency)
}

func (c *Console) sweep(args []string) error {
	snap := c.ctl.Snapshot()
	current := sweep.Default()
	if snap.Sweep != nil {
		current = *snap.Sweep
	}

	if len(args) == 0 {
		c.printf("sweep %s\n", describeSweep(snap))
		for _, p := range c.presets.List() {
			c.printf("  %-10s %s  %s\n", p.Name, describeConfig(p.Config), p.Description)
		}
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "off":
		current.Enabled = false
		return c.configureSweep(current)
	case "on":
		current.Enabled = true
		return c.configureSweep(current)
	case "start":
		return c.ctl.StartSweep()
	case "halt":
		return c.ctl.StopSweep()
	}

	if !strings.Contains(args[0], "=") {
		p, err := c.presets.Get(args[0])
		if err != nil {
			return err
		}
		return c.configureSweep(p.Config)
	}

	settings, err := parseSettings(args)
	if err != nil {
		return err
	}
	if _, ok := settings["enabled"]; !ok {
		settings["enabled"] = true
	}
	cfg, err := sweep.Merge(current, settings)
	if err != nil {
		return err
	}
	return c.configureSweep(cfg)
}

func (c *Console) configureSweep(cfg sweep.Config) error {
	if err := c.ctl.ConfigureSweep(cfg); err != nil {
		return err
	}
	c.printf("sweep %s\n", describeSweep(c.ctl.Snapshot()))
	return nil
}

func (c *Console) status() {
	snap := c.ctl.Snapshot()
	c.printf("state     %s\n", snap.State)
	c.printf("mode      %s\n", snap.Mode)
	c.printf("frequency %s\n", formatFrequency(snap.Frequency))
	c.printf("waveform  %s\n", snap.Waveform)
	c.printf("noise     %s\n", snap.NoiseColor)
	c.printf("volume    %.0f%%\n", snap.Volume*100)
	c.printf("sweep     %s\n", describeSweep(snap))
}

func (c *Console) help() {
	c.printf(`commands:
  play | stop                start or silence output
  freq <hz>                  set tone frequency (20..20000)
  up | down                  shift one octave
  nudge <delta>              add delta hz to the frequency
  wave <name>                %s
  noise <name>               %s
  mode <name>                %s
  vol <0..1 | n%%>            master volume
  preset [name]              list or apply a frequency preset
  sweep [preset|on|off]      show, select or toggle the sweep
  sweep key=value ...        start_frequency end_frequency duration transition loop
  sweep start | halt         restart or halt the running sweep
  status                     show playback state
  quit                       leave the console
`, joinNames(signal.Waveforms), joinNames(signal.NoiseColors), joinNames(signal.Modes))
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// parseFrequency accepts plain hertz or a "k" suffix for kilohertz.
func parseFrequency(s string) (float64, error) {
	lower := strings.TrimSuffix(strings.ToLower(s), "hz")
	scale := 1.0
	if strings.HasSuffix(lower, "k") {
		lower, scale = strings.TrimSuffix(lower, "k"), 1000
	}
	hz, err := strconv.ParseFloat(lower, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrUsage, "freq: %q is not a frequency", s)
	}
	return hz * scale, nil
}

func parseSettings(args []string) (map[string]any, error) {
	settings := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Wrapf(ErrUsage, "sweep: expected key=value, got %q", arg)
		}
		settings[strings.ToLower(key)] = value
	}
	return settings, nil
}

func formatFrequency(hz float64) string {
	if hz >= 1000 {
		return strconv.FormatFloat(hz/1000, 'f', -1, 64) + " kHz"
	}
	return strconv.FormatFloat(hz, 'f', 1, 64) + " Hz"
}

func describe(s playback.Snapshot) string {
	switch s.Mode {
	case signal.ModeNoise:
		return fmt.Sprintf("%s noise", s.NoiseColor)
	case signal.ModeRhythm:
		return fmt.Sprintf("%s %s (rhythm)", s.Waveform, formatFrequency(s.Frequency))
	default:
		return fmt.Sprintf("%s %s", s.Waveform, formatFrequency(s.Frequency))
	}
}

func describeSweep(s playback.Snapshot) string {
	if s.Sweep == nil || !s.Sweep.Enabled {
		return "off"
	}
	desc := describeConfig(*s.Sweep)
	if s.SweepRunning {
		desc += fmt.Sprintf(", running %.0f%%", s.SweepProgress*100)
	}
	return desc
}

func describeConfig(cfg sweep.Config) string {
	desc := fmt.Sprintf("%s -> %s over %gs, %s",
		formatFrequency(cfg.StartFrequency), formatFrequency(cfg.EndFrequency), cfg.Duration, cfg.Transition)
	if cfg.Loop {
		desc += ", loop"
	}
	return desc
}

func joinNames[T ~string](values []T) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, "|")
}
