// Package main provides the tonebox entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/tonebox/internal/app/console"
	"github.com/osa030/tonebox/internal/app/notification"
	"github.com/osa030/tonebox/internal/app/playback"
	"github.com/osa030/tonebox/internal/app/sweep"
	tone "github.com/osa030/tonebox/internal/domain/signal"
	"github.com/osa030/tonebox/internal/infra/audio"
	"github.com/osa030/tonebox/internal/infra/clock"
	"github.com/osa030/tonebox/internal/infra/config"
	"github.com/osa030/tonebox/internal/infra/logger"
)

var (
	app        = kingpin.New("tonebox", "Tone, noise and frequency sweep generator")
	configPath = app.Flag("config", "Path to config file (default: built-in settings)").Short('c').String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	backend    = app.Flag("backend", "Audio backend").Enum(audio.BackendOto, audio.BackendNull)

	// play command (default)
	playCmd      = app.Command("play", "Play a tone or noise until interrupted (default)").Default()
	playFreq     = playCmd.Flag("freq", "Tone frequency in Hz").Short('f').String()
	playWave     = playCmd.Flag("wave", "Waveform (sine, square, sawtooth, triangle)").Short('w').String()
	playNoise    = playCmd.Flag("noise", "Play noise of this color instead of a tone").Short('n').String()
	playVolume   = playCmd.Flag("volume", "Volume between 0 and 1").String()
	playDuration = playCmd.Flag("duration", "Stop after this long (0: until interrupted)").Short('d').Duration()

	// sweep command
	sweepCmd        = app.Command("sweep", "Play a frequency sweep")
	sweepPreset     = sweepCmd.Arg("preset", "Sweep preset (see list-presets)").String()
	sweepFrom       = sweepCmd.Flag("from", "Start frequency in Hz").String()
	sweepTo         = sweepCmd.Flag("to", "End frequency in Hz").String()
	sweepOver       = sweepCmd.Flag("over", "Seconds per traversal").String()
	sweepTransition = sweepCmd.Flag("transition", "Transition curve (linear, exponential, sine)").String()
	sweepLoop       = sweepCmd.Flag("loop", "Repeat the sweep until interrupted").Bool()
	sweepWave       = sweepCmd.Flag("wave", "Waveform").Short('w').String()
	sweepDuration   = sweepCmd.Flag("duration", "Stop after this long (0: when the sweep ends)").Short('d').Duration()

	// console command
	consoleCmd = app.Command("console", "Interactive console")

	// list-presets command
	listPresetsCmd = app.Command("list-presets", "List frequency and sweep presets and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Handle list-presets command
	if command == listPresetsCmd.FullCommand() {
		if err := printPresets(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	// Initialize logger
	interactive := command == consoleCmd.FullCommand() && term.IsTerminal(int(os.Stdin.Fd()))
	loggerConfig := logger.Config{
		Output:      cfg.Log.Output,
		Level:       cfg.Log.Level,
		RawTerminal: interactive,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if err := run(cfg, command, interactive); err != nil {
		zlog.Error().Msgf("tonebox: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	return cfg, nil
}

// run executes the selected command. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, command string, interactive bool) error {
	presets, err := cfg.Presets()
	if err != nil {
		return err
	}

	dev, err := audio.Open(cfg.AudioOutput())
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("Audio output opened: backend=%s, rate=%d", cfg.Audio.Backend, cfg.Audio.SampleRate)

	engine := playback.New(cfg.PlaybackConfig(), dev, clock.NewTicker(cfg.TickInterval()), clock.System{})
	defer func() {
		if err := engine.Dispose(); err != nil {
			zlog.Error().Msgf("Failed to dispose engine: %v", err)
		}
	}()

	notifier := notification.NewManager()
	notifier.Subscribe(notification.StreamFunc(logEvent))
	go notifier.Pump(engine.Events())

	switch command {
	case sweepCmd.FullCommand():
		return runSweep(engine, cfg, presets, notifier)
	case consoleCmd.FullCommand():
		return runConsole(engine, presets, notifier, interactive)
	default:
		return runPlay(engine)
	}
}

func runPlay(engine *playback.Engine) error {
	if *playWave != "" {
		w, err := tone.ParseWaveform(*playWave)
		if err != nil {
			return err
		}
		if err := engine.SetWaveform(w); err != nil {
			return err
		}
	}
	if *playFreq != "" {
		hz, err := strconv.ParseFloat(*playFreq, 64)
		if err != nil {
			return fmt.Errorf("invalid frequency %q: %w", *playFreq, err)
		}
		if err := engine.SetFrequency(tone.ClampFrequency(hz)); err != nil {
			return err
		}
	}
	if *playNoise != "" {
		c, err := tone.ParseNoiseColor(*playNoise)
		if err != nil {
			return err
		}
		if err := engine.SetNoiseColor(c); err != nil {
			return err
		}
		if err := engine.SetMode(tone.ModeNoise); err != nil {
			return err
		}
	} else if engine.Mode() == tone.ModeNoise && (*playFreq != "" || *playWave != "") {
		if err := engine.SetMode(tone.ModeTone); err != nil {
			return err
		}
	}
	if err := applyVolume(engine, *playVolume); err != nil {
		return err
	}

	if err := engine.Play(); err != nil {
		return err
	}
	snap := engine.Snapshot()
	if snap.Mode == tone.ModeNoise {
		zlog.Info().Msgf("Playing %s noise (volume %.0f%%)", snap.NoiseColor, snap.Volume*100)
	} else {
		zlog.Info().Msgf("Playing %s tone at %.1f Hz (volume %.0f%%)", snap.Waveform, snap.Frequency, snap.Volume*100)
	}

	wait(*playDuration, nil)
	return engine.Stop()
}

func runSweep(engine *playback.Engine, cfg *config.Config, presets *sweep.Presets, notifier *notification.Manager) error {
	base := cfg.Sweep
	if *sweepPreset != "" {
		p, err := presets.Get(*sweepPreset)
		if err != nil {
			return err
		}
		base = p.Config
	}

	settings := map[string]any{"enabled": true}
	for key, value := range map[string]string{
		"start_frequency": *sweepFrom,
		"end_frequency":   *sweepTo,
		"duration":        *sweepOver,
		"transition":      *sweepTransition,
	} {
		if value != "" {
			settings[key] = value
		}
	}
	if *sweepLoop {
		settings["loop"] = true
	}
	sc, err := sweep.Merge(base, settings)
	if err != nil {
		return err
	}

	if *sweepWave != "" {
		w, err := tone.ParseWaveform(*sweepWave)
		if err != nil {
			return err
		}
		if err := engine.SetWaveform(w); err != nil {
			return err
		}
	}

	// A one-shot sweep ends the command when it reaches its end frequency.
	var done chan struct{}
	if !sc.Loop {
		done = make(chan struct{}, 1)
		id := notifier.Subscribe(notification.StreamFunc(func(n notification.Notification) error {
			if n.Event.Type == playback.EventSweepFinished {
				select {
				case done <- struct{}{}:
				default:
				}
			}
			return nil
		}))
		defer notifier.Unsubscribe(id)
	}

	if err := engine.SetMode(tone.ModeRhythm); err != nil {
		return err
	}
	if err := engine.ConfigureSweep(sc); err != nil {
		return err
	}
	if err := engine.Play(); err != nil {
		return err
	}
	zlog.Info().Msgf("Sweeping %.1f Hz -> %.1f Hz over %gs (%s, loop=%t)",
		sc.StartFrequency, sc.EndFrequency, sc.Duration, sc.Transition, sc.Loop)

	wait(*sweepDuration, done)
	return engine.Stop()
}

func runConsole(engine *playback.Engine, presets *sweep.Presets, notifier *notification.Manager, interactive bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !interactive {
		c := console.New(engine, presets, os.Stdout)
		return c.Run(ctx, scanLines{bufio.NewScanner(os.Stdin)})
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "tonebox> ")
	c := console.New(engine, presets, t)
	_, _ = fmt.Fprintln(t, "tonebox console; type help for commands, quit or Ctrl-D to leave")

	// Sweeps end while the prompt waits for input.
	id := notifier.Subscribe(notification.StreamFunc(func(n notification.Notification) error {
		if n.Event.Type == playback.EventSweepFinished {
			_, err := fmt.Fprintf(t, "sweep finished at %.1f Hz\n", n.Event.Frequency)
			return err
		}
		return nil
	}))
	defer notifier.Unsubscribe(id)

	return c.Run(ctx, t)
}

func applyVolume(engine *playback.Engine, value string) error {
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid volume %q: %w", value, err)
	}
	return engine.SetVolume(v)
}

// wait blocks until a shutdown signal, the optional duration elapses or done fires.
func wait(d time.Duration, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-timeout:
		zlog.Debug().Msg("Duration elapsed")
	case <-done:
		zlog.Debug().Msg("Sweep finished")
	}
}

// logEvent logs one engine event.
func logEvent(n notification.Notification) error {
	ev := n.Event
	switch ev.Type {
	case playback.EventSweepFinished:
		zlog.Info().Msgf("Sweep finished at %.1f Hz", ev.Frequency)
	case playback.EventSweepLooped:
		zlog.Debug().Msgf("Sweep looped: seq=%d, frequency=%.1f", n.SequenceNo, ev.Frequency)
	default:
		zlog.Debug().Msgf("Event: seq=%d, type=%s, state=%s, frequency=%.1f", n.SequenceNo, ev.Type, ev.State, ev.Frequency)
	}
	return nil
}

// printPresets prints frequency and sweep presets.
func printPresets(cfg *config.Config) error {
	presets, err := cfg.Presets()
	if err != nil {
		return err
	}

	fmt.Println("Frequency Presets:")
	for _, p := range tone.FrequencyPresets {
		fmt.Printf("  %-12s %8.1f Hz  %-10s - %s\n", p.Name, p.Frequency, p.Category, p.Description)
	}
	fmt.Println("Sweep Presets:")
	for _, p := range presets.List() {
		c := p.Config
		fmt.Printf("  %-12s %7.1f -> %7.1f Hz, %5.1fs, %-11s loop=%-5t - %s\n",
			p.Name, c.StartFrequency, c.EndFrequency, c.Duration, c.Transition, c.Loop, p.Description)
	}
	return nil
}

// scanLines adapts a scanner to the console's line reader for piped input.
type scanLines struct {
	s *bufio.Scanner
}

func (l scanLines) ReadLine() (string, error) {
	if l.s.Scan() {
		return l.s.Text(), nil
	}
	if err := l.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
