// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tonebox/internal/app/playback"
	"github.com/osa030/tonebox/internal/app/sweep"
	"github.com/osa030/tonebox/internal/domain/signal"
	"github.com/osa030/tonebox/internal/infra/audio"
)

// Config represents the application configuration.
type Config struct {
	Audio        AudioConfig               `yaml:"audio"`
	Engine       EngineConfig              `yaml:"engine"`
	Sweep        sweep.Config              `yaml:"sweep"`
	SweepPresets map[string]map[string]any `yaml:"sweep_presets"`
	Log          LogConfig                 `yaml:"log"`
}

// AudioConfig represents audio output configuration.
type AudioConfig struct {
	Backend    string `yaml:"backend" default:"oto" validate:"oneof=oto null"`
	SampleRate int    `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs   int    `yaml:"buffer_ms" default:"50" validate:"gte=0,lte=1000"`
}

// EngineConfig represents the initial playback state.
type EngineConfig struct {
	Frequency          float64 `yaml:"frequency" default:"440" validate:"gte=20,lte=20000"`
	Waveform           string  `yaml:"waveform" default:"sine" validate:"oneof=sine square sawtooth triangle"`
	NoiseColor         string  `yaml:"noise_color" default:"white" validate:"oneof=white pink brown blue violet grey"`
	Mode               string  `yaml:"mode" default:"tone" validate:"oneof=tone noise rhythm"`
	Volume             float64 `yaml:"volume" validate:"gte=0,lte=1"` // seeded before decoding; 0 is a valid level
	NoiseBufferSeconds float64 `yaml:"noise_buffer_seconds" default:"2" validate:"gt=0,lte=30"`
	TickIntervalMs     int     `yaml:"tick_interval_ms" default:"16" validate:"gte=1,lte=20"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
}

// DefaultVolume is the master gain used when the engine section omits it.
const DefaultVolume = 0.3

// seed returns the values that must be in place before decoding because
// their zero value is meaningful.
func seed() Config {
	return Config{
		Engine: EngineConfig{Volume: DefaultVolume},
		Sweep:  sweep.Default(),
	}
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	cfg := seed()
	return finish(&cfg)
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// An absent sweep section still yields an enabled sweep, and an absent
	// volume the default level.
	cfg := seed()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg.Audio); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := defaults.Set(&cfg.Engine); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := defaults.Set(&cfg.Log); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("TONEBOX_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = v
	}
	if v := os.Getenv("TONEBOX_SAMPLE_RATE"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid TONEBOX_SAMPLE_RATE")
		}
		c.Audio.SampleRate = rate
	}
	if v := os.Getenv("TONEBOX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c.Audio); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if err := validate.Struct(c.Engine); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if err := validate.Struct(c.Log); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if err := c.Sweep.Validate(); err != nil {
		return errors.Wrap(err, "invalid sweep")
	}

	// Presets are decoded here so a broken preset fails at startup.
	if _, err := c.Presets(); err != nil {
		return err
	}
	return nil
}

// Presets returns the built-in sweep presets merged with the configured ones.
func (c *Config) Presets() (*sweep.Presets, error) {
	presets := sweep.BuiltinPresets()
	for name, settings := range c.SweepPresets {
		if err := presets.AddSettings(name, settings); err != nil {
			return nil, errors.Wrap(err, "invalid sweep preset")
		}
	}
	return presets, nil
}

// PlaybackConfig converts the engine section into the engine's initial state.
func (c *Config) PlaybackConfig() playback.Config {
	s := c.Sweep
	return playback.Config{
		Frequency:          c.Engine.Frequency,
		Waveform:           signal.Waveform(c.Engine.Waveform),
		NoiseColor:         signal.NoiseColor(c.Engine.NoiseColor),
		Mode:               signal.Mode(c.Engine.Mode),
		Volume:             c.Engine.Volume,
		NoiseBufferSeconds: c.Engine.NoiseBufferSeconds,
		Sweep:              &s,
	}
}

// AudioOutput converts the audio section into device options.
func (c *Config) AudioOutput() audio.Config {
	return audio.Config{
		Backend:    c.Audio.Backend,
		SampleRate: c.Audio.SampleRate,
		BufferMs:   c.Audio.BufferMs,
	}
}

// TickInterval returns the modulation loop tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}
