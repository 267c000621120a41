// Package sweep provides frequency sweep configuration and transition curves.
package sweep

import (
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/tonebox/internal/domain/signal"
)

// ErrInvalidParameter marks configurations outside their documented domain.
var ErrInvalidParameter = errors.New("invalid parameter")

// Config describes one sweep from StartFrequency to EndFrequency.
type Config struct {
	Enabled        bool              `yaml:"enabled" mapstructure:"enabled" default:"true"`
	StartFrequency float64           `yaml:"start_frequency" mapstructure:"start_frequency" default:"200" validate:"gte=20,lte=20000"`
	EndFrequency   float64           `yaml:"end_frequency" mapstructure:"end_frequency" default:"800" validate:"gte=20,lte=20000"`
	Duration       float64           `yaml:"duration" mapstructure:"duration" default:"5" validate:"gte=0.1,lte=60"` // seconds per traversal
	Transition     signal.Transition `yaml:"transition" mapstructure:"transition" default:"linear" validate:"oneof=linear exponential sine"`
	Loop           bool              `yaml:"loop" mapstructure:"loop"`
}

// Default returns the sweep used when none is configured.
func Default() Config {
	return Config{
		Enabled:        true,
		StartFrequency: 200,
		EndFrequency:   800,
		Duration:       5,
		Transition:     signal.Linear,
		Loop:           false,
	}
}

var validate = validator.New()

// Validate checks an enabled configuration. Disabled configurations are
// always accepted since they only switch modulation off.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "sweep validation failed"), ErrInvalidParameter)
	}
	if c.Transition == signal.Exponential && c.StartFrequency <= 0 {
		return errors.Mark(errors.Newf("exponential sweep requires a positive start frequency, got %v", c.StartFrequency), ErrInvalidParameter)
	}
	return nil
}

// FrequencyAt returns the frequency at progress in [0, 1].
func (c Config) FrequencyAt(progress float64) float64 {
	start, end := c.StartFrequency, c.EndFrequency
	switch c.Transition {
	case signal.Exponential:
		return start * math.Pow(end/start, progress)
	case signal.SineEase:
		eased := (math.Sin((progress-0.5)*math.Pi) + 1) / 2
		return start + (end-start)*eased
	case signal.Linear:
		return start + (end-start)*progress
	default:
		return start
	}
}

// Decode builds a Config from loosely typed settings, e.g. a YAML preset
// block or console key=value pairs. Missing keys take their defaults.
func Decode(settings map[string]any) (Config, error) {
	var cfg Config
	if err := decodeInto(&cfg, settings); err != nil {
		return Config{}, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to set defaults")
	}

	// defaults overwrites a false Enabled, so honor an explicit value.
	if v, ok := settings["enabled"]; ok {
		var enabled bool
		if err := mapstructure.WeakDecode(v, &enabled); err != nil {
			return Config{}, errors.Mark(errors.Wrap(err, "invalid enabled flag"), ErrInvalidParameter)
		}
		cfg.Enabled = enabled
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge overlays settings onto base and validates the result.
func Merge(base Config, settings map[string]any) (Config, error) {
	cfg := base
	if err := decodeInto(&cfg, settings); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, settings map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       transitionHook,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode sweep settings"), ErrInvalidParameter)
	}
	return nil
}

var transitionType = reflect.TypeOf(signal.Transition(""))

// transitionHook parses transition names so misspellings fail at decode time.
func transitionHook(from, to reflect.Type, data any) (any, error) {
	if to != transitionType || from.Kind() != reflect.String {
		return data, nil
	}
	return signal.ParseTransition(data.(string))
}
