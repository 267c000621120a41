package sweep

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tonebox/internal/domain/signal"
)

// ErrUnknownPreset is returned when a preset name is not registered.
var ErrUnknownPreset = errors.New("unknown sweep preset")

// Preset is a named sweep.
type Preset struct {
	Name        string
	Description string
	Config      Config
}

// Presets holds the sweep presets known to a host, keyed by lower-case name.
type Presets struct {
	items map[string]Preset
}

// BuiltinPresets returns the stock presets.
func BuiltinPresets() *Presets {
	p := &Presets{items: make(map[string]Preset)}
	p.Add(Preset{
		Name:        "slow",
		Description: "Gentle frequency sweep",
		Config:      Config{Enabled: true, StartFrequency: 100, EndFrequency: 1000, Duration: 10, Transition: signal.Exponential, Loop: true},
	})
	p.Add(Preset{
		Name:        "fast",
		Description: "Quick frequency scan",
		Config:      Config{Enabled: true, StartFrequency: 200, EndFrequency: 800, Duration: 2, Transition: signal.Linear, Loop: false},
	})
	p.Add(Preset{
		Name:        "binaural",
		Description: "Subtle frequency variation",
		Config:      Config{Enabled: true, StartFrequency: 200, EndFrequency: 210, Duration: 30, Transition: signal.SineEase, Loop: true},
	})
	p.Add(Preset{
		Name:        "tinnitus",
		Description: "High frequency exploration",
		Config:      Config{Enabled: true, StartFrequency: 8000, EndFrequency: 16000, Duration: 20, Transition: signal.Linear, Loop: false},
	})
	return p
}

// Add registers or replaces a preset.
func (p *Presets) Add(preset Preset) {
	p.items[strings.ToLower(preset.Name)] = preset
}

// AddSettings decodes settings and registers them under name.
func (p *Presets) AddSettings(name string, settings map[string]any) error {
	description, _ := settings["description"].(string)
	rest := make(map[string]any, len(settings))
	for k, v := range settings {
		if k != "description" {
			rest[k] = v
		}
	}

	cfg, err := Decode(rest)
	if err != nil {
		return errors.Wrapf(err, "preset %s", name)
	}
	p.Add(Preset{Name: name, Description: description, Config: cfg})
	return nil
}

// Get returns the preset with the given name. The returned config is always enabled.
func (p *Presets) Get(name string) (Preset, error) {
	preset, ok := p.items[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, errors.Wrapf(ErrUnknownPreset, "%q", name)
	}
	preset.Config.Enabled = true
	return preset, nil
}

// List returns all presets sorted by name.
func (p *Presets) List() []Preset {
	list := make([]Preset, 0, len(p.items))
	for _, preset := range p.items {
		list = append(list, preset)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
