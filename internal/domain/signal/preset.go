package signal

import (
	"math"
	"strings"
)

// PresetCategory groups frequency presets.
type PresetCategory string

const (
	CategoryMusical    PresetCategory = "musical"
	CategoryHealing    PresetCategory = "healing"
	CategoryScientific PresetCategory = "scientific"
)

// FrequencyPreset is a named tone frequency.
type FrequencyPreset struct {
	Name        string
	Frequency   float64
	Description string
	Category    PresetCategory
}

// FrequencyPresets are the built-in tone presets.
var FrequencyPresets = []FrequencyPreset{
	{Name: "A4", Frequency: 440, Description: "Standard tuning pitch", Category: CategoryMusical},
	{Name: "Natural A", Frequency: 432, Description: "Natural tuning", Category: CategoryHealing},
	{Name: "Love Freq", Frequency: 528, Description: "Transformation & miracles", Category: CategoryHealing},
	{Name: "Foundation", Frequency: 174, Description: "Pain relief", Category: CategoryHealing},
	{Name: "Connection", Frequency: 639, Description: "Relationships", Category: CategoryHealing},
	{Name: "Intuition", Frequency: 852, Description: "Spiritual awareness", Category: CategoryHealing},
	{Name: "1 kHz", Frequency: 1000, Description: "Reference tone", Category: CategoryScientific},
	{Name: "10 kHz", Frequency: 10000, Description: "High frequency test", Category: CategoryScientific},
}

// FindFrequencyPreset looks a preset up by name, ignoring case and spaces.
func FindFrequencyPreset(name string) (FrequencyPreset, bool) {
	key := presetKey(name)
	for _, p := range FrequencyPresets {
		if presetKey(p.Name) == key {
			return p, true
		}
	}
	return FrequencyPreset{}, false
}

// MatchesPreset reports whether f is within 0.1 Hz of the preset frequency.
func (p FrequencyPreset) MatchesPreset(f float64) bool {
	return math.Abs(f-p.Frequency) < 0.1
}

func presetKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
