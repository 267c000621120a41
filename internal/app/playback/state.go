// Package playback provides the playback engine: it decides what is sounding
// and drives frequency sweeps while a tone plays.
package playback

// State represents the playback state.
type State int

const (
	StateIdle   State = iota // Nothing connected to the output
	StateTone                // Fixed tone
	StateNoise               // Looped noise buffer
	StateRhythm              // Tone, possibly swept
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTone:
		return "tone"
	case StateNoise:
		return "noise"
	case StateRhythm:
		return "rhythm"
	default:
		return "unknown"
	}
}
