package playback

// EventType represents a playback event type.
type EventType int

const (
	EventStarted       EventType = iota // Output connected by Play
	EventStopped                        // Output disconnected by Stop
	EventSignalChanged                  // Signal restarted after a waveform, color or mode change
	EventSweepStarted                   // Modulation loop (re)started
	EventSweepLooped                    // Looping sweep wrapped back to its start frequency
	EventSweepFinished                  // Non-looping sweep reached its end frequency
	EventSweepStopped                   // Modulation loop halted before finishing
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventSignalChanged:
		return "signal_changed"
	case EventSweepStarted:
		return "sweep_started"
	case EventSweepLooped:
		return "sweep_looped"
	case EventSweepFinished:
		return "sweep_finished"
	case EventSweepStopped:
		return "sweep_stopped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	State     State   // State after the event
	Frequency float64 // Live frequency when the event was emitted
}
