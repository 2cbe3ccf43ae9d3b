package frameloop

// State is a Driver state.
type State int32

const (
	// StateIdle is between frames.
	StateIdle State = iota

	// StateWaiting is blocked on the fence of the selected image.
	StateWaiting

	// StateRecording is re-recording the selected image's command buffer.
	StateRecording

	// StateSubmitted means the command buffer was handed to the queue.
	StateSubmitted

	// StatePresenting is signaling the fence and presenting.
	StatePresenting

	// StateStopped is terminal. No further GPU work is issued.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaiting:
		return "Waiting"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StatePresenting:
		return "Presenting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
