package pipeline

// State is the controller lifecycle state.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
	Faulting
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Faulting:
		return "faulting"
	default:
		return "unknown"
	}
}
