package message

// Phase is the dispatcher state of one mutation call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseDispatching
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseDispatching:
		return "dispatching"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// PhaseObserver is notified of every phase transition.
type PhaseObserver func(operation, conversationID string, from, to Phase)
