package flash

// Phase is a step of a single bring-up attempt.
type Phase int

const (
	PhaseAttaching Phase = iota
	PhaseSizing
	PhaseRegistering
	PhaseMounting
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAttaching:
		return "attaching"
	case PhaseSizing:
		return "sizing"
	case PhaseRegistering:
		return "registering"
	case PhaseMounting:
		return "mounting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
