package negotiation

// State is the lifecycle of one attempt.
type State string

const (
	StateInitiated  State = "INITIATED"
	StateExchanging State = "EXCHANGING"
	StateAgreed     State = "AGENTS_AGREED"
	StateDisagreed  State = "AGENTS_DISAGREED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateAgreed || s == StateDisagreed
}

// CanTransition encodes INITIATED → EXCHANGING → {AGREED, DISAGREED}.
// An attempt may fail before its first turn, so INITIATED may also go
// straight to DISAGREED.
func CanTransition(from, to State) bool {
	switch from {
	case StateInitiated:
		return to == StateExchanging || to == StateDisagreed
	case StateExchanging:
		return to == StateAgreed || to == StateDisagreed
	case StateAgreed, StateDisagreed:
		return false
	default:
		return false
	}
}
