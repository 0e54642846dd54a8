package relation

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a relation.
type Status string

const (
	StatusNone          Status = "NONE"
	StatusProposed      Status = "PROPOSED"
	StatusNegotiating   Status = "NEGOTIATING"
	StatusAwaitingHuman Status = "AWAITING_HUMAN"
	StatusEstablished   Status = "ESTABLISHED"
	StatusRejected      Status = "REJECTED"
	StatusReset         Status = "RESET"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid action for current state")

// TransitionError reports a request the relation's current state does not
// allow. The relation is left unchanged.
type TransitionError struct {
	RelationID string
	Current    Status
	Requested  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: relation %s is %s (requested %s)", ErrInvalidTransition, e.RelationID, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CanTransition encodes the relation state table.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusNone:
		return to == StatusProposed
	case StatusProposed:
		return to == StatusNegotiating || to == StatusReset
	case StatusNegotiating:
		return to == StatusAwaitingHuman || to == StatusRejected || to == StatusReset
	case StatusAwaitingHuman:
		return to == StatusEstablished || to == StatusRejected || to == StatusReset
	case StatusEstablished, StatusRejected:
		return to == StatusReset
	case StatusReset:
		return to == StatusNone
	default:
		return false
	}
}

// Terminal reports whether only a reset can move the relation on.
func (s Status) Terminal() bool {
	return s == StatusEstablished || s == StatusRejected
}
