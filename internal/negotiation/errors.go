package negotiation

import "errors"

var (
	// ErrMalformedOutput marks a model answer that did not follow the
	// required format. It never leaves the engine: it becomes a REJECT.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrConcurrentAttempt is returned when the pair already has an attempt
	// in flight. The new request is rejected, not queued.
	ErrConcurrentAttempt = errors.New("negotiation already in progress for this pair")
	// ErrUnknownVariant is returned for a defense variant that does not exist.
	ErrUnknownVariant = errors.New("unknown defense variant")
	// ErrInvalidRequest covers missing identities or a self-pairing.
	ErrInvalidRequest = errors.New("invalid negotiation request")
)

// DiagnosticIncomplete is the only failure text shown to humans.
const DiagnosticIncomplete = "negotiation could not complete"
