package relation

// Decision is an agent's or a human's verdict on a relation.
type Decision string

const (
	Pending Decision = "PENDING"
	Accept  Decision = "ACCEPT"
	Reject  Decision = "REJECT"
)

// ParseDecision accepts "accept"/"reject" in any case.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(upper(s)) {
	case Accept:
		return Accept, true
	case Reject:
		return Reject, true
	}
	return "", false
}

// Aggregate combines the four decisions into the relation status:
//   - any agent REJECT: REJECTED
//   - agents not both ACCEPT: NEGOTIATING
//   - any human REJECT: REJECTED
//   - both humans ACCEPT: ESTABLISHED
//   - otherwise: AWAITING_HUMAN
//
// A REJECT input can never be outweighed, so the result is monotonic.
func Aggregate(agentA, agentB, humanA, humanB Decision) Status {
	if agentA == Reject || agentB == Reject {
		return StatusRejected
	}
	if agentA != Accept || agentB != Accept {
		return StatusNegotiating
	}
	if humanA == Reject || humanB == Reject {
		return StatusRejected
	}
	if humanA == Accept && humanB == Accept {
		return StatusEstablished
	}
	return StatusAwaitingHuman
}
