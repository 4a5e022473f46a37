package pricing

// Status enumerates the lifecycle of an estimate.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CanMutateRate reports whether unit prices and financial line mutations are
// still permitted. The gate is open only while the estimate is a draft; there
// is no edge back from any later state.
func CanMutateRate(s Status) bool {
	return s == StatusDraft
}

// Guard is the rate-lock gate keyed off the owning estimate's status.
type Guard struct {
	Status Status
}

// CheckRateMutation rejects financial mutations once the estimate has been
// transmitted. Non-financial edits are outside its remit.
func (g Guard) CheckRateMutation() error {
	if CanMutateRate(g.Status) {
		return nil
	}
	return ErrEstimateLocked
}

var transitions = map[Status][]Status{
	StatusDraft: {StatusSent, StatusCancelled},
	StatusSent:  {StatusAccepted, StatusExpired, StatusCancelled},
}

// CanTransition reports whether the lifecycle edge from -> to exists.
// Accepted, expired and cancelled are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
