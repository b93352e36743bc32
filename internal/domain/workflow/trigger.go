package workflow

// Trigger represents the resolved outcome of the approval log that drives a transition
type Trigger string

const (
	TriggerResolveApproved Trigger = "RESOLVE_APPROVED"
	TriggerResolveRejected Trigger = "RESOLVE_REJECTED"
	TriggerResolvePending  Trigger = "RESOLVE_PENDING"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
