package event

// Type identifies the type of domain event
type Type string

const (
	TypeAggregateCreated    Type = "aggregate.created"
	TypeDecisionRecorded    Type = "decision.recorded"
	TypeAggregateReleased   Type = "aggregate.released"
	TypeAggregateRejected   Type = "aggregate.rejected"
	TypeIdentifierAllocated Type = "identifier.allocated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeAggregateCreated,
		TypeDecisionRecorded,
		TypeAggregateReleased,
		TypeAggregateRejected,
		TypeIdentifierAllocated:
		return true
	default:
		return false
	}
}
