package workflow

import (
	"fmt"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// NewApprovalBuilder returns the builder for the department approval lifecycle.
// PENDING and REJECTED accept every resolution; APPROVED accepts none.
func NewApprovalBuilder() StateMachineBuilder {
	b := NewBuilder()

	for _, from := range []State{StatePending, StateRejected} {
		b.Configure(from).
			Permit(TriggerResolveApproved, StateApproved).
			Permit(TriggerResolveRejected, StateRejected).
			Permit(TriggerResolvePending, StatePending)
	}
	b.Configure(StateApproved)

	return b
}

// NewApprovalMachine builds an approval machine positioned at the aggregate's stored status
func NewApprovalMachine(status entity.AggregateStatus) (StateMachine, error) {
	state, err := StateFromStatus(status)
	if err != nil {
		return nil, err
	}
	return NewApprovalBuilder().Build(state), nil
}

// StateFromStatus converts a persisted status into a machine state
func StateFromStatus(status entity.AggregateStatus) (State, error) {
	s := State(status)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return s, nil
}

// Status converts a machine state back into a persisted status
func (s State) Status() entity.AggregateStatus {
	return entity.AggregateStatus(s)
}

// Resolve derives the trigger for the current log. Only the latest record of each
// required department counts. All approved resolves to APPROVED, any rejection to
// REJECTED, anything else to PENDING. An empty required set is vacuously approved.
func Resolve(required []entity.Department, log entity.ApprovalLog) Trigger {
	allApproved := true
	anyRejected := false

	for _, dept := range required {
		rec, ok := log.Latest(dept)
		if !ok {
			allApproved = false
			continue
		}
		switch rec.Status {
		case entity.DecisionApproved:
		case entity.DecisionRejected:
			allApproved = false
			anyRejected = true
		default:
			allApproved = false
		}
	}

	switch {
	case allApproved:
		return TriggerResolveApproved
	case anyRejected:
		return TriggerResolveRejected
	default:
		return TriggerResolvePending
	}
}

// ResolveStatus is Resolve expressed as the resulting status
func ResolveStatus(required []entity.Department, log entity.ApprovalLog) entity.AggregateStatus {
	switch Resolve(required, log) {
	case TriggerResolveApproved:
		return entity.StatusApproved
	case TriggerResolveRejected:
		return entity.StatusRejected
	default:
		return entity.StatusPending
	}
}
