package entity

// AggregateStatus is the derived approval status of a workflow aggregate
type AggregateStatus string

// Status constants for WorkflowAggregate
const (
	StatusPending  AggregateStatus = "PENDING"
	StatusApproved AggregateStatus = "APPROVED"
	StatusRejected AggregateStatus = "REJECTED"
)

// IsValid reports whether s is one of the defined statuses
func (s AggregateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// AggregateKind identifies which workflow variant an aggregate belongs to
type AggregateKind string

// Kind constants for WorkflowAggregate
const (
	KindProject AggregateKind = "PROJECT"
	KindDemand  AggregateKind = "DEMAND"
)

// SequenceFamily returns the identifier family that numbers aggregates of this kind
func (k AggregateKind) SequenceFamily() string {
	switch k {
	case KindProject:
		return FamilyProject
	case KindDemand:
		return FamilyDemand
	}
	return ""
}

// LinkPath returns the frontend path segment for aggregates of this kind
func (k AggregateKind) LinkPath() string {
	switch k {
	case KindProject:
		return "projects"
	case KindDemand:
		return "demands"
	}
	return "aggregates"
}

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// NotificationType is the severity hint shown with a notification
type NotificationType string

// Notification type constants
const (
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeInfo    NotificationType = "info"
)

// Identifier family names
const (
	FamilyDemand   = "demand"
	FamilyProject  = "project"
	FamilyDocument = "document"
	FamilyTicket   = "ticket"
)
