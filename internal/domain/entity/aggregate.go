package entity

import (
	"sort"
	"time"
)

// DecisionRecord is one append-only entry in a department's decision list
type DecisionRecord struct {
	Status    Decision  `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Comment   string    `json:"comment,omitempty"`
}

// ApprovalLog maps a department to its decisions in submission order.
// The last record of a department is authoritative.
type ApprovalLog map[Department][]DecisionRecord

// Latest returns the most recent decision for a department
func (l ApprovalLog) Latest(dept Department) (DecisionRecord, bool) {
	records := l[dept]
	if len(records) == 0 {
		return DecisionRecord{}, false
	}
	return records[len(records)-1], true
}

// Append adds a record to the end of the department's list
func (l ApprovalLog) Append(dept Department, rec DecisionRecord) {
	l[dept] = append(l[dept], rec)
}

// Clone returns a deep copy so callers can mutate without touching the original
func (l ApprovalLog) Clone() ApprovalLog {
	out := make(ApprovalLog, len(l))
	for dept, records := range l {
		out[dept] = append([]DecisionRecord(nil), records...)
	}
	return out
}

// Departments returns the departments that have at least one record, sorted
func (l ApprovalLog) Departments() []Department {
	depts := make([]Department, 0, len(l))
	for dept, records := range l {
		if len(records) > 0 {
			depts = append(depts, dept)
		}
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i] < depts[j] })
	return depts
}

// Entries returns the total number of records across all departments
func (l ApprovalLog) Entries() int {
	n := 0
	for _, records := range l {
		n += len(records)
	}
	return n
}

// WorkflowAggregate is a project or demand whose approval is tracked per department
type WorkflowAggregate struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Kind        AggregateKind   `json:"kind"`
	Title       string          `json:"title"`
	OwnerID     string          `json:"owner_id"`
	Departments []Department    `json:"departments"`
	ApprovalLog ApprovalLog     `json:"approval_log"`
	Status      AggregateStatus `json:"status"`
	Released    bool            `json:"released"`
	ReleasedAt  *time.Time      `json:"released_at,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RequiresDepartment reports whether dept is one of the approving departments
func (a *WorkflowAggregate) RequiresDepartment(dept Department) bool {
	for _, d := range a.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// Link returns the frontend link for the aggregate
func (a *WorkflowAggregate) Link() string {
	return "/" + a.Kind.LinkPath() + "/" + a.Code
}

// DepartmentStatus is the display view of one department's current position
type DepartmentStatus struct {
	Department Department      `json:"department"`
	Status     AggregateStatus `json:"status"`
	DecidedBy  string          `json:"decided_by,omitempty"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
	Decisions  int             `json:"decisions"`
}

// DepartmentStatuses lists the latest position of each required department in order
func (a *WorkflowAggregate) DepartmentStatuses() []DepartmentStatus {
	out := make([]DepartmentStatus, 0, len(a.Departments))
	for _, dept := range a.Departments {
		ds := DepartmentStatus{
			Department: dept,
			Status:     StatusPending,
			Decisions:  len(a.ApprovalLog[dept]),
		}
		if rec, ok := a.ApprovalLog.Latest(dept); ok {
			ds.Status = AggregateStatus(rec.Status)
			ds.DecidedBy = rec.Actor
			at := rec.Timestamp
			ds.DecidedAt = &at
		}
		out = append(out, ds)
	}
	return out
}

// Actor is the authenticated caller submitting a decision
type Actor struct {
	UserID     string     `json:"user_id"`
	Department Department `json:"department"`
	Role       Role       `json:"role"`
}

// AggregateFilter narrows aggregate listings
type AggregateFilter struct {
	Kind   AggregateKind
	Status AggregateStatus
	Limit  int
	Offset int
}
