package entity

import (
	"fmt"
	"strings"
)

// Decision is a department's verdict on a workflow aggregate
type Decision string

// Decision constants
const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// Department is a canonical department code
type Department string

// Department codes
const (
	DepartmentLogistics   Department = "logistics"
	DepartmentQA          Department = "qa"
	DepartmentPC          Department = "pc"
	DepartmentProduction  Department = "production"
	DepartmentEngineering Department = "engineering"
	DepartmentPurchasing  Department = "purchasing"
	DepartmentFinance     Department = "finance"
	DepartmentSales       Department = "sales"
	DepartmentIT          Department = "it"
	DepartmentHR          Department = "hr"
)

// Role is a canonical user role
type Role string

// Role codes
const (
	RoleAdmin          Role = "ADMIN"
	RoleSeniorManager  Role = "SENIOR_MANAGER"
	RoleManager        Role = "MANAGER"
	RoleDepartmentHead Role = "DEPARTMENT_HEAD"
	RoleStaff          Role = "STAFF"
)

var decisionAliases = map[string]Decision{
	"approved":    DecisionApproved,
	"approve":     DecisionApproved,
	"disapproved": DecisionRejected,
	"disapprove":  DecisionRejected,
	"rejected":    DecisionRejected,
	"reject":      DecisionRejected,
}

var departmentAliases = map[string]Department{
	"logistics":          DepartmentLogistics,
	"qa":                 DepartmentQA,
	"quality":            DepartmentQA,
	"quality_assurance":  DepartmentQA,
	"pc":                 DepartmentPC,
	"production_control": DepartmentPC,
	"production":         DepartmentProduction,
	"engineering":        DepartmentEngineering,
	"purchasing":         DepartmentPurchasing,
	"procurement":        DepartmentPurchasing,
	"finance":            DepartmentFinance,
	"accounting":         DepartmentFinance,
	"sales":              DepartmentSales,
	"it":                 DepartmentIT,
	"hr":                 DepartmentHR,
	"human_resources":    DepartmentHR,
}

var roleAliases = map[string]Role{
	"admin":           RoleAdmin,
	"administrator":   RoleAdmin,
	"senior_manager":  RoleSeniorManager,
	"manager":         RoleManager,
	"department_head": RoleDepartmentHead,
	"dept_head":       RoleDepartmentHead,
	"head":            RoleDepartmentHead,
	"staff":           RoleStaff,
	"user":            RoleStaff,
}

// NormalizeCode is the single normalization applied to every inbound code:
// trimmed, lower-cased, with runs of spaces, hyphens and dots folded to one underscore.
func NormalizeCode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		switch r {
		case ' ', '-', '.', '_', '\t':
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// ParseDecision maps an inbound action to a Decision
func ParseDecision(s string) (Decision, error) {
	if d, ok := decisionAliases[NormalizeCode(s)]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", ErrValidation, s)
}

// ParseDepartment maps an inbound department name to its canonical code
func ParseDepartment(s string) (Department, error) {
	if d, ok := departmentAliases[NormalizeCode(s)]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown department %q", ErrValidation, s)
}

// ParseRole maps an inbound role name to its canonical code
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[NormalizeCode(s)]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// ParseDepartments normalizes a list of department names, dropping duplicates
// while keeping first-seen order.
func ParseDepartments(names []string) ([]Department, error) {
	seen := make(map[Department]bool, len(names))
	out := make([]Department, 0, len(names))
	for _, name := range names {
		d, err := ParseDepartment(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// ParseKind maps an inbound kind to an AggregateKind
func ParseKind(s string) (AggregateKind, error) {
	switch NormalizeCode(s) {
	case "project":
		return KindProject, nil
	case "demand":
		return KindDemand, nil
	}
	return "", fmt.Errorf("%w: unknown aggregate kind %q", ErrValidation, s)
}
