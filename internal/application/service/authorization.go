package service

import (
	"fmt"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// DefaultElevatedRoles may decide for any department
var DefaultElevatedRoles = []entity.Role{entity.RoleAdmin, entity.RoleManager, entity.RoleSeniorManager}

// AuthorizationPolicy decides whether an actor may act for a department
type AuthorizationPolicy interface {
	// CanDecide returns entity.ErrForbidden unless the actor belongs to dept
	// or holds an elevated role.
	CanDecide(actor entity.Actor, dept entity.Department) error
	IsElevated(actor entity.Actor) bool
}

type authorizationPolicyImpl struct {
	elevated map[entity.Role]bool
}

// NewAuthorizationPolicy creates a policy with the given elevated-role allowlist.
// A nil list uses DefaultElevatedRoles; an empty non-nil list elevates nobody.
func NewAuthorizationPolicy(elevatedRoles []entity.Role) AuthorizationPolicy {
	if elevatedRoles == nil {
		elevatedRoles = DefaultElevatedRoles
	}
	elevated := make(map[entity.Role]bool, len(elevatedRoles))
	for _, r := range elevatedRoles {
		elevated[r] = true
	}
	return &authorizationPolicyImpl{elevated: elevated}
}

func (p *authorizationPolicyImpl) CanDecide(actor entity.Actor, dept entity.Department) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: anonymous actor", entity.ErrForbidden)
	}
	if actor.Department != "" && actor.Department == dept {
		return nil
	}
	if p.IsElevated(actor) {
		return nil
	}
	return fmt.Errorf("%w: %s (%s) cannot decide for department %s",
		entity.ErrForbidden, actor.UserID, actor.Department, dept)
}

func (p *authorizationPolicyImpl) IsElevated(actor entity.Actor) bool {
	return p.elevated[actor.Role]
}
