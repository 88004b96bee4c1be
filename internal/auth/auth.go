// Package auth models who is calling: roles, the actor behind a request and
// what each role may do.
package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleAdmin1     Role = "ADMIN1"
	RoleAdmin2     Role = "ADMIN2"
	RoleSuperAdmin Role = "SUPERADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleAdmin1, RoleAdmin2, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin1 || r == RoleAdmin2 || r == RoleSuperAdmin
}

type Action string

const (
	ActionHold   Action = "hold"
	ActionSubmit Action = "submit"
	ActionPay    Action = "pay"
	ActionGate1  Action = "gate-1"
	ActionGate2  Action = "gate-2"
	ActionGate3  Action = "gate-3"
	ActionReject Action = "reject"
)

var capabilities = map[Role]map[Action]bool{
	RoleCustomer:   {ActionHold: true, ActionSubmit: true, ActionPay: true},
	RoleAdmin1:     {ActionGate1: true, ActionReject: true},
	RoleAdmin2:     {ActionGate2: true, ActionReject: true},
	RoleSuperAdmin: {ActionGate1: true, ActionGate2: true, ActionGate3: true, ActionReject: true},
}

// Can reports whether role may perform action. Ownership is checked
// separately by the component that owns the resource.
func Can(role Role, action Action) bool {
	return capabilities[role][action]
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) Can(action Action) bool {
	return Can(a.Role, action)
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
