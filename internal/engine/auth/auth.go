package auth

import "fmt"

const (
	RoleSalesManager = "sales_manager"
	RoleAdmin        = "admin"
)

// ForbiddenError indicates the actor may not perform an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor not allowed to %s", e.Action)
}

// Actor is the authenticated caller as seen by the engine. Roles come from
// the token claims; an empty role list means the deployment runs without
// role enforcement (dev header mode).
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// enforced reports whether role checks apply to this actor.
func (a Actor) enforced() bool {
	return len(a.Roles) > 0
}

// RequireCreate allows opportunity creation for sales managers and admins.
func RequireCreate(a Actor) error {
	if !a.enforced() || a.HasRole(RoleSalesManager) || a.HasRole(RoleAdmin) {
		return nil
	}
	return ForbiddenError{Action: "create opportunities"}
}

// RequireManage allows lifecycle mutations for the owning sales manager and
// admins.
func RequireManage(a Actor, salesManagerID, action string) error {
	if !a.enforced() || a.HasRole(RoleAdmin) || a.ID == salesManagerID {
		return nil
	}
	return ForbiddenError{Action: action}
}
