package core

import "fmt"

const (
	// RoleUser is assigned to every principal created through sign-up.
	RoleUser = "user"

	// RoleAdmin passes every role check. This is an explicit override,
	// not a role hierarchy.
	RoleAdmin = "admin"
)

// DefaultRequiredRoles applies to protected operations that declare none.
var DefaultRequiredRoles = []string{RoleUser}

// RequiredRoles returns roles, or DefaultRequiredRoles when roles is empty.
func RequiredRoles(roles ...string) []string {
	if len(roles) == 0 {
		return DefaultRequiredRoles
	}
	return roles
}

// CheckRole is the role gate. An admin is always allowed; any other role must
// be a member of required (DefaultRequiredRoles when empty).
func CheckRole(role string, required []string) error {
	if role == RoleAdmin {
		return nil
	}
	for _, r := range RequiredRoles(required...) {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q not permitted", ErrForbidden, role)
}

// ValidRole reports whether role can be assigned to a principal.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
