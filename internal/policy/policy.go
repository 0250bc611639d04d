// Package policy decides whether a caller may perform an action.
package policy

import (
	"slices"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/models"
)

// Principal is the caller: a verified identity and, when an account exists, its role.
type Principal struct {
	Identity string
	Role     string
}

// Verified reports whether the principal carries a verified identity.
func (p Principal) Verified() bool { return p.Identity != "" }

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Rule lists the roles allowed to act and, optionally, the owning identity.
// An empty Roles list admits any verified principal.
type Rule struct {
	Roles []string
	Owner string
}

// Allow returns a rule admitting the given roles.
func Allow(roles ...string) Rule {
	return Rule{Roles: roles}
}

// Self returns a rule that only admits the owner identity.
func Self(owner string) Rule {
	return Rule{Owner: owner}
}

// OwnedBy returns a copy of r that also requires the principal to be owner.
func (r Rule) OwnedBy(owner string) Rule {
	r.Owner = owner
	return r
}

// Authorize returns nil when p satisfies r, an Unauthorized error when p has
// no verified identity, and a Forbidden error otherwise.
func Authorize(p Principal, r Rule) error {
	if !p.Verified() {
		return apperr.Unauthorized("missing or invalid credential")
	}
	if len(r.Roles) > 0 {
		if p.Role == "" {
			return apperr.Forbidden("no account for this identity")
		}
		if !slices.Contains(r.Roles, p.Role) {
			return apperr.Forbidden("role " + p.Role + " may not perform this action")
		}
	}
	if r.Owner != "" && r.Owner != p.Identity {
		return apperr.Forbidden("access to another identity's resource")
	}
	return nil
}
