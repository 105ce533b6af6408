package model

// ScopeReadModules lets a caller read module data and favorites.  Every
// session token carries it.
const ScopeReadModules = "read:vkm"

// Principal is the caller identity resolved by the authorization gate.  It
// is either a *UserPrincipal (session token) or a *ServicePrincipal (API
// key); the unexported method keeps the set closed.
type Principal interface {
	principal()
}

// UserPrincipal is resolved from a session token.  Roles and scopes are the
// snapshot taken when the token was issued.
type UserPrincipal struct {
	UserID uint64
	Email  string
	Roles  []Role
	Scopes []string
}

// ServicePrincipal is resolved from a static service key.  Services never
// hold roles.
type ServicePrincipal struct {
	ServiceID string
	Scopes    []string
}

func (*UserPrincipal) principal()    {}
func (*ServicePrincipal) principal() {}

// PrincipalHasRole reports whether p holds role.  Service principals never do.
func PrincipalHasRole(p Principal, role Role) bool {
	switch v := p.(type) {
	case *UserPrincipal:
		for _, r := range v.Roles {
			if r == role {
				return true
			}
		}
	}
	return false
}

// PrincipalHasScope reports whether p was granted scope.
func PrincipalHasScope(p Principal, scope string) bool {
	var scopes []string
	switch v := p.(type) {
	case *UserPrincipal:
		scopes = v.Scopes
	case *ServicePrincipal:
		scopes = v.Scopes
	}
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
