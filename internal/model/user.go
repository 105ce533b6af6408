package model

import "time"

// AuthMethod records how an account authenticates.  A local account always
// carries a password hash and never an OAuth link; an oauth account is the
// reverse.
type AuthMethod string

const (
	AuthLocal AuthMethod = "local"
	AuthOAuth AuthMethod = "oauth"
)

// Role is one of the fixed application roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// NormalizeRoles removes duplicates while keeping order and falls back to
// {student} when nothing is left, so a user never ends up without a role.
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[Role]bool, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return []Role{RoleStudent}
	}
	return out
}

// OAuthLink ties a local account to an identity issued by an external
// provider.
type OAuthLink struct {
	Provider  string `json:"provider"`
	SubjectID string `json:"subjectId"`
}

// Profile holds the free-form study preferences used to steer
// recommendations.  Each list may be empty but is never nil once loaded.
type Profile struct {
	Interests []string `json:"interests"`
	Values    []string `json:"values"`
	Goals     []string `json:"goals"`
}

// ProfilePatch is a partial profile update.  A nil field leaves the stored
// list untouched; a non-nil empty slice clears it.
type ProfilePatch struct {
	Interests *[]string `json:"interests,omitempty"`
	Values    *[]string `json:"values,omitempty"`
	Goals     *[]string `json:"goals,omitempty"`
}

// Empty reports whether the patch touches no field.
func (p ProfilePatch) Empty() bool {
	return p.Interests == nil && p.Values == nil && p.Goals == nil
}

// User is an account record.  PasswordHash never leaves the process: it is
// excluded from JSON.
type User struct {
	ID           uint64     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	AuthMethod   AuthMethod `json:"authMethod"`
	OAuth        *OAuthLink `json:"oauth,omitempty"`
	Roles        []Role     `json:"roles"`
	Profile      Profile    `json:"profile"`
	Favorites    []uint64   `json:"favorites"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasRole reports whether the user currently holds r.
func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// UserPatch is a partial update applied by the credential store.  Nil
// pointers (and a nil Roles slice) mean "leave as is".
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Roles        []Role
	Profile      ProfilePatch
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil && p.Roles == nil && p.Profile.Empty()
}
