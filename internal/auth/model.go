package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleAnonymous Role = "ANONYMOUS"
)

// ParseRole accepts the bare role name in any case, with or without the
// "ROLE_" prefix used by some seed files.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "ROLE_")
	switch Role(name) {
	case RoleUser, RoleAdmin, RoleAnonymous:
		return Role(name), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is an immutable snapshot of an identity. Registry updates
// replace the whole value.
type Principal struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	Roles           []Role    `json:"roles"`
	Token           string    `json:"-"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// HasAnyRole reports whether p holds at least one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

func (p Principal) clone() Principal {
	p.Roles = slices.Clone(p.Roles)
	return p
}

const anonymousUsername = "anonymous"

func anonymousPrincipal() Principal {
	return Principal{Username: anonymousUsername, Roles: []Role{RoleAnonymous}}
}

// Authentication is what the gateway binds to a request once it succeeds.
type Authentication struct {
	Principal Principal
	// Token is the credential artifact: the freshly issued token after a
	// login, or the presented bearer token.
	Token     string
	Anonymous bool
}
