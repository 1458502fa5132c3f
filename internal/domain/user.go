package domain

import (
	"strings"
	"time"
)

// RolePrefix marks a role name as a granted authority.
const RolePrefix = "ROLE_"

// RoleAdmin is the role reserved for administrators; it cannot be picked at signup.
const RoleAdmin = "ADMIN"

// User represents a registered account as held by the credential store.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Name         string
	Email        string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Authorities returns the user's roles in their granted-authority form.
func (u User) Authorities() []string {
	if strings.TrimSpace(u.Role) == "" {
		return nil
	}
	return []string{Authority(u.Role)}
}

// Identity is the result of a successful login; it is never persisted.
type Identity struct {
	Username string
	Roles    []string
}

// PrimaryRole returns the first role of the identity, or "" when it has none.
func (i Identity) PrimaryRole() string {
	if len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

// HasRole reports whether the primary role matches any of roles.
func (i Identity) HasRole(roles ...string) bool {
	primary := i.PrimaryRole()
	if primary == "" {
		return false
	}
	for _, r := range roles {
		if r == primary {
			return true
		}
	}
	return false
}

// NormalizeRole upper-cases a role name and strips any authority prefix.
func NormalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(role, RolePrefix)
}

// Authority converts a role name into its "ROLE_" form.
func Authority(role string) string {
	return RolePrefix + NormalizeRole(role)
}
