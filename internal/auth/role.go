// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Role is one of a closed set of account roles.
type Role uint8

// Roles, from most to least privileged. The zero value is not a valid role.
const (
	RoleOwner Role = iota + 1
	RoleAdmin
	RoleMember
	RoleGuest
)

var roleNames = map[Role]string{
	RoleOwner:  "owner",
	RoleAdmin:  "admin",
	RoleMember: "member",
	RoleGuest:  "guest",
}

// String returns the role name as stored and as carried in access tokens.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole maps a stored role name to a Role.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, oops.Code("AUTH_UNKNOWN_ROLE").With("role", name).Errorf("unknown role %q", name)
}

// Tier is the subscription tier carried in access tokens. Tier computation
// belongs to billing; this package only transports it.
type Tier string

// Subscription tiers.
const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// capabilityTable lists the action:resource patterns each role may perform.
// Patterns use ':' as the glob separator.
var capabilityTable = map[Role][]string{
	RoleOwner: {
		"*:*",
	},
	RoleAdmin: {
		"*:task", "*:team", "*:project",
		"read:organization", "update:organization",
		"manage:account", "read:account",
		"read:member", "invite:member", "remove:member",
	},
	RoleMember: {
		"create:task", "read:task", "update:task", "comment:task",
		"read:team", "read:project",
		"read:organization",
		"manage:account", "read:account",
		"read:member",
	},
	RoleGuest: {
		"read:task", "comment:task",
		"read:project",
		"manage:account", "read:account",
	},
}

// Capabilities is the compiled capability table.
type Capabilities struct {
	roles map[Role][]glob.Glob
}

// NewCapabilities compiles the built-in capability table.
// Panics if a built-in pattern does not compile.
func NewCapabilities() *Capabilities {
	c, err := CompileCapabilities(capabilityTable)
	if err != nil {
		panic("invalid built-in capability pattern: " + err.Error())
	}
	return c
}

// CompileCapabilities compiles a role → pattern table.
func CompileCapabilities(table map[Role][]string) (*Capabilities, error) {
	compiled := make(map[Role][]glob.Glob, len(table))
	for role, patterns := range table {
		if !role.Valid() {
			return nil, oops.Code("AUTH_UNKNOWN_ROLE").With("role", uint8(role)).Errorf("unknown role in capability table")
		}
		globs := make([]glob.Glob, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.Code("AUTH_INVALID_CAPABILITY").
					With("role", role.String()).
					With("pattern", p).
					Wrap(err)
			}
			globs = append(globs, g)
		}
		compiled[role] = globs
	}
	return &Capabilities{roles: compiled}, nil
}

// Allows reports whether role may perform action on resource.
func (c *Capabilities) Allows(role Role, action, resource string) bool {
	if action == "" || resource == "" {
		return false
	}
	requested := action + ":" + resource
	for _, g := range c.roles[role] {
		if g.Match(requested) {
			return true
		}
	}
	return false
}
