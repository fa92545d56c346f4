package enums

import (
	"fmt"
	"strings"
)

// ActorRole is the role asserted by the upstream gateway for the caller.
type ActorRole string

const (
	ActorRoleManager  ActorRole = "manager"
	ActorRoleSupplier ActorRole = "supplier"
	ActorRoleClient   ActorRole = "client"
	ActorRoleSystem   ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleManager,
	ActorRoleSupplier,
	ActorRoleClient,
	ActorRoleSystem,
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw header input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActorRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
