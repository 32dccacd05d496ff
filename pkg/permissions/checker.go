// Package permissions checks permission strings against required ones,
// with support for wildcards.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "inventory.*")
//   - "resource.action" - Specific action (e.g., "inventory.read")
package permissions

import (
	"strings"
)

// Permissions used by the inventory and network services.
const (
	InventoryRead    = "inventory.read"
	InventoryWrite   = "inventory.write"
	InventoryRequest = "inventory.request"
	InventoryApprove = "inventory.approve"
	NetworkRead      = "network.read"
	NetworkAllocate  = "network.allocate"
	NetworkManage    = "network.manage"
)

// Roles known to the services.
const (
	RoleAdmin     = "admin"
	RoleInventory = "inventory"
	RoleNetwork   = "network"
	RoleEngineer  = "engineer"
)

var roleGrants = map[string][]string{
	RoleAdmin:     {"*"},
	RoleInventory: {"inventory.*"},
	RoleNetwork:   {"network.*"},
	RoleEngineer:  {InventoryRead, InventoryRequest, NetworkRead},
}

// ForRole returns the permissions granted by a role. Unknown roles get none.
func ForRole(role string) []string {
	return roleGrants[strings.ToLower(role)]
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "inventory.*" matches "inventory.read", "inventory.write", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// MergePermissions merges multiple permission sets, removing duplicates.
// Used to combine role grants with explicit grants from the token.
func MergePermissions(sets ...[]string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, set := range sets {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}

	return result
}
