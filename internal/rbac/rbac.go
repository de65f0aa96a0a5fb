package rbac

import "strings"

// Role is an account team member's role.
type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

const (
	ActionViewPortal   Action = "view_portal"
	ActionEditPortal   Action = "edit_portal"
	ActionEditTemplate Action = "edit_template"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember:
		return action == ActionViewPortal || action == ActionEditPortal
	case RoleViewer:
		return action == ActionViewPortal
	default:
		return false
	}
}

// Normalize maps a stored role string to a Role. Empty and unknown roles
// map to the zero Role, which is granted nothing.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleViewer, RoleMember, RoleAdmin, RoleOwner:
		return r
	default:
		return ""
	}
}
