package rbac

// Role names. Keep these stable; they are stored on users and carried in tokens.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAgent      = "agent"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleAgent:
		return true
	default:
		return false
	}
}
