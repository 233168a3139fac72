package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser   = "USER"
	RoleAdmin  = "ADMIN"
	RoleServer = "SERVER" // service accounts
)

// IsStaff reports whether role may act on any call regardless of participation.
func IsStaff(role string) bool { return role == RoleAdmin || role == RoleServer }

func IsValid(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleServer:
		return true
	default:
		return false
	}
}
