package domain

// Role names carried in bearer credentials.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	// RoleSystem is held only by in-process producers, never by a bearer credential.
	RoleSystem = "system"
)

// IsElevated reports whether role may act on other users' notifications.
func IsElevated(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin || role == RoleSystem
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID string
	Role   string
}

// SystemActor is the identity producers use when writing notifications on a user's behalf.
var SystemActor = Actor{UserID: "system", Role: RoleSystem}
