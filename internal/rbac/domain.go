package rbac

import "time"

// Role represents a named bundle of permissions. A role flagged IsSuperAdmin
// implicitly grants every permission regardless of explicit assignments.
type Role struct {
	ID           int64
	Name         string
	Description  string
	IsSuperAdmin bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission represents one controllable admin capability. Key is stable
// once referenced by role assignments (e.g. "manage-users").
type Permission struct {
	ID       int64
	Key      string
	Label    string
	NavGroup string
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRole links a legacy user to a role. The user row itself is owned by
// the platform; this module only holds the numeric reference.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// Actor describes the admin performing a request. AdminLevel is the legacy
// single-column flag on the users table ("0" none, "1" super admin,
// "2" moderator).
type Actor struct {
	ID         int64
	AdminLevel string
}

// Reason explains the outcome of an access check, so audit logging can
// record why access was granted without re-deriving the decision.
type Reason int

const (
	// Denied means no rule granted access.
	Denied Reason = iota
	// GrantedByLegacyFlag means the legacy admin column equals the
	// super-admin sentinel. Highest precedence.
	GrantedByLegacyFlag
	// GrantedBySuperRole means a held role is flagged is_super_admin.
	GrantedBySuperRole
	// GrantedByPermission means the required key is in the union of the
	// actor's role permissions.
	GrantedByPermission
	// GrantedDefaultOpen means the resource declares no permission key.
	// Resources predating the permission system stay open to any
	// authenticated admin.
	GrantedDefaultOpen
)

// String returns the audit-friendly name of the reason.
func (r Reason) String() string {
	switch r {
	case GrantedByLegacyFlag:
		return "legacy_flag"
	case GrantedBySuperRole:
		return "super_role"
	case GrantedByPermission:
		return "permission"
	case GrantedDefaultOpen:
		return "default_open"
	default:
		return "denied"
	}
}

// Decision is the outcome of one access check.
type Decision struct {
	Reason        Reason
	PermissionKey string
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Reason != Denied
}
