package shared

// Permission keys for the back-office resources. Resources created before the
// permission system declare no key and stay open to any authenticated admin.
const (
	PermManageUsers    = "manage-users"
	PermManageRoles    = "manage-roles"
	PermManageSettings = "manage-settings"
	PermManagePages    = "manage-pages"
	PermManageProducts = "manage-products"
	PermManageOrders   = "manage-orders"
	PermViewAuditLog   = "view-audit-log"
)

// CorePermissions lists the seeded permission catalog with human labels and
// navigation groups for the admin sidebar.
func CorePermissions() map[string][2]string {
	return map[string][2]string{
		PermManageUsers:    {"Manage Users", "Users"},
		PermManageRoles:    {"Manage Roles", "Users"},
		PermManageSettings: {"Manage Settings", "Settings"},
		PermManagePages:    {"Manage Pages", "Content"},
		PermManageProducts: {"Manage Products", "Market"},
		PermManageOrders:   {"Manage Orders", "Market"},
		PermViewAuditLog:   {"View Audit Log", "Settings"},
	}
}

// LegacySuperAdminFlag is the sentinel value of the legacy users.admin column
// that grants unconditional access, bypassing the role system.
const LegacySuperAdminFlag = "1"
