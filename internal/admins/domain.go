package admins

import "time"

// Admin is the back-office view of a legacy platform user. The row itself is
// owned and lifecycle-managed by the main application; this module reads the
// columns the gate and the admin listing need.
type Admin struct {
	ID         int64
	Username   string
	Email      string
	AdminLevel string
	IsActive   bool
	CreatedAt  time.Time
}
