package auth

import "time"

// User represents a legacy platform account attempting to open a back-office
// session. AdminLevel mirrors the legacy admin column; accounts at level "0"
// may not sign in here.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	AdminLevel   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
