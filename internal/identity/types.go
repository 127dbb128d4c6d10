package identity

import "time"

// User is a principal known to the engine. Role membership lives in the
// rbac package; the identity package only answers who a user is and which
// role ids they currently hold.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	// PasswordHash never leaves the process boundary.
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PasswordReset is a single-use, time-boxed recovery ticket. At most one
// active ticket per user is meaningful: issuing a new one deletes the rest.
type PasswordReset struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserUpdate carries optional field changes; nil means leave unchanged.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
}
