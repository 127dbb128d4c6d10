package identity

import (
	"context"
	"time"
)

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error)
	// DeleteUser removes the user together with its role memberships and
	// reset tokens in one transaction.
	DeleteUser(ctx context.Context, userID string) error

	// RolesForUser returns the role-id set the user currently holds.
	// ErrNotFound when the user does not exist; an empty slice when the
	// user simply has no roles.
	RolesForUser(ctx context.Context, userID string) ([]string, error)

	// ReplaceResetToken deletes every prior reset token for the user and
	// inserts the given one, atomically. Earlier tokens become unusable
	// immediately, not on expiry.
	ReplaceResetToken(ctx context.Context, reset PasswordReset) error

	// ConsumeResetToken deletes the token iff it exists and has not
	// expired, returning the owning user id. The delete is conditional so
	// that concurrent consumers of the same token yield exactly one
	// success; the rest get ErrInvalidToken.
	ConsumeResetToken(ctx context.Context, token string, now time.Time) (string, error)
}
