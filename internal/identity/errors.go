package identity

import "errors"

var (
	ErrNotFound           = errors.New("identity: not found")
	ErrConflict           = errors.New("identity: already exists")
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrInvalidToken covers unknown, expired and already-consumed reset
	// tokens alike; callers must not be able to tell those apart.
	ErrInvalidToken = errors.New("identity: invalid token")
)
