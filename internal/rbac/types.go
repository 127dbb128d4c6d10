package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Role is a named bundle of per-entity grants.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleUpdate carries optional role field changes.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Membership links a user to a role.
type Membership struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Operation is one of the four CRUD actions a grant can allow.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ParseOperation normalizes and validates an operation name.
func ParseOperation(raw string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(raw)))
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: unsupported operation %q", ErrInvalidInput, raw)
}

// Grant holds the four CRUD flags for one (role, entity) pair. A missing
// row reads as the zero Grant, which allows nothing.
type Grant struct {
	RoleID   string `json:"role_id,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Create   bool   `json:"can_create"`
	Read     bool   `json:"can_read"`
	Update   bool   `json:"can_update"`
	Delete   bool   `json:"can_delete"`
}

// Allows reports whether the grant covers the operation.
func (g Grant) Allows(op Operation) bool {
	switch op {
	case OpCreate:
		return g.Create
	case OpRead:
		return g.Read
	case OpUpdate:
		return g.Update
	case OpDelete:
		return g.Delete
	}
	return false
}

// Union folds another grant in. Access across roles is additive, so each
// flag ORs; the result is independent of fold order.
func (g Grant) Union(other Grant) Grant {
	return Grant{
		Create: g.Create || other.Create,
		Read:   g.Read || other.Read,
		Update: g.Update || other.Update,
		Delete: g.Delete || other.Delete,
	}
}

// Empty reports whether the grant allows no operation at all.
func (g Grant) Empty() bool {
	return !g.Create && !g.Read && !g.Update && !g.Delete
}
