package rbac

import "context"

// Store persists roles, memberships and per-entity grants.
//
// GrantsFor returns the union of the user's role grants on one entity: a
// single Grant with each flag true when any of the user's roles allows the
// operation. Users with no roles, and (role, entity) pairs with no row,
// reduce to the zero Grant.
type Store interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)
	// DeleteRole removes the role together with its memberships and
	// grants in one transaction.
	DeleteRole(ctx context.Context, roleID string) error

	AssignRole(ctx context.Context, userID, roleID string) (Membership, error)
	RemoveRole(ctx context.Context, userID, roleID string) error
	MembershipsForUser(ctx context.Context, userID string) ([]Membership, error)

	// UpsertGrant replaces the (role, entity) row wholesale with the
	// given flags. There is at most one row per pair.
	UpsertGrant(ctx context.Context, grant Grant) (Grant, error)
	GrantsForRole(ctx context.Context, roleID string) ([]Grant, error)
	// GrantsFor aggregates the effective grant for a user on an entity.
	GrantsFor(ctx context.Context, userID, entityID string) (Grant, error)
	RevokeGrant(ctx context.Context, roleID, entityID string) error
}
