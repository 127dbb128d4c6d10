package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service validates administrative input before it reaches the store.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		upd.Description = &trimmed
	}
	return s.store.UpdateRole(ctx, roleID, upd)
}

// DeleteRole removes the role and, through the store, every membership and
// grant that references it.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (Membership, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return Membership{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, roleID)
}

func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveRole(ctx, userID, roleID)
}

func (s *Service) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.MembershipsForUser(ctx, userID)
}

// UpsertGrant replaces the role's flags on an entity wholesale.
func (s *Service) UpsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	grant.RoleID = strings.TrimSpace(grant.RoleID)
	grant.EntityID = strings.TrimSpace(grant.EntityID)
	if grant.RoleID == "" || grant.EntityID == "" {
		return Grant{}, fmt.Errorf("%w: role_id and entity_id are required", ErrInvalidInput)
	}
	return s.store.UpsertGrant(ctx, grant)
}

func (s *Service) GrantsForRole(ctx context.Context, roleID string) ([]Grant, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GrantsForRole(ctx, roleID)
}

func (s *Service) RevokeGrant(ctx context.Context, roleID, entityID string) error {
	roleID = strings.TrimSpace(roleID)
	entityID = strings.TrimSpace(entityID)
	if roleID == "" || entityID == "" {
		return fmt.Errorf("%w: role_id and entity_id are required", ErrInvalidInput)
	}
	return s.store.RevokeGrant(ctx, roleID, entityID)
}
