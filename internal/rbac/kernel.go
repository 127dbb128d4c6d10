package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docbase.org/internal/identity"
	"docbase.org/internal/obs"
	"docbase.org/internal/schema"
)

// RoleDirectory resolves a user's role names. Unknown users surface as
// identity.ErrNotFound; a known user with no roles yields an empty slice.
type RoleDirectory interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

// EntityIndex resolves public entity names to entity ids. Unknown names
// surface as schema.ErrUnknownEntity.
type EntityIndex interface {
	EntityIDByName(ctx context.Context, name string) (string, error)
}

// PayloadValidator checks payloads against an entity's compiled schema.
type PayloadValidator interface {
	ValidatePayload(ctx context.Context, entityID string, payload map[string]any, mode schema.Mode) (map[string]any, []string, error)
}

// GrantSource aggregates a user's effective grant on an entity.
type GrantSource interface {
	GrantsFor(ctx context.Context, userID, entityID string) (Grant, error)
}

// Kernel is the stateless decision point. Every check walks the same
// pipeline: resolve the entity, load the user's roles, reduce the grants,
// compare against the requested operation. Nothing is cached here; the
// schema registry and the store decide what to memoize.
type Kernel struct {
	roles    RoleDirectory
	entities EntityIndex
	grants   GrantSource
	schemas  PayloadValidator
}

func NewKernel(roles RoleDirectory, entities EntityIndex, grants GrantSource, schemas PayloadValidator) (*Kernel, error) {
	if roles == nil || entities == nil || grants == nil {
		return nil, errors.New("rbac kernel requires role, entity and grant sources")
	}
	return &Kernel{roles: roles, entities: entities, grants: grants, schemas: schemas}, nil
}

// Authorize decides whether the user may perform the operation on the
// named entity. Deny-by-default: every missing precondition is a deny with
// a reason, and only a positive grant flag allows.
func (k *Kernel) Authorize(ctx context.Context, userID, entityName string, op Operation) (Decision, error) {
	userID = strings.TrimSpace(userID)
	entityName = strings.TrimSpace(entityName)
	if userID == "" {
		return Decision{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := ParseOperation(string(op)); err != nil {
		return Decision{}, err
	}

	d := Decision{UserID: userID, Entity: entityName, Operation: op}

	entityID, err := k.entities.EntityIDByName(ctx, entityName)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownEntity) {
			return k.record(deny(d, DenyUnknownEntity)), nil
		}
		return Decision{}, err
	}
	d.EntityID = entityID

	roles, err := k.roles.RolesForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return k.record(deny(d, DenyUnknownUser)), nil
		}
		return Decision{}, err
	}
	d.Roles = roles
	if len(roles) == 0 {
		return k.record(deny(d, DenyNoRoles)), nil
	}

	grant, err := k.grants.GrantsFor(ctx, userID, entityID)
	if err != nil {
		return Decision{}, err
	}
	d.Grant = grant
	if !grant.Allows(op) {
		return k.record(deny(d, DenyInsufficientPermission)), nil
	}

	d.Allowed = true
	return k.record(d), nil
}

// AuthorizeAndValidate runs Authorize first and validates the payload only
// on an allow. A denied caller learns nothing about the entity's shape.
func (k *Kernel) AuthorizeAndValidate(ctx context.Context, userID, entityName string, op Operation, payload map[string]any) (CheckResult, error) {
	if k.schemas == nil {
		return CheckResult{}, errors.New("rbac kernel has no payload validator")
	}
	if op != OpCreate && op != OpUpdate {
		return CheckResult{}, fmt.Errorf("%w: payload validation applies to create and update only", ErrInvalidInput)
	}
	decision, err := k.Authorize(ctx, userID, entityName, op)
	if err != nil {
		return CheckResult{}, err
	}
	if !decision.Allowed {
		return CheckResult{Decision: decision}, nil
	}

	mode := schema.ModeCreate
	if op == OpUpdate {
		mode = schema.ModeUpdate
	}
	normalized, probes, err := k.schemas.ValidatePayload(ctx, decision.EntityID, payload, mode)
	if err != nil {
		return CheckResult{Decision: decision}, err
	}
	return CheckResult{Decision: decision, Payload: normalized, UniqueProbes: probes}, nil
}

func (k *Kernel) record(d Decision) Decision {
	outcome := "allow"
	reason := ""
	if !d.Allowed {
		outcome = "deny"
		reason = string(d.Reason)
	}
	obs.RecordDecision(string(d.Operation), outcome, reason)
	return d
}
