package rbac

import (
	"context"
	"errors"
	"testing"

	"docbase.org/internal/identity"
	"docbase.org/internal/schema"
)

type stubRoles struct {
	fn func(ctx context.Context, userID string) ([]string, error)
}

func (s stubRoles) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	return s.fn(ctx, userID)
}

type stubEntities struct {
	fn func(ctx context.Context, name string) (string, error)
}

func (s stubEntities) EntityIDByName(ctx context.Context, name string) (string, error) {
	return s.fn(ctx, name)
}

type stubGrants struct {
	fn func(ctx context.Context, userID, entityID string) (Grant, error)
}

func (s stubGrants) GrantsFor(ctx context.Context, userID, entityID string) (Grant, error) {
	return s.fn(ctx, userID, entityID)
}

type stubValidator struct {
	fn func(ctx context.Context, entityID string, payload map[string]any, mode schema.Mode) (map[string]any, []string, error)
}

func (s stubValidator) ValidatePayload(ctx context.Context, entityID string, payload map[string]any, mode schema.Mode) (map[string]any, []string, error) {
	return s.fn(ctx, entityID, payload, mode)
}

func testKernel(t *testing.T, roles stubRoles, entities stubEntities, grants stubGrants, validator PayloadValidator) *Kernel {
	t.Helper()
	k, err := NewKernel(roles, entities, grants, validator)
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	return k
}

func editorFixture(t *testing.T) *Kernel {
	// The editor may read and update invoices but not create or delete.
	roles := stubRoles{fn: func(ctx context.Context, userID string) ([]string, error) {
		switch userID {
		case "u-editor":
			return []string{"editor"}, nil
		case "u-roleless":
			return []string{}, nil
		default:
			return nil, identity.ErrNotFound
		}
	}}
	entities := stubEntities{fn: func(ctx context.Context, name string) (string, error) {
		if name == "invoices" {
			return "ent-inv", nil
		}
		return "", schema.ErrUnknownEntity
	}}
	grants := stubGrants{fn: func(ctx context.Context, userID, entityID string) (Grant, error) {
		if userID == "u-editor" && entityID == "ent-inv" {
			return Grant{Read: true, Update: true}, nil
		}
		return Grant{}, nil
	}}
	return testKernel(t, roles, entities, grants, nil)
}

func TestAuthorizeAllowAndDeny(t *testing.T) {
	k := editorFixture(t)
	ctx := context.Background()

	d, err := k.Authorize(ctx, "u-editor", "invoices", OpUpdate)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || d.Reason != "" {
		t.Fatalf("expected allow, got %+v", d)
	}
	if d.EntityID != "ent-inv" || len(d.Roles) != 1 {
		t.Fatalf("decision missing context: %+v", d)
	}

	d, err = k.Authorize(ctx, "u-editor", "invoices", OpDelete)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed || d.Reason != DenyInsufficientPermission {
		t.Fatalf("expected insufficient_permission, got %+v", d)
	}
}

func TestAuthorizeDenyReasons(t *testing.T) {
	k := editorFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		user   string
		entity string
		want   DenyReason
	}{
		{"unknown entity", "u-editor", "ghosts", DenyUnknownEntity},
		{"unknown user", "u-ghost", "invoices", DenyUnknownUser},
		{"no roles", "u-roleless", "invoices", DenyNoRoles},
	}
	for _, tc := range cases {
		d, err := k.Authorize(ctx, tc.user, tc.entity, OpRead)
		if err != nil {
			t.Fatalf("%s: Authorize: %v", tc.name, err)
		}
		if d.Allowed || d.Reason != tc.want {
			t.Fatalf("%s: expected %s, got %+v", tc.name, tc.want, d)
		}
	}
}

func TestAuthorizeInvalidInput(t *testing.T) {
	k := editorFixture(t)
	if _, err := k.Authorize(context.Background(), "", "invoices", OpRead); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := k.Authorize(context.Background(), "u-editor", "invoices", "drop"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad operation, got %v", err)
	}
}

func TestAuthorizeUnionAcrossRoles(t *testing.T) {
	roles := stubRoles{fn: func(ctx context.Context, userID string) ([]string, error) {
		return []string{"viewer", "writer"}, nil
	}}
	entities := stubEntities{fn: func(ctx context.Context, name string) (string, error) {
		return "ent-1", nil
	}}
	// The store reduces per-role rows; the kernel sees the union.
	grants := stubGrants{fn: func(ctx context.Context, userID, entityID string) (Grant, error) {
		return Grant{Read: true}.Union(Grant{Create: true}), nil
	}}
	k := testKernel(t, roles, entities, grants, nil)

	for _, op := range []Operation{OpRead, OpCreate} {
		d, err := k.Authorize(context.Background(), "u-1", "docs", op)
		if err != nil {
			t.Fatalf("Authorize(%s): %v", op, err)
		}
		if !d.Allowed {
			t.Fatalf("expected union to allow %s: %+v", op, d)
		}
	}
	d, err := k.Authorize(context.Background(), "u-1", "docs", OpDelete)
	if err != nil {
		t.Fatalf("Authorize(delete): %v", err)
	}
	if d.Allowed {
		t.Fatalf("delete must stay denied: %+v", d)
	}
}

func TestAuthorizeAndValidateFailsClosed(t *testing.T) {
	var validated bool
	validator := stubValidator{fn: func(ctx context.Context, entityID string, payload map[string]any, mode schema.Mode) (map[string]any, []string, error) {
		validated = true
		return payload, nil, nil
	}}
	roles := stubRoles{fn: func(ctx context.Context, userID string) ([]string, error) {
		return nil, identity.ErrNotFound
	}}
	entities := stubEntities{fn: func(ctx context.Context, name string) (string, error) {
		return "ent-1", nil
	}}
	grants := stubGrants{fn: func(ctx context.Context, userID, entityID string) (Grant, error) {
		return Grant{Create: true}, nil
	}}
	k := testKernel(t, roles, entities, grants, validator)

	res, err := k.AuthorizeAndValidate(context.Background(), "u-ghost", "docs", OpCreate, map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("AuthorizeAndValidate: %v", err)
	}
	if res.Decision.Allowed {
		t.Fatalf("expected deny: %+v", res.Decision)
	}
	if validated {
		t.Fatalf("validation must not run for a denied request")
	}
	if res.Payload != nil {
		t.Fatalf("denied result must carry no payload")
	}
}

func TestAuthorizeAndValidateRunsValidationOnAllow(t *testing.T) {
	validator := stubValidator{fn: func(ctx context.Context, entityID string, payload map[string]any, mode schema.Mode) (map[string]any, []string, error) {
		if mode != schema.ModeUpdate {
			t.Fatalf("expected update mode, got %v", mode)
		}
		return map[string]any{"title": "ok"}, []string{"title"}, nil
	}}
	roles := stubRoles{fn: func(ctx context.Context, userID string) ([]string, error) {
		return []string{"editor"}, nil
	}}
	entities := stubEntities{fn: func(ctx context.Context, name string) (string, error) {
		return "ent-1", nil
	}}
	grants := stubGrants{fn: func(ctx context.Context, userID, entityID string) (Grant, error) {
		return Grant{Update: true}, nil
	}}
	k := testKernel(t, roles, entities, grants, validator)

	res, err := k.AuthorizeAndValidate(context.Background(), "u-1", "docs", OpUpdate, map[string]any{"title": "ok"})
	if err != nil {
		t.Fatalf("AuthorizeAndValidate: %v", err)
	}
	if !res.Decision.Allowed {
		t.Fatalf("expected allow: %+v", res.Decision)
	}
	if res.Payload["title"] != "ok" || len(res.UniqueProbes) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := k.AuthorizeAndValidate(context.Background(), "u-1", "docs", OpRead, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("read must be rejected for payload validation, got %v", err)
	}
}
