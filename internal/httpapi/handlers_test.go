package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docbase.org/internal/identity"
	"docbase.org/internal/rbac"
	"docbase.org/internal/schema"
)

type stubIdentityStore struct {
	identity.Store
	listUsersFn    func(ctx context.Context) ([]identity.User, error)
	rolesForUserFn func(ctx context.Context, userID string) ([]string, error)
}

func (s *stubIdentityStore) ListUsers(ctx context.Context) ([]identity.User, error) {
	return s.listUsersFn(ctx)
}

func (s *stubIdentityStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	return s.rolesForUserFn(ctx, userID)
}

type stubRBACStore struct {
	rbac.Store
	grantsForFn func(ctx context.Context, userID, entityID string) (rbac.Grant, error)
}

func (s *stubRBACStore) GrantsFor(ctx context.Context, userID, entityID string) (rbac.Grant, error) {
	return s.grantsForFn(ctx, userID, entityID)
}

type stubSchemaStore struct {
	schema.Store
	entityByNameFn    func(ctx context.Context, name string) (schema.Entity, error)
	getEntityFn       func(ctx context.Context, entityID string) (schema.Entity, error)
	fieldsForEntityFn func(ctx context.Context, entityID string) ([]schema.Field, error)
}

func (s *stubSchemaStore) EntityByName(ctx context.Context, name string) (schema.Entity, error) {
	return s.entityByNameFn(ctx, name)
}

func (s *stubSchemaStore) GetEntity(ctx context.Context, entityID string) (schema.Entity, error) {
	return s.getEntityFn(ctx, entityID)
}

func (s *stubSchemaStore) FieldsForEntity(ctx context.Context, entityID string) ([]schema.Field, error) {
	return s.fieldsForEntityFn(ctx, entityID)
}

// newTestHandler wires the full HTTP surface over in-memory stores. Two
// subjects exist: u-admin holds a role with full grants on everything,
// u-limited is a known user with no roles at all.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	setAuthSecret(t)

	byName := map[string]schema.Entity{
		"users":       {ID: "ent-users", Name: "users"},
		"roles":       {ID: "ent-roles", Name: "roles"},
		"entities":    {ID: "ent-entities", Name: "entities"},
		"permissions": {ID: "ent-permissions", Name: "permissions"},
		"invoices":    {ID: "ent-invoices", Name: "invoices"},
	}
	byID := make(map[string]schema.Entity, len(byName))
	for _, e := range byName {
		byID[e.ID] = e
	}

	idStore := &stubIdentityStore{
		listUsersFn: func(ctx context.Context) ([]identity.User, error) {
			return []identity.User{{ID: "u-admin", Name: "Admin", Email: "admin@example.com"}}, nil
		},
		rolesForUserFn: func(ctx context.Context, userID string) ([]string, error) {
			switch userID {
			case "u-admin":
				return []string{"role-admin"}, nil
			case "u-limited":
				return []string{}, nil
			default:
				return nil, identity.ErrNotFound
			}
		},
	}
	rbacStore := &stubRBACStore{
		grantsForFn: func(ctx context.Context, userID, entityID string) (rbac.Grant, error) {
			if userID == "u-admin" {
				return rbac.Grant{EntityID: entityID, Create: true, Read: true, Update: true, Delete: true}, nil
			}
			return rbac.Grant{EntityID: entityID}, nil
		},
	}
	schemaStore := &stubSchemaStore{
		entityByNameFn: func(ctx context.Context, name string) (schema.Entity, error) {
			e, ok := byName[name]
			if !ok {
				return schema.Entity{}, schema.ErrNotFound
			}
			return e, nil
		},
		getEntityFn: func(ctx context.Context, entityID string) (schema.Entity, error) {
			e, ok := byID[entityID]
			if !ok {
				return schema.Entity{}, schema.ErrNotFound
			}
			return e, nil
		},
		fieldsForEntityFn: func(ctx context.Context, entityID string) ([]schema.Field, error) {
			if entityID != "ent-invoices" {
				return []schema.Field{}, nil
			}
			return []schema.Field{
				{ID: "f-code", EntityID: entityID, ColumnName: "code", ColumnType: schema.TypeString, Size: 10, IsUnique: true},
				{ID: "f-amount", EntityID: entityID, ColumnName: "amount", ColumnType: schema.TypeFloat},
			}, nil
		},
	}

	idSvc, err := identity.NewService(idStore)
	if err != nil {
		t.Fatalf("identity service: %v", err)
	}
	rbacSvc, err := rbac.NewService(rbacStore)
	if err != nil {
		t.Fatalf("rbac service: %v", err)
	}
	registry, err := schema.NewRegistry(schemaStore)
	if err != nil {
		t.Fatalf("schema registry: %v", err)
	}
	kernel, err := rbac.NewKernel(idSvc, registry, rbacStore, registry)
	if err != nil {
		t.Fatalf("kernel: %v", err)
	}

	api := New(ReadyProbe{}, "test", idSvc, rbacSvc, registry, kernel)
	return RequestID(api.Handler())
}

func authedRequest(t *testing.T, method, path, userID string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := identity.GenerateToken(userID, nil, time.Minute)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req.Header.Set(authHeader, bearer+token)
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return body
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/healthz", "", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "docbase-api" {
		t.Fatalf("unexpected service name: %v", body["service"])
	}
}

func TestListUsersAuthorized(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/v1/users", "u-admin", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	users, ok := body["users"].([]any)
	if !ok || len(users) != 1 {
		t.Fatalf("expected one user, got %v", body["users"])
	}
}

func TestListUsersForbiddenWithoutRoles(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/v1/users", "u-limited", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "forbidden" {
		t.Fatalf("expected uniform forbidden message, got %v", body["error"])
	}
}

func TestListUsersForbiddenForUnknownUser(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/v1/users", "u-ghost", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "forbidden" {
		t.Fatalf("deny reason must not leak, got %v", body["error"])
	}
}

func TestMethodNotAllowedOnUsers(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPut, "/v1/users", "u-admin", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}
}

func TestCheckSelfReturnsDenyDecision(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check", "u-limited", map[string]any{
		"entity":    "invoices",
		"operation": "update",
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["allowed"] != false {
		t.Fatalf("expected deny, got %v", body["allowed"])
	}
	if body["reason"] != string(rbac.DenyNoRoles) {
		t.Fatalf("expected reason %s, got %v", rbac.DenyNoRoles, body["reason"])
	}
}

func TestCheckOtherUserRequiresPermissionRead(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check", "u-limited", map[string]any{
		"user_id":   "u-admin",
		"entity":    "invoices",
		"operation": "read",
	}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-user check, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check", "u-admin", map[string]any{
		"user_id":   "u-limited",
		"entity":    "invoices",
		"operation": "read",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["user_id"] != "u-limited" {
		t.Fatalf("expected decision about u-limited, got %v", body["user_id"])
	}
	if body["allowed"] != false {
		t.Fatalf("expected deny for roleless subject, got %v", body["allowed"])
	}
}

func TestCheckUnknownEntityDenied(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check", "u-admin", map[string]any{
		"entity":    "ghosts",
		"operation": "read",
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["allowed"] != false {
		t.Fatalf("expected deny, got %v", body["allowed"])
	}
	if body["reason"] != string(rbac.DenyUnknownEntity) {
		t.Fatalf("expected reason %s, got %v", rbac.DenyUnknownEntity, body["reason"])
	}
}

func TestCheckRejectsUnknownOperation(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check", "u-admin", map[string]any{
		"entity":    "invoices",
		"operation": "truncate",
	}))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckPayloadNormalizesAndProbes(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check/payload", "u-admin", map[string]any{
		"entity":    "invoices",
		"operation": "create",
		"payload":   map[string]any{"code": "abc", "amount": 12.5},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	decision, ok := body["decision"].(map[string]any)
	if !ok || decision["allowed"] != true {
		t.Fatalf("expected allow decision, got %v", body["decision"])
	}
	payload, ok := body["payload"].(map[string]any)
	if !ok || payload["code"] != "abc" || payload["amount"] != 12.5 {
		t.Fatalf("unexpected normalized payload: %v", body["payload"])
	}
	probes, ok := body["unique_probes"].([]any)
	if !ok || len(probes) != 1 || probes[0] != "code" {
		t.Fatalf("expected unique probe on code, got %v", body["unique_probes"])
	}
}

func TestCheckPayloadValidationFailure(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check/payload", "u-admin", map[string]any{
		"entity":    "invoices",
		"operation": "create",
		"payload":   map[string]any{"code": "0123456789ab"},
	}))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["entity"] != "invoices" {
		t.Fatalf("expected entity name in validation error, got %v", body["entity"])
	}
	fields, ok := body["fields"].([]any)
	if !ok || len(fields) == 0 {
		t.Fatalf("expected field errors, got %v", body["fields"])
	}
}

func TestCheckPayloadDeniedCallerGetsNoDetail(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/check/payload", "u-limited", map[string]any{
		"entity":    "invoices",
		"operation": "create",
		"payload":   map[string]any{"code": "0123456789ab"},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	decision, ok := body["decision"].(map[string]any)
	if !ok || decision["allowed"] != false {
		t.Fatalf("expected deny decision, got %v", body["decision"])
	}
	if _, present := body["payload"]; present {
		t.Fatalf("denied caller must not see payload detail: %v", body["payload"])
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	handler := newTestHandler(t)

	req := authedRequest(t, http.MethodPost, "/v1/check", "u-admin", map[string]any{
		"entity":    "invoices",
		"operation": "read",
		"surprise":  true,
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}
