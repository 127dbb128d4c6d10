package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docbase.org/internal/identity"
)

func setAuthSecret(t *testing.T) {
	t.Helper()
	t.Setenv("DOCBASE_AUTH_SECRET", "httpapi-test-secret")
	identity.ResetSecretForTests()
	t.Cleanup(identity.ResetSecretForTests)
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "padded", header: "  Bearer abc  ", want: "abc"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcjpwdw==", wantErr: true},
		{name: "scheme only", header: "Bearer ", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected token %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Fatalf("expected %s to be public", p)
		}
	}
	private := []string{"/v1/users", "/v1/check", "/v1/auth/token/extra", "/healthz/deep"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Fatalf("expected %s to require authentication", p)
		}
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	a := New(ReadyProbe{}, "test", nil, nil, nil, nil)
	handler := RequestID(a.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthRejectsGarbageToken(t *testing.T) {
	setAuthSecret(t)

	a := New(ReadyProbe{}, "test", nil, nil, nil, nil)
	handler := RequestID(a.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set(authHeader, "Bearer not.a.token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAcceptsValidToken(t *testing.T) {
	setAuthSecret(t)

	token, err := identity.GenerateToken("u-42", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	a := New(ReadyProbe{}, "test", nil, nil, nil, nil)
	var gotUser string
	var gotRoles []string
	handler := a.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = identity.UserIDFromContext(r.Context())
		gotRoles = identity.RolesFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set(authHeader, "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotUser != "u-42" {
		t.Fatalf("expected user u-42 in context, got %q", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "admin" {
		t.Fatalf("unexpected roles in context: %v", gotRoles)
	}
}

func TestWithAuthAllowsPublicPathWithoutToken(t *testing.T) {
	a := New(ReadyProbe{}, "test", nil, nil, nil, nil)
	called := false
	handler := a.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected public path to reach the handler")
	}
}
