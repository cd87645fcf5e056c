package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireRoles_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":  []any{"Seller", "admin", "seller"},
				"email": "trader@example.com",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || ActorID(r.Context()) != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if len(identity.Roles) != 2 || !identity.HasRole(RoleSeller) {
			t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
		}
		if identity.Email != "trader@example.com" {
			t.Fatalf("unexpected email %s", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := serve(handler, "Bearer token-value")
	if rr.Code != http.StatusNoContent || !handlerCalled {
		t.Fatalf("expected handler to run, got status %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireRoles_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	handler := authn.RequireRoles()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute without token")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		rr := serve(handler, header)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
		if code := decodeErrorCode(t, rr); code != "unauthenticated" {
			t.Fatalf("header %q: unexpected error code %s", header, code)
		}
	}
}

func TestRequireRoles_ExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired})
	handler := authn.RequireRoles(RoleBuyer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	rr := serve(handler, "Bearer expired-token")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", code)
	}
}

func TestRequireRoles_InsufficientRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-1", Claims: map[string]any{"role": "buyer"}}}
	handler := NewAuthenticator(verifier).RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("buyer must not reach admin handler")
	}))

	rr := serve(handler, "Bearer buyer-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "insufficient_role" {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestRequireRoles_MissingRoleUsesFallback(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-456", Claims: map[string]any{}}}
	handler := NewAuthenticator(verifier).RequireRoles()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleBuyer {
			t.Fatalf("expected fallback role %q, got %v", RoleBuyer, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr := serve(handler, "Bearer missing-role-token"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireRoles_AdminEmailGrantsAdmin(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID:    "uid-789",
		Claims: map[string]any{"email": "Compliance@Matcha.example", "role": map[string]any{"seller": true, "buyer": false}},
	}}
	authn := NewAuthenticator(verifier, WithAdminEmails(" compliance@matcha.example "))
	handler := authn.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if identity.HasRole(RoleBuyer) || !identity.HasRole(RoleSeller) {
			t.Fatalf("unexpected roles %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr := serve(handler, "Bearer admin-token"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestOptional_PassesThroughAnonymousAndInvalid(t *testing.T) {
	verifier := &stubTokenVerifier{err: ErrTokenInvalid}
	var sawIdentity bool
	handler := NewAuthenticator(verifier).Optional()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{"", "Bearer broken"} {
		rr := serve(handler, header)
		if rr.Code != http.StatusNoContent || sawIdentity {
			t.Fatalf("header %q: expected anonymous pass-through, got %d identity=%v", header, rr.Code, sawIdentity)
		}
	}

	verifier.err = nil
	verifier.token = &firebaseauth.Token{UID: "uid-1"}
	if rr := serve(handler, "Bearer good"); rr.Code != http.StatusNoContent || !sawIdentity {
		t.Fatalf("expected identity for valid token")
	}
}
