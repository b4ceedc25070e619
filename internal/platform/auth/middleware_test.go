package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

type stubUserGetter struct {
	record *firebaseauth.UserRecord
	err    error
	calls  int
}

func (s *stubUserGetter) GetUser(context.Context, string) (*firebaseauth.UserRecord, error) {
	s.calls++
	return s.record, s.err
}

func signedInToken(uid string, claims map[string]any) *firebaseauth.Token {
	return &firebaseauth.Token{UID: uid, Claims: claims}
}

func TestRequireFirebaseAuthAttachesIdentity(t *testing.T) {
	verifier := stubVerifier{token: signedInToken("usr_priya", map[string]any{
		"email": "priya@example.com",
		"role":  "staff",
	})}
	authn := NewAuthenticator(verifier)

	var got *Identity
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("expected identity in request context")
	}
	if got.UID != "usr_priya" {
		t.Fatalf("expected uid usr_priya, got %q", got.UID)
	}
	if got.Email != "priya@example.com" {
		t.Fatalf("expected email claim to carry over, got %q", got.Email)
	}
	if !got.HasRole(RoleStaff) {
		t.Fatalf("expected staff role, got %v", got.Roles)
	}
}

func TestRequireFirebaseAuthDefaultsToCustomerRole(t *testing.T) {
	verifier := stubVerifier{token: signedInToken("usr_arjun", nil)}
	authn := NewAuthenticator(verifier)

	var got *Identity
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected identity in request context")
	}
	if !got.HasRole(RoleCustomer) {
		t.Fatalf("expected fallback customer role, got %v", got.Roles)
	}
}

func TestRequireFirebaseAuthRejectsMissingBearer(t *testing.T) {
	authn := NewAuthenticator(stubVerifier{token: signedInToken("usr_x", nil)})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a bearer token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuthRejectsInsufficientRole(t *testing.T) {
	verifier := stubVerifier{token: signedInToken("usr_arjun", map[string]any{"role": "customer"})}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleStaff, RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for a customer on a staff route")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/returns/ret_1/approve", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuthMapsExpiredToken(t *testing.T) {
	authn := NewAuthenticator(stubVerifier{err: ErrTokenExpired})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "token_expired") {
		t.Fatalf("expected token_expired error code, got %s", body)
	}
}

func TestIdentityUserLoadsProfileOnce(t *testing.T) {
	users := &stubUserGetter{record: &firebaseauth.UserRecord{}}
	verifier := stubVerifier{token: signedInToken("usr_priya", map[string]any{"role": "admin"})}
	authn := NewAuthenticator(verifier, WithUserGetter(users))

	var got *Identity
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected identity in request context")
	}
	for i := 0; i < 3; i++ {
		if _, err := got.User(context.Background()); err != nil {
			t.Fatalf("unexpected profile error: %v", err)
		}
	}
	if users.calls != 1 {
		t.Fatalf("expected a single profile fetch, got %d", users.calls)
	}
}

func TestIdentityUserWithoutLoader(t *testing.T) {
	authn := NewAuthenticator(stubVerifier{token: signedInToken("usr_x", nil)})
	identity := authn.identityFor(signedInToken("usr_x", nil))

	if _, err := identity.User(context.Background()); !errors.Is(err, ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
}

func TestRoleClaimsShapes(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{"string", map[string]any{"role": "Staff"}, []string{"staff"}},
		{"list", map[string]any{"role": []any{"staff", "admin", "staff"}}, []string{"staff", "admin"}},
		{"map", map[string]any{"role": map[string]any{"admin": true, "staff": false}}, []string{"admin"}},
		{"absent", map[string]any{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roleClaims(tc.claims)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}
