package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	roleClaim  = "role"
	emailClaim = "email"

	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired marks an expired Firebase ID token.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid marks a Firebase ID token that failed verification.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter fetches Firebase user records.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// Authenticator turns Firebase bearer tokens into request identities. Roles
// come from the "role" custom claim; tokens without one act as customers.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter

	fallbackRole string
	timeout      time.Duration
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithUserGetter lets identities lazily load their Firebase profile.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// WithFallbackRole replaces the role assumed for tokens without a role claim.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout bounds token verification and profile loads.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator builds the middleware factory around a verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		fallbackRole: RoleCustomer,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token. With
// roles given, the identity must carry at least one of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := a.boundedContext(r.Context())
			if cancel != nil {
				defer cancel()
			}
			decoded, err := a.verifier.VerifyIDToken(verifyCtx, token)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			identity := a.identityFor(decoded)
			if len(identity.Roles) == 0 {
				respondAuthError(w, http.StatusUnauthorized, "missing_role", "no roles associated with identity")
				return
			}
			if len(allowed) > 0 && !roleAllowed(identity.Roles, allowed) {
				respondAuthError(w, http.StatusUnauthorized, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) identityFor(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:   token.UID,
		Email: stringClaim(token.Claims, emailClaim),
		Roles: roleClaims(token.Claims),
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	if a.users != nil {
		identity.loadProfile = func(ctx context.Context) (*firebaseauth.UserRecord, error) {
			ctx, cancel := a.boundedContext(ctx)
			if cancel != nil {
				defer cancel()
			}
			return a.users.GetUser(ctx, identity.UID)
		}
	}
	return identity
}

func (a *Authenticator) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func roleAllowed(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

// roleClaims accepts the shapes the Firebase console and Admin SDK produce
// for the role claim: a single string, a list, or a role-to-bool map.
func roleClaims(claims map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	switch v := claims[roleClaim].(type) {
	case string:
		add(v)
	case []string:
		for _, role := range v {
			add(role)
		}
	case []any:
		for _, item := range v {
			if role, ok := item.(string); ok {
				add(role)
			}
		}
	case map[string]any:
		for role, granted := range v {
			if on, ok := granted.(bool); ok && on {
				add(role)
			}
		}
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	}
}
