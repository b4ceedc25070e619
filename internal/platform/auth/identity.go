package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised by the storefront. Customers sign in as RoleCustomer;
// staff and admin gate the back-office surface.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// ErrProfileUnavailable indicates the identity has no profile loader wired.
var ErrProfileUnavailable = errors.New("auth: profile loader not configured")

// Identity is the verified principal a request acts as. UID doubles as the
// customer id on storefront routes.
type Identity struct {
	UID   string
	Email string
	Roles []string

	loadProfile func(ctx context.Context) (*firebaseauth.UserRecord, error)
	profileOnce sync.Once
	profile     *firebaseauth.UserRecord
	profileErr  error
}

// HasRole reports whether the identity carries the role, case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.TrimSpace(role)
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// User loads the Firebase profile behind this identity, once.
func (i *Identity) User(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.loadProfile == nil {
		return nil, ErrProfileUnavailable
	}
	i.profileOnce.Do(func() {
		i.profile, i.profileErr = i.loadProfile(ctx)
	})
	return i.profile, i.profileErr
}

type identityContextKey struct{}

// WithIdentity stores the identity for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity placed by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
