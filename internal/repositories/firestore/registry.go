package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract for dependency injection.
type Registry struct {
	provider *pfirestore.Provider
	variants *VariantRepository
	orders   *OrderRepository
	returns  *ReturnRepository
	coupons  *CouponRepository
	offers   *OfferRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs every repository against the shared provider. The
// health repository is supplied by the caller so dependency checks can cover
// collaborators beyond Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	variants, err := NewVariantRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build variant repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build return repository: %w", err)
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build coupon repository: %w", err)
	}
	offers, err := NewOfferRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build offer repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	return &Registry{
		provider: provider,
		variants: variants,
		orders:   orders,
		returns:  returns,
		coupons:  coupons,
		offers:   offers,
		counters: counters,
		health:   health,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) Variants() repositories.VariantRepository { return r.variants }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Returns() repositories.ReturnRepository   { return r.returns }
func (r *Registry) Coupons() repositories.CouponRepository   { return r.coupons }
func (r *Registry) Offers() repositories.OfferRepository     { return r.offers }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx executes fn as a grouping boundary. Each repository write already
// runs inside its own Firestore transaction, so the callback runs directly.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
