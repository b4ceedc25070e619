package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vastra-shop/api/internal/domain"
	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/platform/pagination"
	"github.com/vastra-shop/api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository stores coupon definitions keyed by their uppercase code.
// usedCount only moves through Redeem, which re-validates the usage limit
// inside the transaction.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[couponDocument]
}

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection)
	return &CouponRepository{provider: provider, base: base}, nil
}

func (r *CouponRepository) Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code := normaliseCouponCode(coupon.Code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon upsert: code is required")
	}

	var updated domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		doc := newCouponDocument(coupon)
		if snap, err := tx.Get(ref); err == nil {
			var existing couponDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode coupon %s: %w", code, err)
			}
			// The counter survives edits to the definition.
			doc.UsedCount = existing.UsedCount
			doc.CreatedAt = existing.CreatedAt
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(code)
		return nil
	})
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupon.upsert", err)
	}
	return updated, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = normaliseCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon find: code is required")
	}

	doc, err := r.base.Get(ctx, code)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Coupon{}, repositories.ErrCouponNotFound
		}
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Redeem increments usedCount once, re-checking activity and the usage limit
// so two racing checkouts cannot both take the last redemption.
func (r *CouponRepository) Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = normaliseCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon redeem: code is required")
	}

	now = now.UTC()
	var redeemed domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrCouponNotFound
			}
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", code, err)
		}
		if !doc.Active {
			return repositories.ErrCouponInactive
		}
		if !doc.StartsAt.IsZero() && now.Before(doc.StartsAt) {
			return repositories.ErrCouponInactive
		}
		if !doc.EndsAt.IsZero() && now.After(doc.EndsAt) {
			return repositories.ErrCouponInactive
		}
		if doc.UsageLimit != nil && doc.UsedCount >= *doc.UsageLimit {
			return repositories.ErrCouponExhausted
		}
		doc.UsedCount++
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		redeemed = doc.toDomain(code)
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) ||
			errors.Is(err, repositories.ErrCouponInactive) ||
			errors.Is(err, repositories.ErrCouponExhausted) {
			return domain.Coupon{}, err
		}
		return domain.Coupon{}, pfirestore.WrapError("coupon.redeem", err)
	}
	return redeemed, nil
}

// Unredeem decrements usedCount after a checkout failed past its redemption.
// The counter floors at zero so stray compensations cannot free phantom uses.
func (r *CouponRepository) Unredeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = normaliseCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon unredeem: code is required")
	}

	now = now.UTC()
	var restored domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrCouponNotFound
			}
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", code, err)
		}
		if doc.UsedCount > 0 {
			doc.UsedCount--
		}
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		restored = doc.toDomain(code)
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) {
			return domain.Coupon{}, err
		}
		return domain.Coupon{}, pfirestore.WrapError("coupon.unredeem", err)
	}
	return restored, nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	fetchLimit := limit + 1

	startAfter := ""
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, err
		}
		if len(cursor.StartAfter) != 1 {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
		}
		code, ok := cursor.StartAfter[0].(string)
		if !ok {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("%w: unexpected cursor values", pagination.ErrInvalidPageToken)
		}
		startAfter = code
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != "" {
			q = q.StartAfter(startAfter)
		}
		return q.Limit(fetchLimit)
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	nextToken := ""
	if len(docs) == fetchLimit {
		docs = docs[:len(docs)-1]
		encoded, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[len(docs)-1].ID}})
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, err
		}
		nextToken = encoded
	}

	items := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Coupon]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type couponDocument struct {
	Type          string    `firestore:"type"`
	Value         int64     `firestore:"value"`
	MinOrderValue int64     `firestore:"minOrderValue"`
	MaxDiscount   int64     `firestore:"maxDiscount"`
	UsageLimit    *int      `firestore:"usageLimit,omitempty"`
	UsedCount     int       `firestore:"usedCount"`
	StartsAt      time.Time `firestore:"startsAt"`
	EndsAt        time.Time `firestore:"endsAt"`
	Active        bool      `firestore:"active"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newCouponDocument(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Type:          string(coupon.Type),
		Value:         coupon.Value,
		MinOrderValue: coupon.MinOrderValue,
		MaxDiscount:   coupon.MaxDiscount,
		UsageLimit:    coupon.UsageLimit,
		UsedCount:     coupon.UsedCount,
		StartsAt:      coupon.StartsAt.UTC(),
		EndsAt:        coupon.EndsAt.UTC(),
		Active:        coupon.Active,
		CreatedAt:     coupon.CreatedAt.UTC(),
		UpdatedAt:     coupon.UpdatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		Code:          code,
		Type:          domain.DiscountType(d.Type),
		Value:         d.Value,
		MinOrderValue: d.MinOrderValue,
		MaxDiscount:   d.MaxDiscount,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		StartsAt:      d.StartsAt,
		EndsAt:        d.EndsAt,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
