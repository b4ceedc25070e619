package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

const offerIDPrefix = "off_"

var (
	// ErrPromotionInvalidInput signals the caller provided invalid data.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
	// ErrCouponNotFound indicates no coupon exists for the code.
	ErrCouponNotFound = errors.New("promotion: coupon not found")
	// ErrOfferNotFound indicates the offer could not be located.
	ErrOfferNotFound = errors.New("promotion: offer not found")
)

// PromotionServiceDeps bundles collaborators required to construct the promotion service.
type PromotionServiceDeps struct {
	Coupons     repositories.CouponRepository
	Offers      repositories.OfferRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	coupons repositories.CouponRepository
	offers  repositories.OfferRepository
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewPromotionService wires dependencies into a concrete PromotionService implementation.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("promotion service: coupon repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("promotion service: offer repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		coupons: deps.Coupons,
		offers:  deps.Offers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ValidateCoupon checks eligibility against an order value without touching
// the redemption counter. The result carries a human readable reason when the
// coupon cannot be applied.
func (s *promotionService) ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return CouponValidationResult{}, fmt.Errorf("%w: coupon code is required", ErrPromotionInvalidInput)
	}
	if cmd.OrderValue < 0 {
		return CouponValidationResult{}, fmt.Errorf("%w: order value must not be negative", ErrPromotionInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) {
			return CouponValidationResult{Valid: false, Reason: "unknown code"}, nil
		}
		return CouponValidationResult{}, err
	}

	now := s.clock()
	if cmd.Now != nil {
		now = cmd.Now.UTC()
	}

	if reason := couponDiscountReason(coupon, cmd.OrderValue, now); reason != "" {
		return CouponValidationResult{Valid: false, Reason: reason, Coupon: &coupon}, nil
	}

	return CouponValidationResult{
		Valid:    true,
		Coupon:   &coupon,
		Discount: couponDiscountFor(coupon, cmd.OrderValue),
	}, nil
}

func (s *promotionService) UpsertCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon := cmd.Coupon
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" {
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrPromotionInvalidInput)
	}
	if coupon.Type != domain.DiscountPercentage && coupon.Type != domain.DiscountFlat {
		return Coupon{}, fmt.Errorf("%w: unknown discount type %q", ErrPromotionInvalidInput, coupon.Type)
	}
	if coupon.Value <= 0 {
		return Coupon{}, fmt.Errorf("%w: discount value must be positive", ErrPromotionInvalidInput)
	}
	if coupon.Type == domain.DiscountPercentage && coupon.Value > 100 {
		return Coupon{}, fmt.Errorf("%w: percentage discount cannot exceed 100", ErrPromotionInvalidInput)
	}
	if coupon.MinOrderValue < 0 || coupon.MaxDiscount < 0 {
		return Coupon{}, fmt.Errorf("%w: thresholds must not be negative", ErrPromotionInvalidInput)
	}
	if coupon.UsageLimit != nil && *coupon.UsageLimit <= 0 {
		return Coupon{}, fmt.Errorf("%w: usage limit must be positive", ErrPromotionInvalidInput)
	}
	if !coupon.EndsAt.IsZero() && !coupon.StartsAt.IsZero() && coupon.EndsAt.Before(coupon.StartsAt) {
		return Coupon{}, fmt.Errorf("%w: coupon window ends before it starts", ErrPromotionInvalidInput)
	}

	now := s.clock()
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	coupon.UpdatedAt = now

	saved, err := s.coupons.Upsert(ctx, coupon)
	if err != nil {
		return Coupon{}, err
	}

	s.logger(ctx, "coupon_upserted", map[string]any{
		"code":  saved.Code,
		"actor": strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *promotionService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	return s.coupons.List(ctx, filter)
}

func (s *promotionService) UpsertOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error) {
	offer := cmd.Offer
	offer.Title = strings.TrimSpace(offer.Title)
	if offer.Title == "" {
		return Offer{}, fmt.Errorf("%w: offer title is required", ErrPromotionInvalidInput)
	}
	if offer.Type != domain.DiscountPercentage && offer.Type != domain.DiscountFlat {
		return Offer{}, fmt.Errorf("%w: unknown discount type %q", ErrPromotionInvalidInput, offer.Type)
	}
	if offer.Value <= 0 {
		return Offer{}, fmt.Errorf("%w: discount value must be positive", ErrPromotionInvalidInput)
	}
	if offer.Type == domain.DiscountPercentage && offer.Value > 100 {
		return Offer{}, fmt.Errorf("%w: percentage discount cannot exceed 100", ErrPromotionInvalidInput)
	}
	switch offer.Scope {
	case domain.OfferScopeAll:
	case domain.OfferScopeProducts:
		if len(offer.ProductIDs) == 0 {
			return Offer{}, fmt.Errorf("%w: product scoped offer needs product ids", ErrPromotionInvalidInput)
		}
	case domain.OfferScopeVariants:
		if len(offer.VariantIDs) == 0 {
			return Offer{}, fmt.Errorf("%w: variant scoped offer needs variant ids", ErrPromotionInvalidInput)
		}
	default:
		return Offer{}, fmt.Errorf("%w: unknown offer scope %q", ErrPromotionInvalidInput, offer.Scope)
	}
	if !offer.EndsAt.IsZero() && !offer.StartsAt.IsZero() && offer.EndsAt.Before(offer.StartsAt) {
		return Offer{}, fmt.Errorf("%w: offer window ends before it starts", ErrPromotionInvalidInput)
	}

	now := s.clock()
	if strings.TrimSpace(offer.ID) == "" {
		offer.ID = offerIDPrefix + s.newID()
		offer.CreatedAt = now
	} else if offer.CreatedAt.IsZero() {
		existing, err := s.offers.FindByID(ctx, offer.ID)
		switch {
		case err == nil:
			offer.CreatedAt = existing.CreatedAt
		case errors.Is(err, repositories.ErrOfferNotFound):
			offer.CreatedAt = now
		default:
			return Offer{}, err
		}
	}
	offer.UpdatedAt = now

	saved, err := s.offers.Upsert(ctx, offer)
	if err != nil {
		return Offer{}, err
	}

	s.logger(ctx, "offer_upserted", map[string]any{
		"offerId": saved.ID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *promotionService) DeleteOffer(ctx context.Context, offerID string) error {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return fmt.Errorf("%w: offer id is required", ErrPromotionInvalidInput)
	}
	if err := s.offers.Delete(ctx, offerID); err != nil {
		if errors.Is(err, repositories.ErrOfferNotFound) {
			return ErrOfferNotFound
		}
		return err
	}
	return nil
}

func (s *promotionService) ListActiveOffers(ctx context.Context) ([]Offer, error) {
	return s.offers.ListActive(ctx, s.clock())
}
