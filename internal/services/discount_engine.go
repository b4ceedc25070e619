package services

import (
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
)

// discountFor computes the absolute discount a definition yields for one unit
// price. Percentage values are floored to the minor unit; flat values are
// clamped so the result never exceeds the price itself.
func discountFor(discountType domain.DiscountType, value int64, price int64) int64 {
	if price <= 0 || value <= 0 {
		return 0
	}
	var discount int64
	switch discountType {
	case domain.DiscountPercentage:
		if value > 100 {
			value = 100
		}
		discount = price * value / 100
	case domain.DiscountFlat:
		discount = value
	default:
		return 0
	}
	if discount > price {
		discount = price
	}
	return discount
}

// bestOfferFor picks the offer yielding the largest absolute discount for the
// given unit price. A flat ₹50 therefore beats 10% of ₹400. Ties go to the
// most recently created offer.
func bestOfferFor(offers []domain.Offer, productID, variantID string, unitPrice int64, now time.Time) (domain.Offer, int64, bool) {
	var (
		best         domain.Offer
		bestDiscount int64
		found        bool
	)
	for _, offer := range offers {
		if !offer.ActiveWithin(now) {
			continue
		}
		if !offer.AppliesTo(productID, variantID) {
			continue
		}
		discount := discountFor(offer.Type, offer.Value, unitPrice)
		if discount <= 0 {
			continue
		}
		if !found || discount > bestDiscount ||
			(discount == bestDiscount && offer.CreatedAt.After(best.CreatedAt)) {
			best = offer
			bestDiscount = discount
			found = true
		}
	}
	return best, bestDiscount, found
}

// couponDiscountReason explains why a coupon cannot apply; empty means eligible.
func couponDiscountReason(coupon domain.Coupon, orderValue int64, now time.Time) string {
	if !coupon.Active {
		return "coupon is not active"
	}
	if !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt) {
		return "coupon is not active yet"
	}
	if !coupon.EndsAt.IsZero() && now.After(coupon.EndsAt) {
		return "coupon has expired"
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return "coupon usage limit reached"
	}
	if orderValue < coupon.MinOrderValue {
		return "order value below coupon minimum"
	}
	return ""
}

// couponDiscountFor computes the coupon deduction against the discounted
// order value. MaxDiscount caps percentage coupons only; flat coupons already
// name their amount.
func couponDiscountFor(coupon domain.Coupon, orderValue int64) int64 {
	discount := discountFor(coupon.Type, coupon.Value, orderValue)
	if coupon.Type == domain.DiscountPercentage && coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
		discount = coupon.MaxDiscount
	}
	return discount
}
