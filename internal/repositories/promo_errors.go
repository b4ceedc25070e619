package repositories

import "errors"

var (
	// ErrCouponNotFound indicates no coupon exists for the given code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponExhausted indicates the usage limit was reached before redemption.
	ErrCouponExhausted = errors.New("coupon: usage limit reached")
	// ErrCouponInactive indicates the coupon is disabled or outside its window.
	ErrCouponInactive = errors.New("coupon: inactive")
	// ErrOfferNotFound indicates the offer document does not exist.
	ErrOfferNotFound = errors.New("offer: not found")
	// ErrReturnNotFound indicates the return request document does not exist.
	ErrReturnNotFound = errors.New("return: not found")
)
