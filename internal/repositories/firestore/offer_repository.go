package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vastra-shop/api/internal/domain"
	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/repositories"
)

const offersCollection = "offers"

// OfferRepository stores catalog-level promotional discounts.
type OfferRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[offerDocument]
}

func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[offerDocument](provider, offersCollection)
	return &OfferRepository{provider: provider, base: base}, nil
}

func (r *OfferRepository) Upsert(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if r == nil || r.base == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}
	offerID := strings.TrimSpace(offer.ID)
	if offerID == "" {
		return domain.Offer{}, errors.New("offer upsert: id is required")
	}
	doc := newOfferDocument(offer)
	if _, err := r.base.Set(ctx, offerID, doc); err != nil {
		return domain.Offer{}, err
	}
	return doc.toDomain(offerID), nil
}

func (r *OfferRepository) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	if r == nil || r.base == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.Offer{}, errors.New("offer find: id is required")
	}
	doc, err := r.base.Get(ctx, offerID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Offer{}, repositories.ErrOfferNotFound
		}
		return domain.Offer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListActive returns offers whose window covers now. The end-of-window bound
// is applied in the query; the start bound is filtered in memory because
// Firestore allows range operators on one field only.
func (r *OfferRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Offer, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("offer repository not initialised")
	}
	now = now.UTC()

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("endsAt", ">=", now).OrderBy("endsAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		offer := doc.Data.toDomain(doc.ID)
		if !offer.ActiveWithin(now) {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (r *OfferRepository) Delete(ctx context.Context, offerID string) error {
	if r == nil || r.base == nil {
		return errors.New("offer repository not initialised")
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return errors.New("offer delete: id is required")
	}
	ref, err := r.base.DocumentRef(ctx, offerID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("offer.delete", err)
	}
	return nil
}

// Helper structures ---------------------------------------------------------

type offerDocument struct {
	Title      string    `firestore:"title"`
	Type       string    `firestore:"type"`
	Value      int64     `firestore:"value"`
	Scope      string    `firestore:"scope"`
	ProductIDs []string  `firestore:"productIds,omitempty"`
	VariantIDs []string  `firestore:"variantIds,omitempty"`
	StartsAt   time.Time `firestore:"startsAt"`
	EndsAt     time.Time `firestore:"endsAt"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newOfferDocument(offer domain.Offer) offerDocument {
	return offerDocument{
		Title:      strings.TrimSpace(offer.Title),
		Type:       string(offer.Type),
		Value:      offer.Value,
		Scope:      string(offer.Scope),
		ProductIDs: offer.ProductIDs,
		VariantIDs: offer.VariantIDs,
		StartsAt:   offer.StartsAt.UTC(),
		EndsAt:     offer.EndsAt.UTC(),
		CreatedAt:  offer.CreatedAt.UTC(),
		UpdatedAt:  offer.UpdatedAt.UTC(),
	}
}

func (d offerDocument) toDomain(id string) domain.Offer {
	return domain.Offer{
		ID:         id,
		Title:      d.Title,
		Type:       domain.DiscountType(d.Type),
		Value:      d.Value,
		Scope:      domain.OfferScope(d.Scope),
		ProductIDs: d.ProductIDs,
		VariantIDs: d.VariantIDs,
		StartsAt:   d.StartsAt,
		EndsAt:     d.EndsAt,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
