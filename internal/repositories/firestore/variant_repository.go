package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vastra-shop/api/internal/domain"
	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/platform/pagination"
	"github.com/vastra-shop/api/internal/repositories"
)

const (
	variantsCollection      = "variants"
	stockReleasesCollection = "stockReleases"
)

// VariantRepository persists per-variant stock ledgers. Reserved counters move
// only inside transactions so concurrent checkouts can never oversell.
type VariantRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.BaseRepository[variantDocument]
	releases *pfirestore.BaseRepository[stockReleaseDocument]
}

func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	variants := pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection)
	releases := pfirestore.NewBaseRepository[stockReleaseDocument](provider, stockReleasesCollection)
	return &VariantRepository{provider: provider, variants: variants, releases: releases}, nil
}

// Reserve increments reserved stock for every line in one transaction. Any
// line short on availability aborts the whole request.
func (r *VariantRepository) Reserve(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.Variant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("variant repository not initialised")
	}
	if len(req.Lines) == 0 {
		return nil, errors.New("stock reserve: at least one line is required")
	}

	now := req.Now.UTC()
	var result map[string]domain.Variant
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type reserveEntry struct {
			ref      *firestore.DocumentRef
			doc      variantDocument
			quantity int
		}

		// Read phase. The Firestore client rejects any read issued after a
		// buffered write, so every variant loads before the first Set. Lines
		// for the same variant collapse into one entry.
		order := make([]string, 0, len(req.Lines))
		byVariant := make(map[string]*reserveEntry, len(req.Lines))
		for _, line := range req.Lines {
			variantID := strings.TrimSpace(line.VariantID)
			if variantID == "" {
				return repositories.NewStockError(repositories.StockErrorVariantNotFound, "stock reserve: variant id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("stock reserve: quantity for %s must be > 0", variantID), nil)
			}
			entry, ok := byVariant[variantID]
			if !ok {
				ref, err := r.variants.DocumentRef(ctx, variantID)
				if err != nil {
					return err
				}
				doc, err := getVariantTx(tx, ref, variantID)
				if err != nil {
					return err
				}
				entry = &reserveEntry{ref: ref, doc: doc}
				byVariant[variantID] = entry
				order = append(order, variantID)
			}
			entry.quantity += line.Quantity
		}

		// Write phase.
		updated := make(map[string]domain.Variant, len(byVariant))
		for _, variantID := range order {
			entry := byVariant[variantID]
			if entry.doc.TotalStock-entry.doc.ReservedStock < entry.quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", variantID), nil)
			}
			entry.doc.ReservedStock += entry.quantity
			entry.doc.UpdatedAt = now
			entry.doc.recalculate()
			if err := tx.Set(entry.ref, entry.doc); err != nil {
				return err
			}
			updated[variantID] = entry.doc.toDomain(variantID)
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, wrapStockError("stock.reserve", err)
	}
	return result, nil
}

// Release returns reserved units to availability. Each (order item, event)
// pair is recorded in the release ledger inside the same transaction, so
// replays of the same release become no-ops. A release exceeding the current
// reserved count is clamped rather than driving the counter negative.
func (r *VariantRepository) Release(ctx context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockReleaseResult{}, errors.New("variant repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockReleaseResult{}, errors.New("stock release: at least one line is required")
	}
	event := strings.TrimSpace(req.Event)
	if event == "" {
		return repositories.StockReleaseResult{}, errors.New("stock release: event is required")
	}

	now := req.Now.UTC()
	var result repositories.StockReleaseResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		released := make(map[string]bool, len(req.Lines))
		clamped := make(map[string]int)

		type variantState struct {
			ref *firestore.DocumentRef
			doc variantDocument
		}
		type pendingRelease struct {
			ref *firestore.DocumentRef
			doc stockReleaseDocument
		}

		// Read phase. Ledger lookups and variant loads all happen before the
		// first buffered write; reads after a write abort the transaction.
		// Items sharing a variant decrement one in-memory copy of its doc.
		variantOrder := make([]string, 0, len(req.Lines))
		byVariant := make(map[string]*variantState, len(req.Lines))
		var ledger []pendingRelease
		for _, line := range req.Lines {
			variantID := strings.TrimSpace(line.VariantID)
			itemID := strings.TrimSpace(line.OrderItemID)
			if variantID == "" || itemID == "" {
				return repositories.NewStockError(repositories.StockErrorInvalidRelease, "stock release: variant id and order item id are required", nil)
			}

			releaseRef, err := r.releases.DocumentRef(ctx, releaseLedgerID(itemID, event))
			if err != nil {
				return err
			}
			if _, err := tx.Get(releaseRef); err == nil {
				released[itemID] = false
				continue
			} else if status.Code(err) != codes.NotFound {
				return err
			}

			state, ok := byVariant[variantID]
			if !ok {
				ref, err := r.variants.DocumentRef(ctx, variantID)
				if err != nil {
					return err
				}
				doc, err := getVariantTx(tx, ref, variantID)
				if err != nil {
					return err
				}
				state = &variantState{ref: ref, doc: doc}
				byVariant[variantID] = state
				variantOrder = append(variantOrder, variantID)
			}

			quantity := line.Quantity
			if quantity > state.doc.ReservedStock {
				clamped[itemID] = quantity - state.doc.ReservedStock
				quantity = state.doc.ReservedStock
			}
			state.doc.ReservedStock -= quantity

			ledger = append(ledger, pendingRelease{
				ref: releaseRef,
				doc: stockReleaseDocument{
					OrderItemRef: itemID,
					VariantRef:   variantID,
					OrderRef:     strings.TrimSpace(req.OrderRef),
					Event:        event,
					Quantity:     quantity,
					Reason:       strings.TrimSpace(req.Reason),
					CreatedAt:    now,
				},
			})
			released[itemID] = true
		}

		// Write phase.
		variants := make(map[string]domain.Variant, len(byVariant))
		for _, variantID := range variantOrder {
			state := byVariant[variantID]
			state.doc.UpdatedAt = now
			state.doc.recalculate()
			if err := tx.Set(state.ref, state.doc); err != nil {
				return err
			}
			variants[variantID] = state.doc.toDomain(variantID)
		}
		for _, entry := range ledger {
			if err := tx.Create(entry.ref, entry.doc); err != nil {
				if status.Code(err) == codes.AlreadyExists {
					return repositories.NewStockError(repositories.StockErrorAlreadyReleased, fmt.Sprintf("release %s already recorded", entry.doc.OrderItemRef), err)
				}
				return err
			}
		}

		result = repositories.StockReleaseResult{
			Released: released,
			Clamped:  clamped,
			Variants: variants,
		}
		return nil
	})
	if err != nil {
		return repositories.StockReleaseResult{}, wrapStockError("stock.release", err)
	}
	return result, nil
}

// AdjustTotal sets the physical stock count to an absolute value. The new
// total must not drop below currently reserved units.
func (r *VariantRepository) AdjustTotal(ctx context.Context, req repositories.StockAdjustRequest) (domain.Variant, error) {
	if r == nil || r.provider == nil {
		return domain.Variant{}, errors.New("variant repository not initialised")
	}
	variantID := strings.TrimSpace(req.VariantID)
	if variantID == "" {
		return domain.Variant{}, repositories.NewStockError(repositories.StockErrorVariantNotFound, "stock adjust: variant id is required", nil)
	}
	if req.NewTotal < 0 {
		return domain.Variant{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: total must be >= 0", nil)
	}

	now := req.Now.UTC()
	var updated domain.Variant
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.variants.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		doc, err := getVariantTx(tx, ref, variantID)
		if err != nil {
			return err
		}
		if req.NewTotal < doc.ReservedStock {
			return repositories.NewStockError(repositories.StockErrorTotalBelowReserved, fmt.Sprintf("total for %s cannot drop below %d reserved units", variantID, doc.ReservedStock), nil)
		}
		doc.TotalStock = req.NewTotal
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(variantID)
		return nil
	})
	if err != nil {
		return domain.Variant{}, wrapStockError("stock.adjust", err)
	}
	return updated, nil
}

func (r *VariantRepository) FindByID(ctx context.Context, variantID string) (domain.Variant, error) {
	if r == nil || r.variants == nil {
		return domain.Variant{}, errors.New("variant repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.Variant{}, errors.New("variant find: id is required")
	}

	doc, err := r.variants.Get(ctx, variantID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Variant{}, repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found", variantID), err)
		}
		return domain.Variant{}, wrapStockError("variant.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *VariantRepository) FindMany(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	if r == nil || r.variants == nil {
		return nil, errors.New("variant repository not initialised")
	}
	found := make(map[string]domain.Variant, len(variantIDs))
	for _, id := range variantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := found[id]; ok {
			continue
		}
		variant, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		found[id] = variant
	}
	return found, nil
}

func (r *VariantRepository) Upsert(ctx context.Context, variant domain.Variant) (domain.Variant, error) {
	if r == nil || r.provider == nil {
		return domain.Variant{}, errors.New("variant repository not initialised")
	}
	variantID := strings.TrimSpace(variant.ID)
	if variantID == "" {
		return domain.Variant{}, errors.New("variant upsert: id is required")
	}

	var updated domain.Variant
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.variants.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		doc := newVariantDocument(variant)
		if snap, err := tx.Get(ref); err == nil {
			var existing variantDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode variant %s: %w", variantID, err)
			}
			// Stock counters stay under the ledger's control.
			doc.TotalStock = existing.TotalStock
			doc.ReservedStock = existing.ReservedStock
			doc.CreatedAt = existing.CreatedAt
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		doc.recalculate()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(variantID)
		return nil
	})
	if err != nil {
		return domain.Variant{}, wrapStockError("variant.upsert", err)
	}
	return updated, nil
}

func (r *VariantRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.Variant], error) {
	if r == nil || r.variants == nil {
		return domain.CursorPage[domain.Variant]{}, errors.New("variant repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	threshold := query.Threshold
	if threshold <= 0 {
		threshold = 5
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Variant]{}, wrapStockError("variant.lowStock", err)
	}

	firestoreQuery := client.Collection(variantsCollection).Query.
		Where("available", "<=", threshold).
		OrderBy("available", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(query.PageToken); token != "" {
		decoded, err := decodeVariantPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Variant]{}, wrapStockError("variant.lowStock", err)
		}
		firestoreQuery = firestoreQuery.StartAfter(decoded.Available, decoded.VariantID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var variants []domain.Variant
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Variant]{}, wrapStockError("variant.lowStock", err)
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Variant]{}, fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
		}
		variants = append(variants, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(variants) > pageSize
	if hasMore {
		variants = variants[:pageSize]
	}
	var nextToken string
	if hasMore && len(variants) > 0 {
		last := variants[len(variants)-1]
		encoded, err := encodeVariantPageToken(variantPageToken{VariantID: last.ID, Available: last.Available})
		if err != nil {
			return domain.CursorPage[domain.Variant]{}, wrapStockError("variant.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Variant]{
		Items:         variants,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type variantDocument struct {
	ProductRef      string    `firestore:"productRef"`
	ProductName     string    `firestore:"productName"`
	Size            string    `firestore:"size"`
	Color           string    `firestore:"color"`
	PriceAdjustment int64     `firestore:"priceAdjustment"`
	BasePrice       int64     `firestore:"basePrice"`
	TotalStock      int       `firestore:"totalStock"`
	ReservedStock   int       `firestore:"reservedStock"`
	Available       int       `firestore:"available"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (v *variantDocument) recalculate() {
	v.Available = v.TotalStock - v.ReservedStock
}

func (v variantDocument) toDomain(id string) domain.Variant {
	return domain.Variant{
		ID:              id,
		ProductRef:      strings.TrimSpace(v.ProductRef),
		ProductName:     strings.TrimSpace(v.ProductName),
		Size:            v.Size,
		Color:           v.Color,
		PriceAdjustment: v.PriceAdjustment,
		BasePrice:       v.BasePrice,
		TotalStock:      v.TotalStock,
		ReservedStock:   v.ReservedStock,
		Available:       v.Available,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

func newVariantDocument(variant domain.Variant) variantDocument {
	return variantDocument{
		ProductRef:      strings.TrimSpace(variant.ProductRef),
		ProductName:     strings.TrimSpace(variant.ProductName),
		Size:            strings.TrimSpace(variant.Size),
		Color:           strings.TrimSpace(variant.Color),
		PriceAdjustment: variant.PriceAdjustment,
		BasePrice:       variant.BasePrice,
		TotalStock:      variant.TotalStock,
		ReservedStock:   variant.ReservedStock,
		CreatedAt:       variant.CreatedAt.UTC(),
		UpdatedAt:       variant.UpdatedAt.UTC(),
	}
}

type stockReleaseDocument struct {
	OrderItemRef string    `firestore:"orderItemRef"`
	VariantRef   string    `firestore:"variantRef"`
	OrderRef     string    `firestore:"orderRef"`
	Event        string    `firestore:"event"`
	Quantity     int       `firestore:"qty"`
	Reason       string    `firestore:"reason,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func releaseLedgerID(orderItemID, event string) string {
	return fmt.Sprintf("%s_%s", orderItemID, event)
}

func getVariantTx(tx *firestore.Transaction, ref *firestore.DocumentRef, variantID string) (variantDocument, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return variantDocument{}, repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found", variantID), err)
		}
		return variantDocument{}, err
	}
	var doc variantDocument
	if err := snap.DataTo(&doc); err != nil {
		return variantDocument{}, fmt.Errorf("decode variant %s: %w", variantID, err)
	}
	return doc, nil
}

type variantPageToken struct {
	VariantID string
	Available int
}

func encodeVariantPageToken(token variantPageToken) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{token.Available, token.VariantID},
	})
}

func decodeVariantPageToken(encoded string) (*variantPageToken, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	available, availableOK := cursor.StartAfter[0].(float64)
	variantID, idOK := cursor.StartAfter[1].(string)
	if !availableOK || !idOK {
		return nil, fmt.Errorf("%w: unexpected cursor values", pagination.ErrInvalidPageToken)
	}
	return &variantPageToken{VariantID: variantID, Available: int(available)}, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
