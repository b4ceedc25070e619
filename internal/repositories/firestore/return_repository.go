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

const returnsCollection = "returns"

// ReturnRepository stores customer return requests and admin decisions.
type ReturnRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[returnDocument]
}

func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[returnDocument](provider, returnsCollection)
	return &ReturnRepository{provider: provider, base: base}, nil
}

func (r *ReturnRepository) Insert(ctx context.Context, request domain.ReturnRequest) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	returnID := strings.TrimSpace(request.ID)
	if returnID == "" {
		return errors.New("return insert: id is required")
	}
	ref, err := r.base.DocumentRef(ctx, returnID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newReturnDocument(request)); err != nil {
		return pfirestore.WrapError("return.insert", err)
	}
	return nil
}

func (r *ReturnRepository) Update(ctx context.Context, request domain.ReturnRequest) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	returnID := strings.TrimSpace(request.ID)
	if returnID == "" {
		return errors.New("return update: id is required")
	}
	if _, err := r.base.Set(ctx, returnID, newReturnDocument(request)); err != nil {
		return err
	}
	return nil
}

func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	if r == nil || r.base == nil {
		return domain.ReturnRequest{}, errors.New("return repository not initialised")
	}
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.ReturnRequest{}, errors.New("return find: id is required")
	}
	doc, err := r.base.Get(ctx, returnID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.ReturnRequest{}, repositories.ErrReturnNotFound
		}
		return domain.ReturnRequest{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindOpenByItem returns the pending or approved request for an order item.
// There is at most one open request per item at any time.
func (r *ReturnRepository) FindOpenByItem(ctx context.Context, orderItemID string) (domain.ReturnRequest, error) {
	if r == nil || r.base == nil {
		return domain.ReturnRequest{}, errors.New("return repository not initialised")
	}
	orderItemID = strings.TrimSpace(orderItemID)
	if orderItemID == "" {
		return domain.ReturnRequest{}, errors.New("return find open: order item id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderItemRef", "==", orderItemID).
			Where("status", "in", []string{string(domain.ReturnPending), string(domain.ReturnApproved)}).
			Limit(1)
	})
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if len(docs) == 0 {
		return domain.ReturnRequest{}, repositories.ErrReturnNotFound
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ReturnRepository) List(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.ReturnRequest]{}, errors.New("return repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	fetchLimit := limit + 1

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.ReturnRequest]{}, err
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normaliseStatusFilter(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
			q = q.Where("orderRef", "==", orderID)
		}
		if customer := strings.TrimSpace(filter.CustomerID); customer != "" {
			q = q.Where("customerRef", "==", customer)
		}
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(fetchLimit)
	})
	if err != nil {
		return domain.CursorPage[domain.ReturnRequest]{}, err
	}

	nextToken := ""
	if len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeOrderListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.ReturnRequest]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type returnDocument struct {
	OrderRef     string     `firestore:"orderRef"`
	OrderItemRef string     `firestore:"orderItemRef"`
	ProductRef   string     `firestore:"productRef"`
	CustomerRef  string     `firestore:"customerRef"`
	Reason       string     `firestore:"reason"`
	Notes        string     `firestore:"notes,omitempty"`
	Status       string     `firestore:"status"`
	AdminNote    string     `firestore:"adminNote,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
	DecidedAt    *time.Time `firestore:"decidedAt,omitempty"`
	CompletedAt  *time.Time `firestore:"completedAt,omitempty"`
}

func newReturnDocument(request domain.ReturnRequest) returnDocument {
	return returnDocument{
		OrderRef:     strings.TrimSpace(request.OrderID),
		OrderItemRef: strings.TrimSpace(request.OrderItemID),
		ProductRef:   strings.TrimSpace(request.ProductRef),
		CustomerRef:  strings.TrimSpace(request.CustomerID),
		Reason:       strings.TrimSpace(request.Reason),
		Notes:        strings.TrimSpace(request.Notes),
		Status:       string(request.Status),
		AdminNote:    strings.TrimSpace(request.AdminNote),
		CreatedAt:    request.CreatedAt.UTC(),
		UpdatedAt:    request.UpdatedAt.UTC(),
		DecidedAt:    request.DecidedAt,
		CompletedAt:  request.CompletedAt,
	}
}

func (d returnDocument) toDomain(id string) domain.ReturnRequest {
	return domain.ReturnRequest{
		ID:          id,
		OrderID:     d.OrderRef,
		OrderItemID: d.OrderItemRef,
		ProductRef:  d.ProductRef,
		CustomerID:  d.CustomerRef,
		Reason:      d.Reason,
		Notes:       d.Notes,
		Status:      domain.ReturnStatus(d.Status),
		AdminNote:   d.AdminNote,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DecidedAt:   d.DecidedAt,
		CompletedAt: d.CompletedAt,
	}
}
