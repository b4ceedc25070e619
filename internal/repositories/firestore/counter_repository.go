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

	pfirestore "github.com/vastra-shop/api/internal/platform/firestore"
	"github.com/vastra-shop/api/internal/repositories"
)

const countersCollection = "counters"

// counterDocument holds one named sequence. The "orders" counter feeds
// order-number allocation, so CurrentValue must only ever move forward.
type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out strictly increasing sequence numbers from
// Firestore. Every increment runs in a transaction so two checkouts can
// never be issued the same order number.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Next advances the named counter by step and returns the new value. A
// counter that does not exist yet is created on first use; a step of
// zero falls back to the counter's stored step, then to one.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	var issued int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			issued, err = r.seed(tx, ref, step)
			return err
		}
		if err != nil {
			return err
		}

		issued, err = r.advance(tx, ref, snapshot, id, step)
		return err
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return issued, nil
}

// seed creates a counter on its first increment. Using Create rather
// than Set makes two racing first increments collide in the transaction
// layer instead of both reading the same initial value.
func (r *CounterRepository) seed(tx *firestore.Transaction, ref *firestore.DocumentRef, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	doc := counterDocument{
		CurrentValue: step,
		Step:         step,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := tx.Create(ref, doc); err != nil {
		return 0, err
	}
	return doc.CurrentValue, nil
}

func (r *CounterRepository) advance(tx *firestore.Transaction, ref *firestore.DocumentRef, snapshot *firestore.DocumentSnapshot, id string, step int64) (int64, error) {
	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore counters decode %s: %w", id, err)
	}

	if step <= 0 {
		step = doc.Step
	}
	if step <= 0 {
		step = 1
	}

	next := doc.CurrentValue + step
	if doc.MaxValue != nil && next > *doc.MaxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, fmt.Sprintf("counter %s exceeded max value %d", id, *doc.MaxValue), nil)
	}

	doc.CurrentValue = next
	doc.Step = step
	doc.UpdatedAt = time.Now().UTC()
	if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
		return 0, err
	}
	return next, nil
}

// Configure adjusts a counter's step, ceiling, or current value without
// issuing a number. Only the fields set in cfg are touched.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	payload := map[string]any{"updatedAt": time.Now().UTC()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
