package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "idempotencyKeys"
	defaultMaxAttempts = 5
)

// FirestoreOption customises FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency records.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts sets the transaction retry budget.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore keeps idempotency records in Firestore so replays survive
// a restart and duplicate checkouts racing across replicas still collapse
// to one order.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore builds a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve claims the key for this fingerprint. The Firestore transaction is
// what serialises two copies of the same checkout racing each other; the
// loser observes the winner's pending record.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(recordDocID(key))

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				doc := newPendingDocument(key, fingerprint, now, ttl)
				if err := tx.Set(ref, doc); err != nil {
					return err
				}
				result = Reservation{State: ReservationStateNew, Record: doc.toRecord()}
				return nil
			}
			return err
		}

		var doc keyDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}

		// An expired record reserves as if it never existed.
		if !doc.ExpiresAt.IsZero() && !now.Before(doc.ExpiresAt) {
			doc = newPendingDocument(key, fingerprint, now, ttl)
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: doc.toRecord()}
			return nil
		}

		if doc.Status == string(StatusCompleted) {
			result = Reservation{State: ReservationStateCompleted, Record: doc.toRecord()}
			return nil
		}
		result = Reservation{State: ReservationStatePending, Record: doc.toRecord()}
		return nil
	}, firestore.MaxAttempts(s.attempts()))

	return result, err
}

// SaveResponse stores the completed response behind the key.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(recordDocID(key))

	headers := storableHeaders(resp.Headers)
	var bodyCopy []byte
	if len(resp.Body) > 0 {
		bodyCopy = append([]byte(nil), resp.Body...)
	}

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var doc keyDocument
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			doc = keyDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		} else {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = now
			}
		}

		doc.Status = string(StatusCompleted)
		doc.ResponseStatus = resp.Status
		doc.ResponseHeaders = headers
		doc.ResponseBody = bodyCopy
		doc.UpdatedAt = now
		doc.ExpiresAt = now.Add(ttl)

		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(s.attempts()))
}

// CleanupExpired deletes records past their expiry, up to limit. The boot
// sequence runs this on a timer so the collection does not grow unbounded.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}

	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Release drops the reservation so the client may retry after a failure.
func (s *FirestoreStore) Release(ctx context.Context, key, fingerprint string) error {
	_, err := s.client.Collection(s.collection).Doc(recordDocID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) attempts() int {
	if s.maxAttempts <= 0 {
		return 1
	}
	return s.maxAttempts
}

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func newPendingDocument(key, fingerprint string, now time.Time, ttl time.Duration) keyDocument {
	return keyDocument{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      string(StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (d keyDocument) toRecord() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
