package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle state of a stored idempotency record.
type Status string

const (
	// DefaultTTL is how long completed records stay replayable. A shopper
	// retrying a checkout hours later still gets the original response.
	DefaultTTL = 24 * time.Hour
	// StatusPending marks a key whose first request is still in flight.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response is stored for replay.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of trying to reserve a key.
type ReservationState int

const (
	// ReservationStateNew lets the request proceed to the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means the stored response should replay.
	ReservationStateCompleted
	// ReservationStatePending means a concurrent request holds the key.
	ReservationStatePending
)

// Reservation is the result of reserving a key, with the stored record when
// one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted response for an idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the HTTP response captured for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency reservations and their responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a request with
// a different payload, which is a client bug rather than a retry.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordDocID hashes the scoped key so client-chosen keys cannot produce
// hostile document IDs.
func recordDocID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders copies response headers, dropping hop-by-hop and
// freshness headers that must not replay verbatim.
func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if hopByHopHeader(canonical) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		filtered[canonical] = copied
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func hopByHopHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "proxy-authenticate", "proxy-authorization", "te", "trailers", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}

func replayHeaders(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}
