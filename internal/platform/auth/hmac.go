package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// Logger is the printf-style sink rejected signature checks report to.
type Logger interface {
	Printf(format string, args ...any)
}

// SecretProvider resolves the shared secret registered under a name.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// NonceStore remembers signature nonces until they expire. UseNonce returns
// false when the nonce was already consumed within its window.
type NonceStore interface {
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore keeps consumed nonces in process memory. It suits a
// single replica; multi-replica deployments need a shared store.
type InMemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewInMemoryNonceStore builds an empty nonce store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// UseNonce consumes a nonce for the given scope, pruning expired entries as
// it goes.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if nonce == "" {
		return false, nil
	}

	key := scope + "\x00" + nonce
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}

	if exp, used := s.seen[key]; used && now.Before(exp) {
		return false, nil
	}
	s.seen[key] = expiry
	return true, nil
}

// HMACValidator guards webhook and internal routes with HMAC-SHA256 request
// signatures. The signed payload is the request method, path, timestamp,
// nonce, and body hash joined by newlines.
type HMACValidator struct {
	secrets SecretProvider
	nonces  NonceStore

	logger Logger
	now    func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string

	clockSkew time.Duration
	nonceTTL  time.Duration
}

// HMACOption customises an HMACValidator.
type HMACOption func(*HMACValidator)

// WithHMACLogger directs rejection logs to the given sink.
func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock replaces the clock used for skew and nonce expiry checks.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders overrides the signature, timestamp, and nonce header names.
// Empty values keep the current name.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature = strings.TrimSpace(signature); signature != "" {
			v.signatureHeader = signature
		}
		if timestamp = strings.TrimSpace(timestamp); timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce = strings.TrimSpace(nonce); nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACClockSkew bounds how far a signature timestamp may drift from the
// server clock.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACNonceTTL sets how long a consumed nonce blocks replays.
func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// NewHMACValidator builds a validator over a secret provider and nonce store.
func NewHMACValidator(secrets SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		secrets:         secrets,
		nonces:          nonces,
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireHMAC guards routes with the secret registered under a fixed name.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	return v.RequireHMACResolver(func(*http.Request) (string, bool) {
		return secretName, secretName != ""
	})
}

// RequireHMACResolver guards routes with a secret name derived per request,
// letting each payment provider webhook sign with its own secret.
func (v *HMACValidator) RequireHMACResolver(resolve func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.secrets == nil {
				respondAuthError(w, http.StatusUnauthorized, "signature_unconfigured", "request signing is not configured")
				return
			}
			secretName, ok := resolve(r)
			if !ok || strings.TrimSpace(secretName) == "" {
				v.reject(r, "unknown signing key")
				respondAuthError(w, http.StatusUnauthorized, "unknown_signing_key", "no signing key registered for this route")
				return
			}
			if fail := v.verify(r, strings.TrimSpace(secretName)); fail != nil {
				v.reject(r, fail.detail)
				respondAuthError(w, http.StatusUnauthorized, fail.code, fail.message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type signatureFailure struct {
	code    string
	message string
	detail  string
}

func (v *HMACValidator) verify(r *http.Request, secretName string) *signatureFailure {
	signature := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	timestamp := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	if signature == "" || timestamp == "" || nonce == "" {
		return &signatureFailure{
			code:    "signature_missing",
			message: "signature, timestamp, and nonce headers are required",
			detail:  "missing signature headers",
		}
	}

	signedAt, err := parseSignatureTimestamp(timestamp)
	if err != nil {
		return &signatureFailure{
			code:    "signature_timestamp_invalid",
			message: "signature timestamp is not a unix or RFC 3339 time",
			detail:  fmt.Sprintf("bad timestamp %q", timestamp),
		}
	}
	now := v.now()
	if drift := now.Sub(signedAt); drift > v.clockSkew || drift < -v.clockSkew {
		return &signatureFailure{
			code:    "signature_expired",
			message: "signature timestamp outside the accepted window",
			detail:  fmt.Sprintf("timestamp drift %s exceeds %s", drift, v.clockSkew),
		}
	}

	secret, err := v.secrets.GetSecret(r.Context(), secretName)
	if err != nil || secret == "" {
		return &signatureFailure{
			code:    "unknown_signing_key",
			message: "no signing key registered for this route",
			detail:  fmt.Sprintf("secret %q unavailable", secretName),
		}
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return &signatureFailure{
			code:    "body_unreadable",
			message: "request body could not be read",
			detail:  "body read failed",
		}
	}

	expected := computeSignature(secret, canonicalRequestString(r, timestamp, nonce, body))
	provided, err := decodeSignature(signature)
	if err != nil || !hmac.Equal(expected, provided) {
		return &signatureFailure{
			code:    "signature_mismatch",
			message: "request signature does not match",
			detail:  "signature mismatch",
		}
	}

	if v.nonces != nil {
		fresh, err := v.nonces.UseNonce(r.Context(), secretName, nonce, signedAt.Add(v.nonceTTL))
		if err != nil {
			return &signatureFailure{
				code:    "nonce_store_unavailable",
				message: "replay protection is unavailable",
				detail:  fmt.Sprintf("nonce store error: %v", err),
			}
		}
		if !fresh {
			return &signatureFailure{
				code:    "signature_replayed",
				message: "signature nonce was already used",
				detail:  "replayed nonce",
			}
		}
	}
	return nil
}

func (v *HMACValidator) reject(r *http.Request, detail string) {
	if v.logger == nil {
		return
	}
	v.logger.Printf("hmac rejected %s %s: %s", r.Method, r.URL.Path, detail)
}

// canonicalRequestString is the payload both sides sign: method, path,
// timestamp, nonce, and the hex SHA-256 of the body, newline separated.
func canonicalRequestString(r *http.Request, timestamp, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return strings.Join([]string{
		r.Method,
		r.URL.Path,
		timestamp,
		nonce,
		hex.EncodeToString(bodyHash[:]),
	}, "\n")
}

func computeSignature(secret, canonical string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// decodeSignature accepts base64 (standard or URL alphabet) and hex
// encodings, which covers the formats payment providers emit.
func decodeSignature(signature string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(signature); err == nil {
		return decoded, nil
	}
	return hex.DecodeString(signature)
}

// parseSignatureTimestamp accepts unix seconds or RFC 3339.
func parseSignatureTimestamp(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0), nil
	}
	return time.Parse(time.RFC3339, value)
}

// readAndRestoreBody drains the body for hashing and puts an equivalent
// reader back so the handler still sees it.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if closeErr := r.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
