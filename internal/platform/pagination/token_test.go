package pagination

import (
	"errors"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2025-05-06T09:00:00Z", "ord-42"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 2 {
		t.Fatalf("expected 2 cursor values, got %d", len(cursor.StartAfter))
	}
	if got, ok := cursor.StartAfter[1].(string); !ok || got != "ord-42" {
		t.Fatalf("unexpected cursor value %v", cursor.StartAfter[1])
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestDecodeTokenEmpty(t *testing.T) {
	cursor, err := DecodeToken("  ")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 0 || len(cursor.StartAt) != 0 {
		t.Fatalf("expected empty cursor, got %+v", cursor)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	if _, err := DecodeToken("not-base64!!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
