package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/uploads/", logger.Discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	key := NewKey("receipts", "Factura.PNG")
	if !strings.HasPrefix(key, "receipts/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}

	blob, err := s.Put(ctx, key, strings.NewReader("image-bytes"), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if blob.Size != int64(len("image-bytes")) || blob.URL != "/uploads/"+key {
		t.Fatalf("unexpected blob %+v", blob)
	}

	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir(), "/uploads", logger.Discard())
	for _, key := range []string{"../etc/passwd", "/abs", "a//b", `a\b`, ""} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
