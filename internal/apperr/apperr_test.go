package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{Validation("bad"), ErrValidation},
		{NotFound("missing"), ErrNotFound},
		{Forbidden("no"), ErrForbidden},
		{Unauthorized("who"), ErrUnauthorized},
		{Conflict("dup"), ErrConflict},
		{Internal("boom", errors.New("db down")), ErrInternal},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("layer: %w", c.err)
		if !errors.Is(wrapped, c.kind) {
			t.Errorf("expected %v to match %v", wrapped, c.kind)
		}
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("load user", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if Message(fmt.Errorf("x: %w", err)) != "load user" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}
