package entity

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := NotFound("meeting %s not found", "X")
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFound should match ErrNotFound")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("NotFound should not match ErrForbidden")
	}
	wrapped := fmt.Errorf("lookup: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error lost its kind")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf = %s", KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("unknown errors should be internal")
	}
	if err.Error() != "meeting X not found" {
		t.Errorf("message = %q", err.Error())
	}
	if errors.Is(NotFound("a"), NotFound("a")) {
		t.Error("only bare sentinels match by kind")
	}
}
