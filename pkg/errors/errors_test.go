package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeDependency, cause, "call provider")
	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved in chain")
	}
}

func TestAsFindsTypedErrorThroughWrapping(t *testing.T) {
	inner := New(CodeSchedulingConflict, "billing date in the past")
	wrapped := fmt.Errorf("reschedule: %w", inner)
	typed := As(wrapped)
	if typed == nil {
		t.Fatalf("expected typed error")
	}
	if typed.Code() != CodeSchedulingConflict {
		t.Fatalf("expected scheduling conflict, got %s", typed.Code())
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeStateConflict, "already paused")
	if !IsCode(err, CodeStateConflict) {
		t.Fatalf("expected IsCode to match")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("expected IsCode mismatch")
	}
	if IsCode(errors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != MetadataFor(CodeInternal).HTTPStatus {
		t.Fatalf("expected internal metadata fallback")
	}
}

func TestSchedulingConflictMetadata(t *testing.T) {
	meta := MetadataFor(CodeSchedulingConflict)
	if meta.Retryable {
		t.Fatalf("scheduling conflicts are precondition failures, not retryable")
	}
	if !meta.DetailsAllowed {
		t.Fatalf("scheduling conflict details should be surfaced")
	}
}
