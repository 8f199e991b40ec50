package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/openmorph/metamorph/internal/domain"
)

func TestInvalidTransitionError_Message(t *testing.T) {
	err := &domain.InvalidTransitionError{From: domain.StageElder, To: domain.StageElder + 1}

	msg := err.Error()
	if !strings.Contains(msg, "elder") {
		t.Errorf("message %q should name the source stage", msg)
	}
}

func TestDecodeError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &domain.DecodeError{What: "trigger payload", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("DecodeError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var decErr *domain.DecodeError
	if !errors.As(wrapped, &decErr) {
		t.Error("DecodeError should survive wrapping")
	}
}

func TestUnauthorizedError_Message(t *testing.T) {
	err := &domain.UnauthorizedError{Op: "mint"}
	if !strings.Contains(err.Error(), "mint") {
		t.Errorf("message %q should name the operation", err.Error())
	}
}
