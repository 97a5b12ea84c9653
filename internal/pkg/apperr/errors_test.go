package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"stock", &InsufficientStockError{ProductID: "p1", Requested: 3, Available: 2}, CodeInsufficientStock},
		{"points wrapped", fmt.Errorf("approve: %w", &InsufficientPointsError{Needed: 110, Available: 100}), CodeInsufficientPoints},
		{"validation", Validation("quantity must be > 0"), CodeValidation},
		{"not found", NotFound("order", "o1"), CodeNotFound},
		{"resolved", AlreadyResolved("order item", "i1", "CONFIRMED"), CodeAlreadyResolved},
		{"conflict", Conflict(errors.New("lock wait timeout")), CodeConflict},
		{"sentinel", ErrRetryExhausted, CodeRetryExhausted},
		{"unknown", errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("confirm: %w", &InsufficientStockError{ProductID: "p1", Requested: 3, Available: 2})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("expected errors.Is to match ErrInsufficientStock")
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatal("expected errors.As to extract InsufficientStockError")
	}
	if stockErr.Shortfall() != 1 {
		t.Errorf("shortfall = %d, want 1", stockErr.Shortfall())
	}

	pts := &InsufficientPointsError{Needed: 50, Available: 20}
	if pts.Shortfall() != 30 {
		t.Errorf("points shortfall = %d, want 30", pts.Shortfall())
	}
	if errors.Is(pts, ErrInsufficientStock) {
		t.Error("points error must not match stock sentinel")
	}
}

func TestForbiddenSharesUnauthorizedCode(t *testing.T) {
	err := Forbidden("optician %s cannot act for %s", "a", "b")
	if CodeOf(err) != CodeUnauthorized {
		t.Errorf("code = %s", CodeOf(err))
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("forbidden must be distinguishable from unauthorized")
	}
}
