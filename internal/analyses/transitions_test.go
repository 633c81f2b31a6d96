package analyses

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	legal := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCompleted}:    true,
		{StatusPending, StatusFailed}:       true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCheckTransitionWrapsSentinel(t *testing.T) {
	err := checkTransition(StatusCompleted, StatusFailed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err.Error() != "invalid status transition: COMPLETED -> FAILED" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
