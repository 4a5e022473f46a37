package pricing

import (
	"errors"
	"testing"
)

func TestCanMutateRateOnlyInDraft(t *testing.T) {
	if !CanMutateRate(StatusDraft) {
		t.Fatalf("draft must be mutable")
	}
	for _, s := range []Status{StatusSent, StatusAccepted, StatusExpired, StatusCancelled} {
		if CanMutateRate(s) {
			t.Fatalf("status %s must be locked", s)
		}
	}
}

func TestGuardCheckRateMutation(t *testing.T) {
	if err := (Guard{Status: StatusDraft}).CheckRateMutation(); err != nil {
		t.Fatalf("draft guard: %v", err)
	}
	err := (Guard{Status: StatusSent}).CheckRateMutation()
	if !errors.Is(err, ErrEstimateLocked) {
		t.Fatalf("expected ErrEstimateLocked, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusSent},
		{StatusDraft, StatusCancelled},
		{StatusSent, StatusAccepted},
		{StatusSent, StatusExpired},
		{StatusSent, StatusCancelled},
	}
	for _, edge := range allowed {
		if !CanTransition(edge.from, edge.to) {
			t.Fatalf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusSent, StatusDraft},
		{StatusAccepted, StatusDraft},
		{StatusAccepted, StatusSent},
		{StatusCancelled, StatusSent},
		{StatusExpired, StatusSent},
		{StatusDraft, StatusAccepted},
	}
	for _, edge := range denied {
		if CanTransition(edge.from, edge.to) {
			t.Fatalf("expected %s -> %s to be denied", edge.from, edge.to)
		}
	}
}
