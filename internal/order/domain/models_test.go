package domain

import "testing"

func TestLifecycleTable(t *testing.T) {
	all := []Status{StatusProcessing, StatusPrinting, StatusPrinted, StatusCollected, StatusCompleted, StatusCancelled}
	allowed := map[Status]map[Status]bool{
		StatusProcessing: {StatusPrinting: true, StatusCompleted: true, StatusCancelled: true},
		StatusPrinting:   {StatusPrinted: true, StatusCancelled: true},
		StatusPrinted:    {StatusCollected: true, StatusProcessing: true, StatusCancelled: true},
		StatusCollected:  {StatusCompleted: true, StatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestCancelledReachableFromEveryActiveStatus(t *testing.T) {
	for _, from := range []Status{StatusProcessing, StatusPrinting, StatusPrinted, StatusCollected} {
		if !from.CanTransitionTo(StatusCancelled) {
			t.Fatalf("expected %s -> cancelled to be allowed", from)
		}
		if from.IsTerminal() {
			t.Fatalf("%s must not be terminal", from)
		}
	}
	if !StatusCompleted.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Fatalf("completed and cancelled must be terminal")
	}
}

func TestStatusValid(t *testing.T) {
	if Status("shipped").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
	if !StatusPrinted.Valid() {
		t.Fatalf("printed must be valid")
	}
}
