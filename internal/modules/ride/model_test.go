// README: State machine table tests (no database).
package ride

import "testing"

// TestCanAdvance verifies the driver transition table.
func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusAccepted, StatusPickedUp, true},
		{StatusPickedUp, StatusInTransit, true},
		{StatusInTransit, StatusCompleted, true},
		// cancels from every assigned state
		{StatusAccepted, StatusCanceled, true},
		{StatusPickedUp, StatusCanceled, true},
		{StatusInTransit, StatusCanceled, true},
		// requested is not driver territory: accept is the claim, not an advance
		{StatusRequested, StatusAccepted, false},
		{StatusRequested, StatusCanceled, false},
		// invalid: skipping states
		{StatusAccepted, StatusInTransit, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusPickedUp, StatusCompleted, false},
		// invalid: backwards
		{StatusInTransit, StatusPickedUp, false},
		{StatusPickedUp, StatusAccepted, false},
		// invalid: terminal states have no outgoing transitions
		{StatusCompleted, StatusCanceled, false},
		{StatusCompleted, StatusInTransit, false},
		{StatusCanceled, StatusRequested, false},
	}
	for _, tc := range cases {
		got := CanAdvance(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range ActiveStatuses {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCanceled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
	}
	if StatusNone.Valid() {
		t.Error("none should not be a valid persisted status")
	}
	if Status("driving").Valid() {
		t.Error("unknown status should not be valid")
	}
}
