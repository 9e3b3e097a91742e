package models

import "testing"

func TestReservationStatusTransitions(t *testing.T) {
	cases := []struct {
		from ReservationStatus
		to   ReservationStatus
		want bool
	}{
		{ReservationStatusOpen, ReservationStatusConsumed, true},
		{ReservationStatusOpen, ReservationStatusCanceled, true},
		{ReservationStatusOpen, ReservationStatusExpired, true},
		{ReservationStatusOpen, ReservationStatusOpen, false},
		// terminal states never move
		{ReservationStatusConsumed, ReservationStatusOpen, false},
		{ReservationStatusConsumed, ReservationStatusCanceled, false},
		{ReservationStatusCanceled, ReservationStatusExpired, false},
		{ReservationStatusExpired, ReservationStatusOpen, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRouteModeValid(t *testing.T) {
	if !RouteModeStrictTop.Valid() || !RouteModeFallback.Valid() {
		t.Fatalf("expected both route modes valid")
	}
	if RouteMode("UNION").Valid() {
		t.Fatalf("unknown route mode must be invalid")
	}
	if RouteMode("").Valid() {
		t.Fatalf("empty route mode must be invalid")
	}
}

func TestReservationStatusValid(t *testing.T) {
	for _, s := range []ReservationStatus{
		ReservationStatusOpen, ReservationStatusConsumed, ReservationStatusCanceled, ReservationStatusExpired,
	} {
		if !s.Valid() {
			t.Errorf("expected %s valid", s)
		}
	}
	if ReservationStatus("released").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
