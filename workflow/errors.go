package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReservationNotOpen rejects transitions on a reservation that is
	// already consumed, canceled or expired.
	ErrReservationNotOpen = errors.New("reservation is not open")
)

// InsufficientLine is the per-item shortfall detail carried by blocking errors.
type InsufficientLine struct {
	ItemId    int `json:"item_id"`
	Need      int `json:"need"`
	Available int `json:"available"`
}

func (l InsufficientLine) String() string {
	return fmt.Sprintf("insufficient available for item=%d: need +%d, available=%d", l.ItemId, l.Need, l.Available)
}

// CandidateCheck is one warehouse's result from a whole-order scan.
type CandidateCheck struct {
	WarehouseId  int                `json:"warehouse_id"`
	OK           bool               `json:"ok"`
	Insufficient []InsufficientLine `json:"insufficient,omitempty"`
}

// NoWarehouseConfiguredError: the resolver produced zero candidates, so
// availability was never consulted.
type NoWarehouseConfiguredError struct {
	Reason string `json:"reason"` // NO_PROVINCE_ROUTE_MATCH or NO_WAREHOUSE_BOUND
}

func (e *NoWarehouseConfiguredError) Error() string {
	return "no warehouse configured for order: " + e.Reason
}

// NoWarehouseCanFulfillError: every candidate was scanned and none could
// cover the whole order. Considered keeps each candidate's shortage detail.
type NoWarehouseCanFulfillError struct {
	Considered []CandidateCheck `json:"considered"`
}

func (e *NoWarehouseCanFulfillError) Error() string {
	parts := make([]string, 0, len(e.Considered))
	for _, c := range e.Considered {
		parts = append(parts, fmt.Sprintf("warehouse=%d short=%d", c.WarehouseId, len(c.Insufficient)))
	}
	return "no warehouse can fulfill order: " + strings.Join(parts, "; ")
}

// InsufficientAvailabilityError: the reservation check at the chosen
// warehouse failed for one or more items. All-or-nothing; no rows written.
type InsufficientAvailabilityError struct {
	WarehouseId int                `json:"warehouse_id"`
	Items       []InsufficientLine `json:"items"`
}

func (e *InsufficientAvailabilityError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, l := range e.Items {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, "; ")
}

// ReplayMismatchError: a reservation already exists for the business key but
// the replayed request disagrees with it (different warehouse, or lines that
// shrank or changed shape). Callers must release and re-reserve.
type ReplayMismatchError struct {
	ReservationId int    `json:"reservation_id"`
	Detail        string `json:"detail"`
}

func (e *ReplayMismatchError) Error() string {
	return fmt.Sprintf("reservation replay mismatch for id=%d: %s", e.ReservationId, e.Detail)
}
