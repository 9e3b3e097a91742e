package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// RouteMode controls what happens when no province route matches a shipment.
type RouteMode string

const (
	// RouteModeStrictTop: province routes only; no match means the order is blocked.
	RouteModeStrictTop RouteMode = "STRICT_TOP"
	// RouteModeFallback: no province match falls back to the store's warehouse bindings.
	RouteModeFallback RouteMode = "FALLBACK"
)

func (m RouteMode) Valid() bool {
	return m == RouteModeStrictTop || m == RouteModeFallback
}

func (m RouteMode) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid route mode: %q", string(m))
	}
	return string(m), nil
}

func (m *RouteMode) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	v := RouteMode(s)
	if !v.Valid() {
		return fmt.Errorf("invalid route mode: %q", s)
	}
	*m = v
	return nil
}

type ReservationStatus string

const (
	ReservationStatusOpen     ReservationStatus = "open"
	ReservationStatusConsumed ReservationStatus = "consumed"
	ReservationStatusCanceled ReservationStatus = "canceled"
	ReservationStatusExpired  ReservationStatus = "expired"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusOpen, ReservationStatusConsumed, ReservationStatusCanceled, ReservationStatusExpired:
		return true
	}
	return false
}

// open is the only non-terminal status.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	if s != ReservationStatusOpen {
		return false
	}
	switch next {
	case ReservationStatusConsumed, ReservationStatusCanceled, ReservationStatusExpired:
		return true
	}
	return false
}

func (s ReservationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid reservation status: %q", string(s))
	}
	return string(s), nil
}

func (s *ReservationStatus) Scan(value interface{}) error {
	str, err := scanEnumString(value)
	if err != nil {
		return err
	}
	v := ReservationStatus(str)
	if !v.Valid() {
		return fmt.Errorf("invalid reservation status: %q", str)
	}
	*s = v
	return nil
}

type ReservationLineStatus string

const (
	ReservationLineStatusOpen     ReservationLineStatus = "open"
	ReservationLineStatusConsumed ReservationLineStatus = "consumed"
	ReservationLineStatusCanceled ReservationLineStatus = "canceled"
)

func (s ReservationLineStatus) Valid() bool {
	switch s {
	case ReservationLineStatusOpen, ReservationLineStatusConsumed, ReservationLineStatusCanceled:
		return true
	}
	return false
}

func (s ReservationLineStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid reservation line status: %q", string(s))
	}
	return string(s), nil
}

func (s *ReservationLineStatus) Scan(value interface{}) error {
	str, err := scanEnumString(value)
	if err != nil {
		return err
	}
	v := ReservationLineStatus(str)
	if !v.Valid() {
		return fmt.Errorf("invalid reservation line status: %q", str)
	}
	*s = v
	return nil
}

// RoutingReason explains how the candidate list was produced.
type RoutingReason string

const (
	RoutingReasonProvinceRouteMatch   RoutingReason = "PROVINCE_ROUTE_MATCH"
	RoutingReasonNoProvinceRouteMatch RoutingReason = "NO_PROVINCE_ROUTE_MATCH"
	RoutingReasonNoWarehouseBound     RoutingReason = "NO_WAREHOUSE_BOUND"
	RoutingReasonFallbackToBindings   RoutingReason = "FALLBACK_TO_BINDINGS"
)

// PickReason explains why a particular warehouse was chosen for an order.
type PickReason string

const (
	PickReasonTopWarehouseWithStock    PickReason = "top_warehouse_with_stock"
	PickReasonBackupWarehouseWithStock PickReason = "backup_warehouse_with_stock"
	PickReasonProvinceRouteWithStock   PickReason = "province_route_with_stock"
	PickReasonManualAssignment         PickReason = "manual_assignment"
)

// Outbox publish lifecycle (plain strings on the row; the dispatcher owns
// the transitions).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Audit flow/event names. These end up in audit_events rows and on Pub/Sub.
const (
	AuditFlowFulfillment = "FULFILLMENT"
	AuditFlowReservation = "RESERVATION"

	AuditEventWarehouseRouted    = "WAREHOUSE_ROUTED"
	AuditEventFulfillmentBlocked = "FULFILLMENT_BLOCKED"
	AuditEventReservationExpired = "RESERVATION_EXPIRED"
)

func scanEnumString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.New("enum column must scan from string")
	}
}
