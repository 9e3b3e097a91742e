package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// FulfillmentService runs the full order flow: resolve candidates, route the
// whole order to one warehouse, persist the soft reservation.
type FulfillmentService struct {
	Resolver     *RoutingCandidateResolver
	Router       *WarehouseRouter
	Reservations *SoftReservationService
}

func NewFulfillmentService() *FulfillmentService {
	availability := NewStockAvailabilityProvider()
	return &FulfillmentService{
		Resolver:     NewRoutingCandidateResolver(),
		Router:       NewWarehouseRouter(availability),
		Reservations: NewSoftReservationService(availability),
	}
}

type ReserveInput struct {
	Channel         models.Channel `json:"channel" validate:"required"`
	Province        string         `json:"province"`
	Ref             string         `json:"ref" validate:"required"`
	Lines           []OrderLine    `json:"lines" validate:"required"`
	ExpireInMinutes *int           `json:"expire_in_minutes"`
	TraceId         string         `json:"trace_id"`
}

type ReserveResult struct {
	ReservationId int               `json:"reservation_id"`
	WarehouseId   int               `json:"warehouse_id"`
	Reason        models.PickReason `json:"reason"`
	Replayed      bool              `json:"replayed"`
	// NoOp is set when the order had no positive-quantity line.
	NoOp bool `json:"no_op"`
}

func expireInFromInput(minutes *int) *time.Duration {
	if minutes == nil {
		return nil
	}
	d := time.Duration(*minutes) * time.Minute
	return &d
}

// Reserve is the order entry point: one DB transaction covering resolve,
// route and persist. A routed order emits WAREHOUSE_ROUTED; a blocked one
// emits FULFILLMENT_BLOCKED (after rollback, in its own transaction).
func (s *FulfillmentService) Reserve(ctx context.Context, input *ReserveInput) (*ReserveResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "fulfillment.Reserve")
	defer span.End()
	traceId := ResolveTraceId(ctx, input.TraceId, input.Ref)

	db := config.GetDB()
	var result *ReserveResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolution, err := s.Resolver.Resolve(tx, businessId, input.Channel, input.Province)
		if err != nil {
			return err
		}

		decision, err := s.Router.Route(tx, businessId, input.Channel, resolution, input.Lines)
		if err != nil {
			return err
		}
		if decision == nil {
			// nothing to reserve
			result = &ReserveResult{NoOp: true}
			return nil
		}

		persisted, err := s.Reservations.Persist(ctx, tx, businessId, input.Channel, decision.WarehouseId,
			input.Ref, input.Lines, expireInFromInput(input.ExpireInMinutes), traceId)
		if err != nil {
			return err
		}

		weight, err := estimatedWeightKg(tx, businessId, input.Lines)
		if err != nil {
			return err
		}
		emitAudit(ctx, tx, businessId, models.AuditEventWarehouseRouted, input.Channel, input.Ref, traceId, map[string]interface{}{
			"warehouse_id":        decision.WarehouseId,
			"province":            input.Province,
			"reason":              decision.Reason,
			"considered":          decision.Considered,
			"estimated_weight_kg": weight,
			"reservation_id":      persisted.ReservationId,
			"replayed":            persisted.Replayed,
		})

		result = &ReserveResult{
			ReservationId: persisted.ReservationId,
			WarehouseId:   decision.WarehouseId,
			Reason:        decision.Reason,
			Replayed:      persisted.Replayed,
		}
		return nil
	})
	if err != nil {
		s.auditBlocked(ctx, businessId, input.Channel, input.Ref, traceId, err)
		return nil, err
	}
	return result, nil
}

// auditBlocked records a blocking outcome outside the rolled-back
// transaction. Only structured fulfillment errors are audited; infrastructure
// errors just propagate.
func (s *FulfillmentService) auditBlocked(ctx context.Context, businessId string, channel models.Channel, ref string, traceId string, cause error) {
	meta := map[string]interface{}{"error": cause.Error()}

	var noConfig *NoWarehouseConfiguredError
	var noFulfill *NoWarehouseCanFulfillError
	var insufficient *InsufficientAvailabilityError
	switch {
	case errors.As(cause, &noConfig):
		meta["reason"] = noConfig.Reason
	case errors.As(cause, &noFulfill):
		meta["reason"] = "NO_WAREHOUSE_CAN_FULFILL"
		meta["considered"] = noFulfill.Considered
	case errors.As(cause, &insufficient):
		meta["reason"] = "INSUFFICIENT_AVAILABILITY"
		meta["warehouse_id"] = insufficient.WarehouseId
		meta["items"] = insufficient.Items
	default:
		return
	}

	db := config.GetDB()
	emitAudit(ctx, db.WithContext(ctx), businessId, models.AuditEventFulfillmentBlocked, channel, ref, traceId, meta)
}

// ScanCandidates is the read-only explain surface: it resolves candidates and
// scans each against the order without choosing a warehouse or writing rows.
func (s *FulfillmentService) ScanCandidates(ctx context.Context, channel models.Channel, province string, lines []OrderLine) (*CandidateResolution, []CandidateCheck, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var resolution *CandidateResolution
	var checks []CandidateCheck
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resolution, err = s.Resolver.Resolve(tx, businessId, channel, province)
		if err != nil {
			return err
		}
		checks, err = s.Router.Scan(tx, businessId, channel, resolution.CandidateWarehouseIds, lines)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return resolution, checks, nil
}

type AssignInput struct {
	Channel         models.Channel `json:"channel" validate:"required"`
	WarehouseId     int            `json:"warehouse_id" validate:"required"`
	Ref             string         `json:"ref" validate:"required"`
	Lines           []OrderLine    `json:"lines" validate:"required"`
	ExpireInMinutes *int           `json:"expire_in_minutes"`
	TraceId         string         `json:"trace_id"`
}

// AssignWarehouse is the operator override: re-run the whole-order check
// against a chosen warehouse and reserve there, skipping the resolver.
// Shortfalls reject with the same itemized detail as the automatic path.
func (s *FulfillmentService) AssignWarehouse(ctx context.Context, input *AssignInput) (*ReserveResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[models.Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return nil, errors.New("warehouse not found")
	}
	ctx, span := tracer.Start(ctx, "fulfillment.AssignWarehouse")
	defer span.End()
	traceId := ResolveTraceId(ctx, input.TraceId, input.Ref)

	db := config.GetDB()
	var result *ReserveResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		persisted, err := s.Reservations.Persist(ctx, tx, businessId, input.Channel, input.WarehouseId,
			input.Ref, input.Lines, expireInFromInput(input.ExpireInMinutes), traceId)
		if err != nil {
			return err
		}

		weight, err := estimatedWeightKg(tx, businessId, input.Lines)
		if err != nil {
			return err
		}
		emitAudit(ctx, tx, businessId, models.AuditEventWarehouseRouted, input.Channel, input.Ref, traceId, map[string]interface{}{
			"warehouse_id":        input.WarehouseId,
			"reason":              models.PickReasonManualAssignment,
			"estimated_weight_kg": weight,
			"reservation_id":      persisted.ReservationId,
			"replayed":            persisted.Replayed,
		})

		result = &ReserveResult{
			ReservationId: persisted.ReservationId,
			WarehouseId:   input.WarehouseId,
			Reason:        models.PickReasonManualAssignment,
			Replayed:      persisted.Replayed,
		}
		return nil
	})
	if err != nil {
		s.auditBlocked(ctx, businessId, input.Channel, input.Ref, traceId, err)
		return nil, err
	}
	return result, nil
}
