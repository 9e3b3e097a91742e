package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConsumeStatus string

const (
	ConsumeStatusConsumed ConsumeStatus = "CONSUMED"
	ConsumeStatusNoop     ConsumeStatus = "NOOP"
)

type ConsumeResult struct {
	Status        ConsumeStatus `json:"status"`
	ReservationId int           `json:"reservation_id,omitempty"`
}

// PickConsume settles a reservation when the order ships: the hold converts
// into a real stock decrement owned by the upstream inventory system.
// Idempotent: a missing or already-consumed reservation is a NOOP.
func PickConsume(ctx context.Context, channel models.Channel, ref string) (*ConsumeResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result *ConsumeResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref); err != nil {
			return err
		}
		defer ReleaseReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref)

		reservation, err := models.GetReservationByKey(tx, businessId, channel, ref, true)
		if err != nil {
			return err
		}
		if reservation == nil || reservation.Status == models.ReservationStatusConsumed {
			result = &ConsumeResult{Status: ConsumeStatusNoop}
			if reservation != nil {
				result.ReservationId = reservation.ID
			}
			return nil
		}
		if reservation.Status != models.ReservationStatusOpen {
			return ErrReservationNotOpen
		}

		if err := models.MarkReservationConsumed(tx, reservation); err != nil {
			return err
		}
		result = &ConsumeResult{Status: ConsumeStatusConsumed, ReservationId: reservation.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConsumeLine records a partial pick on one reservation line.
// consumed_qty can only move forward and never beyond the line's qty.
func ConsumeLine(ctx context.Context, channel models.Channel, ref string, refLine int, qty int) (*models.ReservationLine, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if qty <= 0 {
		return nil, errors.New("consume qty must be positive")
	}

	db := config.GetDB()
	var line models.ReservationLine
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref); err != nil {
			return err
		}
		defer ReleaseReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref)

		reservation, err := models.GetReservationByKey(tx, businessId, channel, ref, true)
		if err != nil {
			return err
		}
		if reservation == nil {
			return utils.ErrorRecordNotFound
		}
		if reservation.Status != models.ReservationStatusOpen {
			return ErrReservationNotOpen
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reservation_id = ? AND ref_line = ?", reservation.ID, refLine).
			First(&line).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if line.Status != models.ReservationLineStatusOpen {
			return fmt.Errorf("reservation line %d is not open", refLine)
		}
		if line.ConsumedQty+qty > line.Qty {
			return fmt.Errorf("consume qty exceeds line %d: reserved=%d consumed=%d add=%d",
				refLine, line.Qty, line.ConsumedQty, qty)
		}

		line.ConsumedQty += qty
		updates := map[string]interface{}{"consumed_qty": line.ConsumedQty}
		if line.ConsumedQty == line.Qty {
			line.Status = models.ReservationLineStatusConsumed
			updates["status"] = models.ReservationLineStatusConsumed
		}
		if err := tx.Model(&models.ReservationLine{}).
			Where("id = ?", line.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		// when every line is fully consumed the reservation closes too
		var openLines int64
		if err := tx.Model(&models.ReservationLine{}).
			Where("reservation_id = ? AND status = ?", reservation.ID, models.ReservationLineStatusOpen).
			Count(&openLines).Error; err != nil {
			return err
		}
		if openLines == 0 {
			return tx.Model(&models.Reservation{}).
				Where("id = ?", reservation.ID).
				Update("status", models.ReservationStatusConsumed).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}
