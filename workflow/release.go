package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReleaseReservation cancels an open reservation, returning its quantities
// to availability. Only open reservations can be released.
func ReleaseReservation(ctx context.Context, channel models.Channel, ref string, reason string) (*models.Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if reason == "" {
		reason = "manual_release"
	}

	db := config.GetDB()
	var reservation *models.Reservation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref); err != nil {
			return err
		}
		defer ReleaseReservationLock(tx, businessId, channel.Platform, channel.ShopId, ref)

		var err error
		reservation, err = models.GetReservationByKey(tx, businessId, channel, ref, true)
		if err != nil {
			return err
		}
		if reservation == nil {
			return utils.ErrorRecordNotFound
		}
		if reservation.Status != models.ReservationStatusOpen {
			return ErrReservationNotOpen
		}
		return models.MarkReservationReleased(tx, reservation, models.ReservationStatusCanceled, reason)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

type ExpireStatus string

const (
	ExpireStatusExpired ExpireStatus = "EXPIRED"
	ExpireStatusNoop    ExpireStatus = "NOOP"
)

// ReleaseExpiredById is the TTL path: re-check the row under FOR UPDATE and
// expire it only if it is still open and still past its window. Anything
// else is a NOOP, so the sweeper can race consumers safely.
func ReleaseExpiredById(ctx context.Context, db *gorm.DB, reservationId int) (ExpireStatus, error) {
	status := ExpireStatusNoop
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservation models.Reservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reservationId).
			First(&reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if reservation.Status != models.ReservationStatusOpen {
			return nil
		}
		if reservation.ExpireAt == nil || reservation.ExpireAt.After(time.Now().UTC()) {
			return nil
		}

		if err := models.MarkReservationReleased(tx, &reservation, models.ReservationStatusExpired, "ttl_expired"); err != nil {
			return err
		}
		status = ExpireStatusExpired

		channel := models.Channel{Platform: reservation.Platform, ShopId: reservation.ShopId}
		emitAudit(ctx, tx, reservation.BusinessId, models.AuditEventReservationExpired, channel, reservation.Ref, reservation.TraceId, map[string]interface{}{
			"reservation_id": reservation.ID,
			"warehouse_id":   reservation.WarehouseId,
			"expire_at":      reservation.ExpireAt,
		})
		return nil
	})
	return status, err
}

// FindExpired lists open reservations past their window. Read-only; callers
// release each id through ReleaseExpiredById.
func FindExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]models.Reservation, error) {
	return models.FindExpiredReservations(db.WithContext(ctx), now, limit)
}
