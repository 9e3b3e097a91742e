package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reservation is a soft hold of stock at one warehouse for one order ref.
// It reduces availability while open; it never mutates the stock ledger.
type Reservation struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"not null;index:idx_reservation_key,unique" json:"business_id"`
	Platform      string            `gorm:"size:50;not null;index:idx_reservation_key,unique" json:"platform"`
	ShopId        string            `gorm:"size:100;not null;index:idx_reservation_key,unique" json:"shop_id"`
	Ref           string            `gorm:"size:100;not null;index:idx_reservation_key,unique" json:"ref"`
	WarehouseId   int               `gorm:"not null;index" json:"warehouse_id"`
	Status        ReservationStatus `gorm:"size:20;not null;default:open;index" json:"status"`
	ReleaseReason string            `gorm:"size:100" json:"release_reason"`
	TraceId       string            `gorm:"size:100;index" json:"trace_id"`
	ExpireAt      *time.Time        `gorm:"index" json:"expire_at"`
	ReleasedAt    *time.Time        `json:"released_at"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Lines []ReservationLine `gorm:"foreignKey:ReservationId" json:"lines,omitempty"`
}

func (r Reservation) GetBusinessId() string {
	return r.BusinessId
}

type ReservationLine struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	ReservationId int                   `gorm:"not null;index:idx_reservation_line,unique" json:"reservation_id"`
	RefLine       int                   `gorm:"not null;index:idx_reservation_line,unique" json:"ref_line"`
	ItemId        int                   `gorm:"not null;index" json:"item_id"`
	Qty           int                   `gorm:"not null" json:"qty"`
	ConsumedQty   int                   `gorm:"not null;default:0" json:"consumed_qty"`
	Status        ReservationLineStatus `gorm:"size:20;not null;default:open" json:"status"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetReservationByKey loads a reservation by its business key.
// Returns (nil, nil) when no row exists.
func GetReservationByKey(tx *gorm.DB, businessId string, channel Channel, ref string, forUpdate bool) (*Reservation, error) {
	dbCtx := tx.Where("business_id = ? AND platform = ? AND shop_id = ? AND ref = ?",
		businessId, channel.Platform, channel.ShopId, ref)
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var reservation Reservation
	if err := dbCtx.First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func GetReservationLines(tx *gorm.DB, reservationId int) ([]ReservationLine, error) {
	var lines []ReservationLine
	err := tx.Where("reservation_id = ?", reservationId).
		Order("ref_line ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// MarkReservationConsumed closes an open reservation as fully picked:
// every line's consumed_qty jumps to qty.
func MarkReservationConsumed(tx *gorm.DB, reservation *Reservation) error {
	if !reservation.Status.CanTransitionTo(ReservationStatusConsumed) {
		return errors.New("reservation is not open")
	}
	if err := tx.Model(&Reservation{}).
		Where("id = ?", reservation.ID).
		Update("status", ReservationStatusConsumed).Error; err != nil {
		return err
	}
	if err := tx.Model(&ReservationLine{}).
		Where("reservation_id = ? AND status = ?", reservation.ID, ReservationLineStatusOpen).
		Updates(map[string]interface{}{
			"consumed_qty": gorm.Expr("qty"),
			"status":       ReservationLineStatusConsumed,
		}).Error; err != nil {
		return err
	}
	reservation.Status = ReservationStatusConsumed
	return nil
}

// MarkReservationReleased closes an open reservation as canceled or expired.
// Open lines are canceled; already-consumed quantities stay recorded.
func MarkReservationReleased(tx *gorm.DB, reservation *Reservation, status ReservationStatus, reason string) error {
	if status != ReservationStatusCanceled && status != ReservationStatusExpired {
		return errors.New("release status must be canceled or expired")
	}
	if !reservation.Status.CanTransitionTo(status) {
		return errors.New("reservation is not open")
	}
	now := time.Now().UTC()
	if err := tx.Model(&Reservation{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]interface{}{
			"status":         status,
			"release_reason": reason,
			"released_at":    now,
		}).Error; err != nil {
		return err
	}
	if err := tx.Model(&ReservationLine{}).
		Where("reservation_id = ? AND status = ?", reservation.ID, ReservationLineStatusOpen).
		Update("status", ReservationLineStatusCanceled).Error; err != nil {
		return err
	}
	reservation.Status = status
	reservation.ReleaseReason = reason
	reservation.ReleasedAt = &now
	return nil
}

// FindExpiredReservations lists open reservations whose hold window has
// lapsed. Read-only; each hit is re-checked under FOR UPDATE before release.
func FindExpiredReservations(tx *gorm.DB, now time.Time, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var reservations []Reservation
	err := tx.Where("status = ? AND expire_at IS NOT NULL AND expire_at <= ?", ReservationStatusOpen, now).
		Order("expire_at ASC").
		Limit(limit).
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListReservationsByTrace returns all reservations carrying a trace id,
// lines preloaded, for the trace/debug surface.
func ListReservationsByTrace(ctx context.Context, traceId string) ([]*Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if traceId == "" {
		return nil, errors.New("trace id is required")
	}

	db := config.GetDB()
	var results []*Reservation
	err := db.WithContext(ctx).
		Preload("Lines").
		Where("business_id = ? AND trace_id = ?", businessId, traceId).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
