package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// SoftReservationService persists soft holds against warehouse stock.
// Persist is idempotent on the reservation business key
// (business, platform, shop, ref): replaying the same request is a no-op,
// replaying a grown request checks only the added quantities, and anything
// else is rejected as a mismatch.
type SoftReservationService struct {
	Availability AvailabilityProvider
}

func NewSoftReservationService(availability AvailabilityProvider) *SoftReservationService {
	return &SoftReservationService{Availability: availability}
}

type PersistResult struct {
	ReservationId int  `json:"reservation_id"`
	Replayed      bool `json:"replayed"`
}

// Persist writes the reservation inside the caller's transaction.
// The availability check is a locking read, so the stock and open-reservation
// rows it scanned stay locked until the transaction commits: a concurrent
// reservation on another connection blocks on those row locks and then reads
// the committed state. The per-(business, warehouse) advisory lock in front
// of it serializes same-warehouse writers (it is released before commit, so
// it is ordering, not the correctness guard); the unique key plus
// duplicate-key probing covers same-ref races.
func (s *SoftReservationService) Persist(ctx context.Context, tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, ref string, lines []OrderLine, expireIn *time.Duration, traceId string) (*PersistResult, error) {
	if ref == "" {
		return nil, errors.New("ref is required")
	}
	if warehouseId <= 0 {
		return nil, errors.New("warehouse id is required")
	}

	persistLines := make([]OrderLine, 0, len(lines))
	for _, line := range lines {
		if line.Qty > 0 {
			persistLines = append(persistLines, line)
		}
	}
	if len(persistLines) == 0 {
		return nil, errors.New("reservation needs at least one positive quantity line")
	}

	if traceId == "" {
		traceId = ref
	}
	ttl := config.ReservationTTL()
	if expireIn != nil {
		ttl = *expireIn
	}
	var expireAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expireAt = &t
	}

	if err := AcquireReserveLock(tx, businessId, warehouseId); err != nil {
		return nil, err
	}
	defer ReleaseReserveLock(tx, businessId, warehouseId)

	existing, err := models.GetReservationByKey(tx, businessId, channel, ref, true)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replay(tx, businessId, channel, existing, warehouseId, persistLines, expireAt, traceId)
	}

	// fresh reservation: every item's full need must clear availability
	if err := s.checkAvailability(tx, businessId, channel, warehouseId, aggregateNeed(persistLines)); err != nil {
		return nil, err
	}

	reservation := models.Reservation{
		BusinessId:  businessId,
		Platform:    channel.Platform,
		ShopId:      channel.ShopId,
		Ref:         ref,
		WarehouseId: warehouseId,
		Status:      models.ReservationStatusOpen,
		TraceId:     traceId,
		ExpireAt:    expireAt,
	}
	if err := tx.Create(&reservation).Error; err != nil {
		if !utils.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// lost the insert race on another connection; the winner's row
		// is authoritative, treat this request as a replay against it
		winner, rerr := models.GetReservationByKey(tx, businessId, channel, ref, true)
		if rerr != nil {
			return nil, rerr
		}
		if winner == nil {
			return nil, err
		}
		return s.replay(tx, businessId, channel, winner, warehouseId, persistLines, expireAt, traceId)
	}

	reservationLines := make([]models.ReservationLine, 0, len(persistLines))
	for i, line := range persistLines {
		reservationLines = append(reservationLines, models.ReservationLine{
			ReservationId: reservation.ID,
			RefLine:       i + 1,
			ItemId:        line.ItemId,
			Qty:           line.Qty,
			Status:        models.ReservationLineStatusOpen,
		})
	}
	if err := tx.Create(&reservationLines).Error; err != nil {
		return nil, err
	}

	return &PersistResult{ReservationId: reservation.ID}, nil
}

func aggregateNeed(lines []OrderLine) map[int]int {
	need := map[int]int{}
	for _, line := range lines {
		need[line.ItemId] += line.Qty
	}
	return need
}

func (s *SoftReservationService) checkAvailability(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, need map[int]int) error {
	itemIds := make([]int, 0, len(need))
	for itemId := range need {
		itemIds = append(itemIds, itemId)
	}
	sort.Ints(itemIds)

	var short []InsufficientLine
	for _, itemId := range itemIds {
		if need[itemId] <= 0 {
			continue
		}
		available, err := s.Availability.AvailableForUpdate(tx, businessId, channel, warehouseId, itemId)
		if err != nil {
			return err
		}
		if need[itemId] > available {
			short = append(short, InsufficientLine{ItemId: itemId, Need: need[itemId], Available: available})
		}
	}
	if len(short) > 0 {
		return &InsufficientAvailabilityError{WarehouseId: warehouseId, Items: short}
	}
	return nil
}

// replay handles a Persist against an existing reservation row.
// Identical request: no-op, same id. Pure growth: only the per-item delta is
// checked and applied. Everything else: mismatch.
func (s *SoftReservationService) replay(tx *gorm.DB, businessId string, channel models.Channel, existing *models.Reservation, warehouseId int, persistLines []OrderLine, expireAt *time.Time, traceId string) (*PersistResult, error) {
	if existing.Status != models.ReservationStatusOpen {
		return nil, ErrReservationNotOpen
	}
	if existing.WarehouseId != warehouseId {
		return nil, &ReplayMismatchError{
			ReservationId: existing.ID,
			Detail:        fmt.Sprintf("warehouse changed from %d to %d", existing.WarehouseId, warehouseId),
		}
	}

	prevLines, err := models.GetReservationLines(tx, existing.ID)
	if err != nil {
		return nil, err
	}
	prevNeed := map[int]int{}
	for _, line := range prevLines {
		prevNeed[line.ItemId] += line.Qty
	}
	newNeed := aggregateNeed(persistLines)

	// items may only grow; dropped or shrunken items are a mismatch
	for itemId, prev := range prevNeed {
		if newNeed[itemId] < prev {
			return nil, &ReplayMismatchError{
				ReservationId: existing.ID,
				Detail:        fmt.Sprintf("item %d shrank from %d to %d", itemId, prev, newNeed[itemId]),
			}
		}
	}

	delta := map[int]int{}
	grew := false
	for itemId, need := range newNeed {
		incr := need - prevNeed[itemId]
		if incr > 0 {
			delta[itemId] = incr
			grew = true
		}
	}
	if !grew {
		// identical replay
		return &PersistResult{ReservationId: existing.ID, Replayed: true}, nil
	}

	// the previously reserved quantity is already subtracted from
	// availability, so only the increment needs headroom
	if err := s.checkAvailability(tx, businessId, channel, warehouseId, delta); err != nil {
		return nil, err
	}

	// rewrite the line set: qty updates in place by ref_line, extra input
	// lines append after the existing ones
	if len(persistLines) < len(prevLines) {
		return nil, &ReplayMismatchError{
			ReservationId: existing.ID,
			Detail:        fmt.Sprintf("line count shrank from %d to %d", len(prevLines), len(persistLines)),
		}
	}
	for i, line := range persistLines {
		if i < len(prevLines) {
			prev := prevLines[i]
			if prev.ItemId != line.ItemId {
				return nil, &ReplayMismatchError{
					ReservationId: existing.ID,
					Detail:        fmt.Sprintf("line %d item changed from %d to %d", prev.RefLine, prev.ItemId, line.ItemId),
				}
			}
			if prev.Qty != line.Qty {
				if err := tx.Model(&models.ReservationLine{}).
					Where("id = ?", prev.ID).
					Update("qty", line.Qty).Error; err != nil {
					return nil, err
				}
			}
			continue
		}
		added := models.ReservationLine{
			ReservationId: existing.ID,
			RefLine:       i + 1,
			ItemId:        line.ItemId,
			Qty:           line.Qty,
			Status:        models.ReservationLineStatusOpen,
		}
		if err := tx.Create(&added).Error; err != nil {
			return nil, err
		}
	}

	updates := map[string]interface{}{
		"trace_id": gorm.Expr("COALESCE(NULLIF(trace_id, ''), ?)", traceId),
	}
	if expireAt != nil {
		updates["expire_at"] = expireAt
	}
	if err := tx.Model(&models.Reservation{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	return &PersistResult{ReservationId: existing.ID, Replayed: true}, nil
}
