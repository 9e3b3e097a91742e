package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"gorm.io/gorm"
)

// AvailabilityProvider answers "how many units of this item could still be
// promised from this warehouse". Implementations are pure reads and must run
// on the caller's transaction so Persist sees its own uncommitted rows.
type AvailabilityProvider interface {
	// Available clamps at zero.
	Available(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error)
	// AvailableRaw may be negative when open reservations exceed on-hand.
	AvailableRaw(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error)
	// AvailableForItems batches the raw computation for read-only scans.
	AvailableForItems(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemIds []int) (map[int]int, error)
	// AvailableForUpdate is AvailableRaw as a locking read. Reservation
	// writers must use it: the scanned stock and open-reservation rows stay
	// locked until the transaction commits, and a locking read returns the
	// latest committed rows rather than the transaction snapshot.
	AvailableForUpdate(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error)
}

// StockAvailabilityProvider computes availability from the stock ledger minus
// un-consumed quantities of open, not-yet-expired reservations.
type StockAvailabilityProvider struct{}

func NewStockAvailabilityProvider() *StockAvailabilityProvider {
	return &StockAvailabilityProvider{}
}

const availableRawSQL = `
SELECT
	COALESCE((
		SELECT SUM(se.qty)
		FROM stock_entries se
		WHERE se.business_id = @businessId
		  AND se.warehouse_id = @warehouseId
		  AND se.item_id = @itemId
	), 0)
	-
	COALESCE((
		SELECT SUM(rl.qty - rl.consumed_qty)
		FROM reservation_lines rl
		JOIN reservations r ON r.id = rl.reservation_id
		WHERE r.business_id = @businessId
		  AND r.platform = @platform
		  AND r.shop_id = @shopId
		  AND r.warehouse_id = @warehouseId
		  AND r.status = 'open'
		  AND (r.expire_at IS NULL OR r.expire_at > @now)
		  AND rl.item_id = @itemId
	), 0)
`

func (p *StockAvailabilityProvider) AvailableRaw(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	var available int
	err := tx.Raw(availableRawSQL, map[string]interface{}{
		"businessId":  businessId,
		"platform":    channel.Platform,
		"shopId":      channel.ShopId,
		"warehouseId": warehouseId,
		"itemId":      itemId,
		"now":         time.Now().UTC(),
	}).Scan(&available).Error
	if err != nil {
		return 0, err
	}
	return available, nil
}

// AvailableForUpdate recomputes raw availability with FOR UPDATE on both
// sides of the ledger. Two concurrent reservations for the same item block
// on the stock rows; the loser resumes after the winner commits and sees
// the winner's reservation, which is what closes the check-then-insert race.
func (p *StockAvailabilityProvider) AvailableForUpdate(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	var onHand int
	err := tx.Raw(`
SELECT COALESCE(SUM(qty), 0)
FROM stock_entries
WHERE business_id = ? AND warehouse_id = ? AND item_id = ?
FOR UPDATE`, businessId, warehouseId, itemId).Scan(&onHand).Error
	if err != nil {
		return 0, err
	}

	var reserved int
	err = tx.Raw(`
SELECT COALESCE(SUM(rl.qty - rl.consumed_qty), 0)
FROM reservation_lines rl
JOIN reservations r ON r.id = rl.reservation_id
WHERE r.business_id = ? AND r.platform = ? AND r.shop_id = ?
  AND r.warehouse_id = ? AND r.status = 'open'
  AND (r.expire_at IS NULL OR r.expire_at > ?)
  AND rl.item_id = ?
FOR UPDATE`, businessId, channel.Platform, channel.ShopId, warehouseId, time.Now().UTC(), itemId).Scan(&reserved).Error
	if err != nil {
		return 0, err
	}
	return onHand - reserved, nil
}

func (p *StockAvailabilityProvider) Available(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	available, err := p.AvailableRaw(tx, businessId, channel, warehouseId, itemId)
	if err != nil {
		return 0, err
	}
	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// AvailableForItems runs one grouped query per side of the ledger instead of
// N point lookups. Items with no stock rows come back as 0 minus any
// reserved quantity.
func (p *StockAvailabilityProvider) AvailableForItems(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemIds []int) (map[int]int, error) {
	result := make(map[int]int, len(itemIds))
	if len(itemIds) == 0 {
		return result, nil
	}
	for _, itemId := range itemIds {
		result[itemId] = 0
	}

	type itemSum struct {
		ItemId int
		Total  int
	}

	var onHand []itemSum
	if err := tx.Model(&models.StockEntry{}).
		Select("item_id, COALESCE(SUM(qty), 0) AS total").
		Where("business_id = ? AND warehouse_id = ? AND item_id IN ?", businessId, warehouseId, itemIds).
		Group("item_id").
		Scan(&onHand).Error; err != nil {
		return nil, err
	}
	for _, row := range onHand {
		result[row.ItemId] += row.Total
	}

	var reserved []itemSum
	if err := tx.Model(&models.ReservationLine{}).
		Select("reservation_lines.item_id, COALESCE(SUM(reservation_lines.qty - reservation_lines.consumed_qty), 0) AS total").
		Joins("JOIN reservations ON reservations.id = reservation_lines.reservation_id").
		Where("reservations.business_id = ? AND reservations.platform = ? AND reservations.shop_id = ?",
			businessId, channel.Platform, channel.ShopId).
		Where("reservations.warehouse_id = ? AND reservations.status = ?", warehouseId, models.ReservationStatusOpen).
		Where("(reservations.expire_at IS NULL OR reservations.expire_at > ?)", time.Now().UTC()).
		Where("reservation_lines.item_id IN ?", itemIds).
		Group("reservation_lines.item_id").
		Scan(&reserved).Error; err != nil {
		return nil, err
	}
	for _, row := range reserved {
		result[row.ItemId] -= row.Total
	}

	return result, nil
}
