package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// StockEntry is an append-only ledger row. On-hand for (warehouse, item) is
// the sum of qty over all its entries; rows are never updated or deleted.
// Upstream inventory systems own the writes; this service mostly reads.
type StockEntry struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	WarehouseId int       `gorm:"not null;index:idx_stock_wh_item" json:"warehouse_id"`
	ItemId      int       `gorm:"not null;index:idx_stock_wh_item" json:"item_id"`
	Qty         int       `gorm:"not null" json:"qty"`
	Reason      string    `gorm:"size:50;not null" json:"reason"`
	Ref         string    `gorm:"size:100" json:"ref"`
	TraceId     string    `gorm:"size:100;index" json:"trace_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (e StockEntry) GetBusinessId() string {
	return e.BusinessId
}

type NewStockEntry struct {
	WarehouseId int    `json:"warehouse_id" validate:"required"`
	ItemId      int    `json:"item_id" validate:"required"`
	Qty         int    `json:"qty" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	Ref         string `json:"ref"`
	TraceId     string `json:"trace_id"`
}

// AppendStockEntry records a stock movement. Used by the seeding tool and by
// receive/adjust flows of the owning inventory system.
func AppendStockEntry(ctx context.Context, input *NewStockEntry) (*StockEntry, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return nil, errors.New("warehouse not found")
	}
	if err := utils.ValidateResourceId[Item](ctx, businessId, input.ItemId); err != nil {
		return nil, errors.New("item not found")
	}

	entry := StockEntry{
		BusinessId:  businessId,
		WarehouseId: input.WarehouseId,
		ItemId:      input.ItemId,
		Qty:         input.Qty,
		Reason:      input.Reason,
		Ref:         input.Ref,
		TraceId:     input.TraceId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// OnHandQty sums the ledger for one (warehouse, item). Missing item means
// zero rows, which sums to 0.
func OnHandQty(tx *gorm.DB, businessId string, warehouseId int, itemId int) (int, error) {
	var onHand int
	err := tx.Model(&StockEntry{}).
		Select("COALESCE(SUM(qty), 0)").
		Where("business_id = ? AND warehouse_id = ? AND item_id = ?", businessId, warehouseId, itemId).
		Scan(&onHand).Error
	if err != nil {
		return 0, err
	}
	return onHand, nil
}
