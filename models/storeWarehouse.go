package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// StoreWarehouse binds a warehouse to a store for fallback routing.
// At most one binding per store carries is_top.
type StoreWarehouse struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	StoreId     int       `gorm:"not null;index:idx_store_warehouse,unique" json:"store_id"`
	WarehouseId int       `gorm:"not null;index:idx_store_warehouse,unique" json:"warehouse_id"`
	IsTop       *bool     `gorm:"not null;default:false" json:"is_top"`
	Priority    int       `gorm:"not null;default:100" json:"priority"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (sw StoreWarehouse) GetBusinessId() string {
	return sw.BusinessId
}

type NewStoreWarehouse struct {
	StoreId     int  `json:"store_id" validate:"required"`
	WarehouseId int  `json:"warehouse_id" validate:"required"`
	IsTop       bool `json:"is_top"`
	Priority    int  `json:"priority"`
}

// BindStoreWarehouse creates or updates the binding. Marking a binding as top
// demotes the store's previous top inside the same transaction.
func BindStoreWarehouse(ctx context.Context, input *NewStoreWarehouse) (*StoreWarehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Store](ctx, businessId, input.StoreId); err != nil {
		return nil, errors.New("store not found")
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return nil, errors.New("warehouse not found")
	}
	priority := input.Priority
	if priority <= 0 {
		priority = 100
	}

	db := config.GetDB()
	var binding StoreWarehouse
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.IsTop {
			// demote the current top binding of the store
			if err := tx.Model(&StoreWarehouse{}).
				Where("business_id = ? AND store_id = ? AND is_top = ?", businessId, input.StoreId, true).
				UpdateColumn("is_top", false).Error; err != nil {
				return err
			}
		}

		err := tx.Where("business_id = ? AND store_id = ? AND warehouse_id = ?",
			businessId, input.StoreId, input.WarehouseId).First(&binding).Error
		if err == nil {
			return tx.Model(&binding).Updates(map[string]interface{}{
				"IsTop":    input.IsTop,
				"Priority": priority,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		binding = StoreWarehouse{
			BusinessId:  businessId,
			StoreId:     input.StoreId,
			WarehouseId: input.WarehouseId,
			IsTop:       &input.IsTop,
			Priority:    priority,
		}
		return tx.Create(&binding).Error
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[StoreWarehouse](businessId); err != nil {
		return nil, err
	}
	return &binding, nil
}

func UnbindStoreWarehouse(ctx context.Context, storeId int, warehouseId int) error {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("business_id = ? AND store_id = ? AND warehouse_id = ?", businessId, storeId, warehouseId).
		Delete(&StoreWarehouse{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return utils.RemoveRedisList[StoreWarehouse](businessId)
}

// ListStoreWarehouses returns the store's bindings in routing order, top
// first. It reads the business-level binding snapshot cached in redis;
// Bind/Unbind invalidate it.
func ListStoreWarehouses(ctx context.Context, storeId int) ([]*StoreWarehouse, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	bindings, err := utils.RetrieveRedisList[StoreWarehouse](businessId)
	if err != nil {
		return nil, err
	}
	if bindings == nil {
		bindings, err = utils.FetchAllModels[StoreWarehouse](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[StoreWarehouse](bindings, businessId); err != nil {
			return nil, err
		}
	}

	var results []*StoreWarehouse
	for _, b := range bindings {
		if b.StoreId == storeId {
			results = append(results, b)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		topI := utils.DereferencePtr(results[i].IsTop)
		topJ := utils.DereferencePtr(results[j].IsTop)
		if topI != topJ {
			return topI
		}
		if results[i].Priority != results[j].Priority {
			return results[i].Priority < results[j].Priority
		}
		return results[i].WarehouseId < results[j].WarehouseId
	})
	return results, nil
}

// StoreWarehouseBinding is the routing view of a binding: only what candidate
// ordering needs.
type StoreWarehouseBinding struct {
	WarehouseId int
	IsTop       bool
	Priority    int
}

// ListActiveBindings returns the store's bindings whose warehouse is still
// active, ordered for fallback routing: top first, then priority, then
// warehouse id for a stable tiebreak.
func ListActiveBindings(tx *gorm.DB, businessId string, storeId int) ([]StoreWarehouseBinding, error) {
	var bindings []StoreWarehouseBinding
	err := tx.Model(&StoreWarehouse{}).
		Select("store_warehouses.warehouse_id, store_warehouses.is_top, store_warehouses.priority").
		Joins("JOIN warehouses ON warehouses.id = store_warehouses.warehouse_id").
		Where("store_warehouses.business_id = ? AND store_warehouses.store_id = ?", businessId, storeId).
		Where("warehouses.is_active = ?", true).
		Order("store_warehouses.is_top DESC, store_warehouses.priority ASC, store_warehouses.warehouse_id ASC").
		Scan(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}
