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

// StoreProvinceRoute pins shipments to a destination province onto a
// specific warehouse. Lower priority wins; id breaks ties.
type StoreProvinceRoute struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	StoreId     int       `gorm:"not null;index:idx_route_store_province" json:"store_id"`
	Province    string    `gorm:"size:100;not null;index:idx_route_store_province" json:"province"`
	WarehouseId int       `gorm:"not null" json:"warehouse_id"`
	Priority    int       `gorm:"not null;default:100" json:"priority"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r StoreProvinceRoute) GetBusinessId() string {
	return r.BusinessId
}

type NewStoreProvinceRoute struct {
	StoreId     int    `json:"store_id" validate:"required"`
	Province    string `json:"province" validate:"required"`
	WarehouseId int    `json:"warehouse_id" validate:"required"`
	Priority    int    `json:"priority"`
}

func CreateStoreProvinceRoute(ctx context.Context, input *NewStoreProvinceRoute) (*StoreProvinceRoute, error) {

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

	// store the canonical form so lookups, which normalize the destination,
	// match what was configured
	province := NormalizeProvince(input.Province)
	if province == "" {
		return nil, errors.New("province is required")
	}

	route := StoreProvinceRoute{
		BusinessId:  businessId,
		StoreId:     input.StoreId,
		Province:    province,
		WarehouseId: input.WarehouseId,
		Priority:    priority,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&route).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[StoreProvinceRoute](businessId); err != nil {
		return nil, err
	}
	return &route, nil
}

func DeleteStoreProvinceRoute(ctx context.Context, id int) error {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, id).
		Delete(&StoreProvinceRoute{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return utils.RemoveRedisList[StoreProvinceRoute](businessId)
}

func ToggleActiveStoreProvinceRoute(ctx context.Context, id int, isActive bool) (*StoreProvinceRoute, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	route, err := utils.FetchModel[StoreProvinceRoute](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&route).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[StoreProvinceRoute](businessId); err != nil {
		return nil, err
	}
	return route, nil
}

func ListStoreProvinceRoutes(ctx context.Context, storeId int) ([]*StoreProvinceRoute, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// per-business route snapshot cached in redis; route writes invalidate it
	routes, err := utils.RetrieveRedisList[StoreProvinceRoute](businessId)
	if err != nil {
		return nil, err
	}
	if routes == nil {
		routes, err = utils.FetchAllModels[StoreProvinceRoute](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[StoreProvinceRoute](routes, businessId); err != nil {
			return nil, err
		}
	}

	var results []*StoreProvinceRoute
	for _, r := range routes {
		if r.StoreId == storeId {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Province != results[j].Province {
			return results[i].Province < results[j].Province
		}
		if results[i].Priority != results[j].Priority {
			return results[i].Priority < results[j].Priority
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// ListActiveProvinceRouteWarehouses returns warehouse ids routed for the
// province, in route order. A route only counts while it is active, its
// warehouse is active, and the warehouse is still bound to the store.
func ListActiveProvinceRouteWarehouses(tx *gorm.DB, businessId string, storeId int, province string) ([]int, error) {
	var warehouseIds []int
	err := tx.Model(&StoreProvinceRoute{}).
		Select("store_province_routes.warehouse_id").
		Joins("JOIN warehouses ON warehouses.id = store_province_routes.warehouse_id").
		Joins("JOIN store_warehouses ON store_warehouses.store_id = store_province_routes.store_id AND store_warehouses.warehouse_id = store_province_routes.warehouse_id").
		Where("store_province_routes.business_id = ? AND store_province_routes.store_id = ? AND store_province_routes.province = ?",
			businessId, storeId, province).
		Where("store_province_routes.is_active = ? AND warehouses.is_active = ?", true, true).
		Order("store_province_routes.priority ASC, store_province_routes.id ASC").
		Scan(&warehouseIds).Error
	if err != nil {
		return nil, err
	}
	return warehouseIds, nil
}
