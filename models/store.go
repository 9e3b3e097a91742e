package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// Channel identifies a sales channel within a business: a platform plus
// the shop account on that platform.
type Channel struct {
	Platform string `json:"platform" validate:"required"`
	ShopId   string `json:"shop_id" validate:"required"`
}

type Store struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"not null;index:idx_store_channel,unique" json:"business_id"`
	Platform   string    `gorm:"size:50;not null;index:idx_store_channel,unique" json:"platform"`
	ShopId     string    `gorm:"size:100;not null;index:idx_store_channel,unique" json:"shop_id"`
	Name       string    `gorm:"size:255" json:"name"`
	RouteMode  RouteMode `gorm:"size:20;not null;default:FALLBACK" json:"route_mode"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s Store) GetBusinessId() string {
	return s.BusinessId
}

// EnsureStore returns the store row for the channel, creating it on first
// contact. Two requests racing on the same unseen channel both succeed:
// the loser of the insert re-reads the winner's row.
func EnsureStore(tx *gorm.DB, businessId string, channel Channel, defaultMode RouteMode) (*Store, error) {
	if channel.Platform == "" || channel.ShopId == "" {
		return nil, errors.New("platform and shop id are required")
	}
	if !defaultMode.Valid() {
		defaultMode = RouteModeFallback
	}

	var store Store
	err := tx.Where("business_id = ? AND platform = ? AND shop_id = ?",
		businessId, channel.Platform, channel.ShopId).First(&store).Error
	if err == nil {
		return &store, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	store = Store{
		BusinessId: businessId,
		Platform:   channel.Platform,
		ShopId:     channel.ShopId,
		RouteMode:  defaultMode,
		IsActive:   utils.NewTrue(),
	}
	if err := tx.Create(&store).Error; err != nil {
		if !utils.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// lost the insert race; the winner's row is authoritative
		if err := tx.Where("business_id = ? AND platform = ? AND shop_id = ?",
			businessId, channel.Platform, channel.ShopId).First(&store).Error; err != nil {
			return nil, err
		}
	}
	return &store, nil
}

func GetStoreByChannel(tx *gorm.DB, businessId string, channel Channel) (*Store, error) {
	var store Store
	err := tx.Where("business_id = ? AND platform = ? AND shop_id = ?",
		businessId, channel.Platform, channel.ShopId).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &store, nil
}

func SetStoreRouteMode(ctx context.Context, id int, mode RouteMode) (*Store, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !mode.Valid() {
		return nil, errors.New("invalid route mode")
	}

	store, err := utils.FetchModel[Store](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&store).
		UpdateColumn("RouteMode", mode).Error; err != nil {
		return nil, err
	}
	if err := clearResourceCache[Store](businessId, id); err != nil {
		return nil, err
	}
	return store, nil
}

func GetStore(ctx context.Context, id int) (*Store, error) {
	return GetResource[Store](ctx, id)
}

func ListStores(ctx context.Context, platform *string) ([]*Store, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	unfiltered := platform == nil || len(*platform) == 0
	if unfiltered {
		cached, err := utils.RetrieveRedisList[Store](businessId)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	db := config.GetDB()
	var results []*Store

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if !unfiltered {
		dbCtx = dbCtx.Where("platform = ?", *platform)
	}
	if err := dbCtx.Order("platform, shop_id").Find(&results).Error; err != nil {
		return nil, err
	}
	if unfiltered {
		if err := utils.StoreRedisList[Store](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func ToggleActiveStore(ctx context.Context, id int, isActive bool) (*Store, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	store, err := utils.FetchModel[Store](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&store).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := clearResourceCache[Store](businessId, id); err != nil {
		return nil, err
	}
	return store, nil
}
