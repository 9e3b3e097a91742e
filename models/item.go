package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
)

type Item struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	Sku        string          `gorm:"size:100;not null;index:idx_item_sku,unique,composite:business_id" json:"sku" binding:"required"`
	Name       string          `gorm:"size:255;not null" json:"name" binding:"required"`
	WeightKg   decimal.Decimal `gorm:"type:decimal(10,3);not null;default:0" json:"weight_kg"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i Item) GetBusinessId() string {
	return i.BusinessId
}

type NewItem struct {
	Sku      string          `json:"sku" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	WeightKg decimal.Decimal `json:"weight_kg"`
}

func (input *NewItem) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Item](ctx, businessId, "sku", input.Sku, id); err != nil {
		return err
	}
	if input.WeightKg.IsNegative() {
		return errors.New("weight cannot be negative")
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := Item{
		BusinessId: businessId,
		Sku:        input.Sku,
		Name:       input.Name,
		WeightKg:   input.WeightKg,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	if err := clearResourceCache[Item](businessId, item.ID); err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Sku":      input.Sku,
		"Name":     input.Name,
		"WeightKg": input.WeightKg,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := clearResourceCache[Item](businessId, id); err != nil {
		return nil, err
	}
	return item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	return GetResource[Item](ctx, id)
}

func ListItems(ctx context.Context, sku *string) ([]*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	unfiltered := sku == nil || len(*sku) == 0
	if unfiltered {
		cached, err := utils.RetrieveRedisList[Item](businessId)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if !unfiltered {
		dbCtx = dbCtx.Where("sku LIKE ?", "%"+*sku+"%")
	}
	if err := dbCtx.Order("sku").Find(&results).Error; err != nil {
		return nil, err
	}
	if unfiltered {
		if err := utils.StoreRedisList[Item](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func ToggleActiveItem(ctx context.Context, id int, isActive bool) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&item).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := clearResourceCache[Item](businessId, id); err != nil {
		return nil, err
	}
	return item, nil
}
