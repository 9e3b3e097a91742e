// seed-dev populates a local database with a small routing fixture:
// two warehouses, two items, one store with bindings, one province route,
// and opening stock. Safe to re-run; duplicate rows are skipped.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
//	SEED_BUSINESS_ID=dev-biz go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	businessId := os.Getenv("SEED_BUSINESS_ID")
	if businessId == "" {
		businessId = "dev-biz"
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "seed-dev")
	ctx = utils.SetIsAdminInContext(ctx, true)

	ygn := ensureWarehouse(ctx, &models.NewWarehouse{
		Code: "YGN-01", Name: "Yangon Main", Province: "Yangon", City: "Yangon",
	})
	mdy := ensureWarehouse(ctx, &models.NewWarehouse{
		Code: "MDY-01", Name: "Mandalay Hub", Province: "Mandalay", City: "Mandalay",
	})

	tshirt := ensureItem(ctx, &models.NewItem{
		Sku: "TSHIRT-BLK-M", Name: "T-Shirt Black M", WeightKg: decimal.NewFromFloat(0.25),
	})
	mug := ensureItem(ctx, &models.NewItem{
		Sku: "MUG-WHITE", Name: "Ceramic Mug White", WeightKg: decimal.NewFromFloat(0.4),
	})

	store, err := models.EnsureStore(db.WithContext(ctx), businessId,
		models.Channel{Platform: "shopee", ShopId: "dev-shop-1"}, models.RouteModeFallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure store: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("store %d (%s/%s) mode=%s\n", store.ID, store.Platform, store.ShopId, store.RouteMode)

	bind(ctx, &models.NewStoreWarehouse{StoreId: store.ID, WarehouseId: ygn.ID, IsTop: true, Priority: 10})
	bind(ctx, &models.NewStoreWarehouse{StoreId: store.ID, WarehouseId: mdy.ID, Priority: 20})

	bindings, err := models.ListStoreWarehouses(ctx, store.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list bindings: %v\n", err)
		os.Exit(1)
	}
	for _, b := range bindings {
		fmt.Printf("  store %d -> warehouse %d top=%v priority=%d\n",
			b.StoreId, b.WarehouseId, utils.DereferencePtr(b.IsTop), b.Priority)
	}

	if _, err := models.CreateStoreProvinceRoute(ctx, &models.NewStoreProvinceRoute{
		StoreId: store.ID, Province: "Mandalay", WarehouseId: mdy.ID, Priority: 10,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "province route not created: %v\n", err)
	}

	seedStock(ctx, ygn.ID, tshirt.ID, 100)
	seedStock(ctx, ygn.ID, mug.ID, 50)
	seedStock(ctx, mdy.ID, tshirt.ID, 30)
	seedStock(ctx, mdy.ID, mug.ID, 200)

	fmt.Printf("seed complete for business %s\n", businessId)
}

func ensureWarehouse(ctx context.Context, input *models.NewWarehouse) *models.Warehouse {
	warehouse, err := models.CreateWarehouse(ctx, input)
	if err == nil {
		fmt.Printf("warehouse %d (%s) created\n", warehouse.ID, warehouse.Code)
		return warehouse
	}
	if !isAlreadyExists(err) {
		fmt.Fprintf(os.Stderr, "failed to create warehouse %s: %v\n", input.Code, err)
		os.Exit(1)
	}
	existing, listErr := models.ListWarehouses(ctx, nil)
	if listErr != nil {
		fmt.Fprintf(os.Stderr, "failed to list warehouses: %v\n", listErr)
		os.Exit(1)
	}
	for _, w := range existing {
		if w.Code == input.Code {
			fmt.Printf("warehouse %d (%s) already exists\n", w.ID, w.Code)
			return w
		}
	}
	fmt.Fprintf(os.Stderr, "warehouse %s reported as duplicate but not found\n", input.Code)
	os.Exit(1)
	return nil
}

func ensureItem(ctx context.Context, input *models.NewItem) *models.Item {
	item, err := models.CreateItem(ctx, input)
	if err == nil {
		fmt.Printf("item %d (%s) created\n", item.ID, item.Sku)
		return item
	}
	if !isAlreadyExists(err) {
		fmt.Fprintf(os.Stderr, "failed to create item %s: %v\n", input.Sku, err)
		os.Exit(1)
	}
	existing, listErr := models.ListItems(ctx, nil)
	if listErr != nil {
		fmt.Fprintf(os.Stderr, "failed to list items: %v\n", listErr)
		os.Exit(1)
	}
	for _, i := range existing {
		if i.Sku == input.Sku {
			fmt.Printf("item %d (%s) already exists\n", i.ID, i.Sku)
			return i
		}
	}
	fmt.Fprintf(os.Stderr, "item %s reported as duplicate but not found\n", input.Sku)
	os.Exit(1)
	return nil
}

func bind(ctx context.Context, input *models.NewStoreWarehouse) {
	binding, err := models.BindStoreWarehouse(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind warehouse %d to store %d: %v\n", input.WarehouseId, input.StoreId, err)
		os.Exit(1)
	}
	fmt.Printf("binding %d: store=%d warehouse=%d top=%v priority=%d\n",
		binding.ID, binding.StoreId, binding.WarehouseId, utils.DereferencePtr(binding.IsTop), binding.Priority)
}

func seedStock(ctx context.Context, warehouseId int, itemId int, qty int) {
	if _, err := models.AppendStockEntry(ctx, &models.NewStockEntry{
		WarehouseId: warehouseId,
		ItemId:      itemId,
		Qty:         qty,
		Reason:      "seed",
		Ref:         "seed-dev",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed stock (warehouse=%d item=%d): %v\n", warehouseId, itemId, err)
		os.Exit(1)
	}
	fmt.Printf("stock +%d warehouse=%d item=%d\n", qty, warehouseId, itemId)
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate")
}
