package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"gorm.io/gorm"
)

// NOTE: These tests are intentionally DB-free. The router only talks to its
// AvailabilityProvider, so a map-backed fake is enough to pin the scan order
// and shortage reporting. Full stock math is covered by the DB-backed
// regression tests.

type fakeAvailability struct {
	// stock[warehouseId][itemId] = available
	stock   map[int]map[int]int
	scanned []int
}

func (f *fakeAvailability) lookup(warehouseId, itemId int) int {
	if wh, ok := f.stock[warehouseId]; ok {
		return wh[itemId]
	}
	return 0
}

func (f *fakeAvailability) AvailableRaw(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	return f.lookup(warehouseId, itemId), nil
}

func (f *fakeAvailability) AvailableForUpdate(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	return f.lookup(warehouseId, itemId), nil
}

func (f *fakeAvailability) Available(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemId int) (int, error) {
	v := f.lookup(warehouseId, itemId)
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

func (f *fakeAvailability) AvailableForItems(tx *gorm.DB, businessId string, channel models.Channel, warehouseId int, itemIds []int) (map[int]int, error) {
	f.scanned = append(f.scanned, warehouseId)
	out := make(map[int]int, len(itemIds))
	for _, itemId := range itemIds {
		out[itemId] = f.lookup(warehouseId, itemId)
	}
	return out, nil
}

var testChannel = models.Channel{Platform: "shopee", ShopId: "shop-1"}

func TestRoutePicksFirstCandidateWithStock(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{
		1: {10: 5},
		2: {10: 50},
	}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1, 2},
		TopWarehouseIds:       map[int]bool{1: true},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	decision, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{{ItemId: 10, Qty: 3}})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.WarehouseId != 1 {
		t.Fatalf("expected warehouse 1, got %d", decision.WarehouseId)
	}
	if decision.Reason != models.PickReasonTopWarehouseWithStock {
		t.Fatalf("expected top_warehouse_with_stock, got %s", decision.Reason)
	}
	// first candidate satisfied the order; second must not be consulted
	if len(fake.scanned) != 1 || fake.scanned[0] != 1 {
		t.Fatalf("expected scan order [1], got %v", fake.scanned)
	}
}

func TestRouteFallsBackToBackupWarehouse(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{
		1: {10: 2},
		2: {10: 50},
	}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1, 2},
		TopWarehouseIds:       map[int]bool{1: true},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	decision, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{{ItemId: 10, Qty: 3}})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.WarehouseId != 2 {
		t.Fatalf("expected backup warehouse 2, got %d", decision.WarehouseId)
	}
	if decision.Reason != models.PickReasonBackupWarehouseWithStock {
		t.Fatalf("expected backup_warehouse_with_stock, got %s", decision.Reason)
	}
	if len(decision.Considered) != 2 {
		t.Fatalf("expected 2 considered entries, got %d", len(decision.Considered))
	}
	first := decision.Considered[0]
	if first.OK || len(first.Insufficient) != 1 {
		t.Fatalf("expected warehouse 1 to fail with one shortage, got %+v", first)
	}
	if first.Insufficient[0].Need != 3 || first.Insufficient[0].Available != 2 {
		t.Fatalf("unexpected shortage detail: %+v", first.Insufficient[0])
	}
}

func TestRouteWholeOrderMustFitOneWarehouse(t *testing.T) {
	// warehouse 1 covers item 10 but not 20; warehouse 2 covers both
	fake := &fakeAvailability{stock: map[int]map[int]int{
		1: {10: 100, 20: 0},
		2: {10: 5, 20: 5},
	}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1, 2},
		TopWarehouseIds:       map[int]bool{},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	decision, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{
		{ItemId: 10, Qty: 2},
		{ItemId: 20, Qty: 1},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.WarehouseId != 2 {
		t.Fatalf("expected warehouse 2 to take the whole order, got %d", decision.WarehouseId)
	}
}

func TestRouteRepeatedItemsAreSummed(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{
		1: {10: 5},
	}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1},
		TopWarehouseIds:       map[int]bool{},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	// 3 + 3 = 6 > 5, so the single warehouse cannot fulfill
	_, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{
		{ItemId: 10, Qty: 3},
		{ItemId: 10, Qty: 3},
	})
	var cannotFulfill *NoWarehouseCanFulfillError
	if !errors.As(err, &cannotFulfill) {
		t.Fatalf("expected NoWarehouseCanFulfillError, got %v", err)
	}
	if len(cannotFulfill.Considered) != 1 {
		t.Fatalf("expected 1 considered entry, got %d", len(cannotFulfill.Considered))
	}
	short := cannotFulfill.Considered[0].Insufficient
	if len(short) != 1 || short[0].Need != 6 {
		t.Fatalf("expected aggregated need 6, got %+v", short)
	}
}

func TestRouteZeroCandidatesIsConfigurationError(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:         1,
		TopWarehouseIds: map[int]bool{},
		Reason:          models.RoutingReasonNoWarehouseBound,
	}
	_, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{{ItemId: 10, Qty: 1}})
	var notConfigured *NoWarehouseConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected NoWarehouseConfiguredError, got %v", err)
	}
	if notConfigured.Reason != string(models.RoutingReasonNoWarehouseBound) {
		t.Fatalf("unexpected reason: %s", notConfigured.Reason)
	}
	// availability must never be consulted without candidates
	if len(fake.scanned) != 0 {
		t.Fatalf("expected no availability reads, got %v", fake.scanned)
	}
}

func TestRouteNoPositiveLinesIsNoOp(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{1: {10: 5}}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1},
		TopWarehouseIds:       map[int]bool{},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	decision, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{
		{ItemId: 10, Qty: 0},
		{ItemId: 20, Qty: -2},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision != nil {
		t.Fatalf("expected nil decision for all-non-positive order, got %+v", decision)
	}
}

func TestRouteProvinceMatchReportsProvinceReason(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{3: {10: 9}}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{3},
		TopWarehouseIds:       map[int]bool{},
		Reason:                models.RoutingReasonProvinceRouteMatch,
	}
	decision, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{{ItemId: 10, Qty: 1}})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.Reason != models.PickReasonProvinceRouteWithStock {
		t.Fatalf("expected province_route_with_stock, got %s", decision.Reason)
	}
}

func TestRouteDedupsCandidates(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{1: {10: 0}, 2: {10: 0}}}
	router := NewWarehouseRouter(fake)

	resolution := &CandidateResolution{
		StoreId:               1,
		CandidateWarehouseIds: []int{1, 1, 2, 0, 2},
		TopWarehouseIds:       map[int]bool{},
		Reason:                models.RoutingReasonFallbackToBindings,
	}
	_, err := router.Route(nil, "biz", testChannel, resolution, []OrderLine{{ItemId: 10, Qty: 1}})
	var cannotFulfill *NoWarehouseCanFulfillError
	if !errors.As(err, &cannotFulfill) {
		t.Fatalf("expected NoWarehouseCanFulfillError, got %v", err)
	}
	if len(fake.scanned) != 2 {
		t.Fatalf("expected each warehouse scanned once, got %v", fake.scanned)
	}
}

func TestScanReportsEveryCandidate(t *testing.T) {
	fake := &fakeAvailability{stock: map[int]map[int]int{
		1: {10: 5},
		2: {10: 1},
	}}
	router := NewWarehouseRouter(fake)

	checks, err := router.Scan(nil, "biz", testChannel, []int{1, 2}, []OrderLine{{ItemId: 10, Qty: 3}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	if !checks[0].OK {
		t.Fatalf("expected warehouse 1 OK, got %+v", checks[0])
	}
	if checks[1].OK || len(checks[1].Insufficient) != 1 {
		t.Fatalf("expected warehouse 2 short, got %+v", checks[1])
	}
}
