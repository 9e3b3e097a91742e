package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
)

// End-to-end reservation lifecycle against real MySQL + Redis.
// Covers: routing order, idempotent replay, replay mismatch, oversell
// rejection, release/expiry returning capacity, and STRICT_TOP behavior.
func TestReservationLifecycleRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fulfillment_test")
	t.Setenv("AUDIT_PUBLISH_ENABLED", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const businessID = "biz-regression"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	// Fixture: top warehouse with thin stock, backup with plenty.
	ygn, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Code: "YGN-01", Name: "Yangon Main", Province: "Yangon"})
	if err != nil {
		t.Fatalf("CreateWarehouse(ygn): %v", err)
	}
	mdy, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Code: "MDY-01", Name: "Mandalay Hub", Province: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateWarehouse(mdy): %v", err)
	}
	tshirt, err := models.CreateItem(ctx, &models.NewItem{Sku: "TSHIRT-M", Name: "T-Shirt M", WeightKg: decimal.NewFromFloat(0.25)})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	channel := models.Channel{Platform: "shopee", ShopId: "shop-reg-1"}
	store, err := models.EnsureStore(db.WithContext(ctx), businessID, channel, models.RouteModeFallback)
	if err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	if _, err := models.BindStoreWarehouse(ctx, &models.NewStoreWarehouse{
		StoreId: store.ID, WarehouseId: ygn.ID, IsTop: true, Priority: 10,
	}); err != nil {
		t.Fatalf("BindStoreWarehouse(ygn): %v", err)
	}
	if _, err := models.BindStoreWarehouse(ctx, &models.NewStoreWarehouse{
		StoreId: store.ID, WarehouseId: mdy.ID, Priority: 20,
	}); err != nil {
		t.Fatalf("BindStoreWarehouse(mdy): %v", err)
	}

	seed := func(warehouseID, qty int) {
		t.Helper()
		if _, err := models.AppendStockEntry(ctx, &models.NewStockEntry{
			WarehouseId: warehouseID, ItemId: tshirt.ID, Qty: qty, Reason: "seed",
		}); err != nil {
			t.Fatalf("AppendStockEntry: %v", err)
		}
	}
	seed(ygn.ID, 5)
	seed(mdy.ID, 50)

	// The unfiltered warehouse list is cached on read and invalidated by
	// the next write.
	if _, err := models.ListWarehouses(ctx, nil); err != nil {
		t.Fatalf("ListWarehouses: %v", err)
	}
	cachedWarehouses, err := utils.RetrieveRedisList[models.Warehouse](businessID)
	if err != nil {
		t.Fatalf("RetrieveRedisList: %v", err)
	}
	if cachedWarehouses == nil {
		t.Fatalf("expected warehouse list cached after list read")
	}
	if _, err := models.ToggleActiveWarehouse(ctx, mdy.ID, true); err != nil {
		t.Fatalf("ToggleActiveWarehouse: %v", err)
	}
	cachedWarehouses, err = utils.RetrieveRedisList[models.Warehouse](businessID)
	if err != nil {
		t.Fatalf("RetrieveRedisList after write: %v", err)
	}
	if cachedWarehouses != nil {
		t.Fatalf("expected warehouse list cache invalidated by write")
	}

	svc := NewFulfillmentService()

	// 1) Routing prefers the top warehouse while it has stock.
	first, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Ref: "ORD-1",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("Reserve(ORD-1): %v", err)
	}
	if first.WarehouseId != ygn.ID {
		t.Fatalf("expected ORD-1 at top warehouse %d, got %d", ygn.ID, first.WarehouseId)
	}
	if first.Reason != models.PickReasonTopWarehouseWithStock {
		t.Fatalf("expected top_warehouse_with_stock, got %s", first.Reason)
	}

	// 2) Replaying the same request is a no-op on the same reservation.
	replay, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Ref: "ORD-1",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("Reserve replay: %v", err)
	}
	if !replay.Replayed || replay.ReservationId != first.ReservationId {
		t.Fatalf("expected replay of reservation %d, got %+v", first.ReservationId, replay)
	}
	var lineCount int64
	if err := db.Model(&models.ReservationLine{}).
		Where("reservation_id = ?", first.ReservationId).
		Count(&lineCount).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lineCount != 1 {
		t.Fatalf("replay must not duplicate lines; got %d", lineCount)
	}

	// 3) Shrinking a replayed order is rejected as a mismatch.
	_, err = svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Ref: "ORD-1",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 1}},
	})
	var mismatch *ReplayMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ReplayMismatchError on shrink, got %v", err)
	}

	// 4) Top warehouse has 5-3=2 left, so a 4-unit order falls to the backup.
	second, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Ref: "ORD-2",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("Reserve(ORD-2): %v", err)
	}
	if second.WarehouseId != mdy.ID {
		t.Fatalf("expected ORD-2 at backup warehouse %d, got %d", mdy.ID, second.WarehouseId)
	}
	if second.Reason != models.PickReasonBackupWarehouseWithStock {
		t.Fatalf("expected backup_warehouse_with_stock, got %s", second.Reason)
	}

	// 5) Manual assignment to the depleted top warehouse is rejected with
	// itemized detail.
	_, err = svc.AssignWarehouse(ctx, &AssignInput{
		Channel: channel, WarehouseId: ygn.ID, Ref: "ORD-3",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 4}},
	})
	var insufficient *InsufficientAvailabilityError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAvailabilityError, got %v", err)
	}
	if len(insufficient.Items) != 1 || insufficient.Items[0].Available != 2 {
		t.Fatalf("unexpected shortage detail: %+v", insufficient.Items)
	}

	// 6) Releasing ORD-1 returns its 3 units to the top warehouse.
	if _, err := ReleaseReservation(ctx, channel, "ORD-1", ""); err != nil {
		t.Fatalf("ReleaseReservation: %v", err)
	}
	third, err := svc.AssignWarehouse(ctx, &AssignInput{
		Channel: channel, WarehouseId: ygn.ID, Ref: "ORD-3",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("AssignWarehouse after release: %v", err)
	}
	if third.Reason != models.PickReasonManualAssignment {
		t.Fatalf("expected manual_assignment, got %s", third.Reason)
	}

	// 7) Released reservations cannot be replayed.
	_, err = svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Ref: "ORD-1",
		Lines: []OrderLine{{ItemId: tshirt.ID, Qty: 3}},
	})
	if !errors.Is(err, ErrReservationNotOpen) {
		t.Fatalf("expected ErrReservationNotOpen on released ref, got %v", err)
	}

	// 8) Consume settles ORD-3 and stays idempotent.
	consumed, err := PickConsume(ctx, channel, "ORD-3")
	if err != nil {
		t.Fatalf("PickConsume: %v", err)
	}
	if consumed.Status != ConsumeStatusConsumed {
		t.Fatalf("expected CONSUMED, got %s", consumed.Status)
	}
	again, err := PickConsume(ctx, channel, "ORD-3")
	if err != nil {
		t.Fatalf("PickConsume again: %v", err)
	}
	if again.Status != ConsumeStatusNoop {
		t.Fatalf("expected NOOP on second consume, got %s", again.Status)
	}

	// 9) Expiry via the sweeper returns ORD-2's units to the backup warehouse.
	past := time.Now().UTC().Add(-time.Minute)
	if err := db.Model(&models.Reservation{}).
		Where("business_id = ? AND id = ?", businessID, second.ReservationId).
		Update("expire_at", past).Error; err != nil {
		t.Fatalf("backdate expire_at: %v", err)
	}
	sweeper := NewReservationSweeper(db, config.GetLogger())
	expired, err := sweeper.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired reservation, got %d", expired)
	}
	provider := NewStockAvailabilityProvider()
	available, err := provider.Available(db, businessID, channel, mdy.ID, tshirt.ID)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if available != 50 {
		t.Fatalf("expected backup availability restored to 50, got %d", available)
	}

	// Routed and blocked outcomes both landed in the outbox.
	var routed, blocked int64
	if err := db.Model(&models.AuditEvent{}).
		Where("business_id = ? AND event = ?", businessID, models.AuditEventWarehouseRouted).
		Count(&routed).Error; err != nil {
		t.Fatalf("count routed audits: %v", err)
	}
	if err := db.Model(&models.AuditEvent{}).
		Where("business_id = ? AND event = ?", businessID, models.AuditEventFulfillmentBlocked).
		Count(&blocked).Error; err != nil {
		t.Fatalf("count blocked audits: %v", err)
	}
	if routed == 0 {
		t.Fatalf("expected WAREHOUSE_ROUTED audit rows")
	}
	if blocked == 0 {
		t.Fatalf("expected FULFILLMENT_BLOCKED audit rows")
	}
}

// Concurrent reservations against the same thin stock must never promise
// more than is on hand: whichever transactions lose the row locks have to
// see the winners' committed reservations and be rejected.
func TestConcurrentReservationsNeverOversell(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fulfillment_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const businessID = "biz-concurrent"
	const onHand = 5
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Code: "YGN-01", Name: "Yangon Main", Province: "Yangon"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	item, err := models.CreateItem(ctx, &models.NewItem{Sku: "TSHIRT-M", Name: "T-Shirt M", WeightKg: decimal.NewFromFloat(0.25)})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	channel := models.Channel{Platform: "shopee", ShopId: "shop-conc-1"}
	store, err := models.EnsureStore(db.WithContext(ctx), businessID, channel, models.RouteModeFallback)
	if err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	if _, err := models.BindStoreWarehouse(ctx, &models.NewStoreWarehouse{
		StoreId: store.ID, WarehouseId: warehouse.ID, IsTop: true, Priority: 10,
	}); err != nil {
		t.Fatalf("BindStoreWarehouse: %v", err)
	}
	if _, err := models.AppendStockEntry(ctx, &models.NewStockEntry{
		WarehouseId: warehouse.ID, ItemId: item.ID, Qty: onHand, Reason: "seed",
	}); err != nil {
		t.Fatalf("AppendStockEntry: %v", err)
	}

	svc := NewFulfillmentService()

	const workers = 10
	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, &ReserveInput{
				Channel: channel, Ref: fmt.Sprintf("CONC-%d", n),
				Lines: []OrderLine{{ItemId: item.ID, Qty: 1}},
			})
			if err == nil {
				atomic.AddInt64(&successes, 1)
				return
			}
			var cannotFulfill *NoWarehouseCanFulfillError
			var insufficient *InsufficientAvailabilityError
			if !errors.As(err, &cannotFulfill) && !errors.As(err, &insufficient) {
				t.Errorf("Reserve(CONC-%d): unexpected error %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	var reservedOpen int
	if err := db.Raw(`
SELECT COALESCE(SUM(rl.qty - rl.consumed_qty), 0)
FROM reservation_lines rl
JOIN reservations r ON r.id = rl.reservation_id
WHERE r.business_id = ? AND r.status = 'open'`, businessID).Scan(&reservedOpen).Error; err != nil {
		t.Fatalf("sum open reservations: %v", err)
	}
	if reservedOpen > onHand {
		t.Fatalf("oversold: %d units reserved against %d on hand", reservedOpen, onHand)
	}
	if int(successes) != reservedOpen {
		t.Fatalf("%d successful reserves but %d units held", successes, reservedOpen)
	}
	if successes != onHand {
		t.Fatalf("expected exactly %d reservations to win, got %d", onHand, successes)
	}
}

// Province routes override bindings, and STRICT_TOP refuses to fall back.
func TestProvinceRoutingAndStrictTopRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fulfillment_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const businessID = "biz-province"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	ygn, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Code: "YGN-01", Name: "Yangon Main", Province: "Yangon"})
	if err != nil {
		t.Fatalf("CreateWarehouse(ygn): %v", err)
	}
	mdy, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Code: "MDY-01", Name: "Mandalay Hub", Province: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateWarehouse(mdy): %v", err)
	}
	mug, err := models.CreateItem(ctx, &models.NewItem{Sku: "MUG-1", Name: "Mug", WeightKg: decimal.NewFromFloat(0.4)})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	channel := models.Channel{Platform: "tiktok", ShopId: "shop-prov-1"}
	store, err := models.EnsureStore(db.WithContext(ctx), businessID, channel, models.RouteModeFallback)
	if err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	for _, bind := range []models.NewStoreWarehouse{
		{StoreId: store.ID, WarehouseId: ygn.ID, IsTop: true, Priority: 10},
		{StoreId: store.ID, WarehouseId: mdy.ID, Priority: 20},
	} {
		b := bind
		if _, err := models.BindStoreWarehouse(ctx, &b); err != nil {
			t.Fatalf("BindStoreWarehouse: %v", err)
		}
	}
	if _, err := models.CreateStoreProvinceRoute(ctx, &models.NewStoreProvinceRoute{
		StoreId: store.ID, Province: "Mandalay", WarehouseId: mdy.ID, Priority: 10,
	}); err != nil {
		t.Fatalf("CreateStoreProvinceRoute: %v", err)
	}

	for _, seed := range []struct{ wh, qty int }{{ygn.ID, 100}, {mdy.ID, 100}} {
		if _, err := models.AppendStockEntry(ctx, &models.NewStockEntry{
			WarehouseId: seed.wh, ItemId: mug.ID, Qty: seed.qty, Reason: "seed",
		}); err != nil {
			t.Fatalf("AppendStockEntry: %v", err)
		}
	}

	svc := NewFulfillmentService()

	// Province match beats the top binding.
	routed, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Province: "Mandalay", Ref: "PROV-1",
		Lines: []OrderLine{{ItemId: mug.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("Reserve(PROV-1): %v", err)
	}
	if routed.WarehouseId != mdy.ID {
		t.Fatalf("expected province route to pick %d, got %d", mdy.ID, routed.WarehouseId)
	}
	if routed.Reason != models.PickReasonProvinceRouteWithStock {
		t.Fatalf("expected province_route_with_stock, got %s", routed.Reason)
	}

	// No province match in FALLBACK mode: bindings take over, top first.
	fallback, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Province: "Bago", Ref: "PROV-2",
		Lines: []OrderLine{{ItemId: mug.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("Reserve(PROV-2): %v", err)
	}
	if fallback.WarehouseId != ygn.ID {
		t.Fatalf("expected fallback to top binding %d, got %d", ygn.ID, fallback.WarehouseId)
	}

	// A route configured with the suffixed province form must match orders
	// using the bare form: both sides normalize to the same stored value.
	if _, err := models.CreateStoreProvinceRoute(ctx, &models.NewStoreProvinceRoute{
		StoreId: store.ID, Province: "广东省", WarehouseId: mdy.ID, Priority: 10,
	}); err != nil {
		t.Fatalf("CreateStoreProvinceRoute(广东省): %v", err)
	}
	cnRouted, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Province: "广东", Ref: "PROV-CN-1",
		Lines: []OrderLine{{ItemId: mug.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("Reserve(PROV-CN-1): %v", err)
	}
	if cnRouted.WarehouseId != mdy.ID {
		t.Fatalf("expected suffixed route to match bare province, got warehouse %d", cnRouted.WarehouseId)
	}
	if cnRouted.Reason != models.PickReasonProvinceRouteWithStock {
		t.Fatalf("expected province_route_with_stock for 广东, got %s", cnRouted.Reason)
	}

	// STRICT_TOP: an unrouted province yields zero candidates, never bindings.
	if _, err := models.SetStoreRouteMode(ctx, store.ID, models.RouteModeStrictTop); err != nil {
		t.Fatalf("SetStoreRouteMode: %v", err)
	}
	_, err = svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Province: "Bago", Ref: "PROV-3",
		Lines: []OrderLine{{ItemId: mug.ID, Qty: 2}},
	})
	var notConfigured *NoWarehouseConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected NoWarehouseConfiguredError under STRICT_TOP, got %v", err)
	}
	if notConfigured.Reason != string(models.RoutingReasonNoProvinceRouteMatch) {
		t.Fatalf("unexpected reason: %s", notConfigured.Reason)
	}

	// A routed province still works under STRICT_TOP.
	strictRouted, err := svc.Reserve(ctx, &ReserveInput{
		Channel: channel, Province: "Mandalay", Ref: "PROV-4",
		Lines: []OrderLine{{ItemId: mug.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("Reserve(PROV-4): %v", err)
	}
	if strictRouted.WarehouseId != mdy.ID {
		t.Fatalf("expected %d under STRICT_TOP province match, got %d", mdy.ID, strictRouted.WarehouseId)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fulfillment-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fulfillment-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=fulfillment_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
