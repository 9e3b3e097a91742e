package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// MySQL advisory locks serialize reservation writes across instances.
// GET_LOCK is connection-scoped, so these must be called on the same *gorm.DB
// (transaction) that will do the write. They are released before the
// transaction commits, so they order writers; visibility of the winner's rows
// is guaranteed by the FOR UPDATE availability reads, not by these locks.

// AcquireReserveLock serializes reservation persists per (business, warehouse).
func AcquireReserveLock(tx *gorm.DB, businessId string, warehouseId int) error {
	return acquireNamedLock(tx, fmt.Sprintf("reserve:%s:%d", businessId, warehouseId))
}

func ReleaseReserveLock(tx *gorm.DB, businessId string, warehouseId int) {
	releaseNamedLock(tx, fmt.Sprintf("reserve:%s:%d", businessId, warehouseId))
}

// AcquireReservationLock serializes consume/release per reservation business key.
func AcquireReservationLock(tx *gorm.DB, businessId string, platform string, shopId string, ref string) error {
	return acquireNamedLock(tx, fmt.Sprintf("resv:%s:%s:%s:%s", businessId, platform, shopId, ref))
}

func ReleaseReservationLock(tx *gorm.DB, businessId string, platform string, shopId string, ref string) {
	releaseNamedLock(tx, fmt.Sprintf("resv:%s:%s:%s:%s", businessId, platform, shopId, ref))
}

func acquireNamedLock(tx *gorm.DB, lockName string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire advisory lock %q", lockName)
	}
	return nil
}

func releaseNamedLock(tx *gorm.DB, lockName string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
