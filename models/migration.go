package models

import (
	"log"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Warehouse{}, &Item{},
		&Store{}, &StoreWarehouse{}, &StoreProvinceRoute{},
		&StockEntry{},
		&Reservation{}, &ReservationLine{},
		&AuditEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
