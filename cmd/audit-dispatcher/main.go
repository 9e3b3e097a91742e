// audit-dispatcher drains the audit outbox to Pub/Sub.
// Rows are claimed with SKIP LOCKED, so several dispatchers can run at once.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_HOST=... PUBSUB_PROJECT_ID=... PUBSUB_TOPIC=... AUDIT_PUBLISH_ENABLED=true go run ./cmd/audit-dispatcher
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/workflow"
)

func main() {
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	if !config.AuditPublishEnabled() {
		log.Println("warning: AUDIT_PUBLISH_ENABLED is not set; dispatcher will idle")
	}

	dispatcher := workflow.NewAuditDispatcher(db, config.GetLogger())
	log.Printf("audit dispatcher started (id=%s batch=%d)", dispatcher.DispatcherID, dispatcher.BatchSize)
	dispatcher.Run(ctx)
	log.Println("audit dispatcher stopped")
}
