package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const moduleName = "Fulfillment"

var tracer = otel.Tracer("fulfillment-backend")

// emitAudit writes an audit outbox row on the caller's transaction.
// Audit is best-effort: failures are logged and swallowed so they can never
// roll back the reservation itself.
func emitAudit(ctx context.Context, tx *gorm.DB, businessId string, event string, channel models.Channel, ref string, traceId string, meta map[string]interface{}) {
	err := models.WriteAuditEvent(ctx, tx, businessId, models.AuditFlowFulfillment, event, channel, ref, traceId, meta)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "emitAudit", "failed to write audit event", map[string]interface{}{
			"event":    event,
			"ref":      ref,
			"trace_id": traceId,
		}, err)
	}
}

// ResolveTraceId picks the trace id for a request: an explicit id wins, then
// the active OpenTelemetry span, then the order ref, then a fresh uuid.
func ResolveTraceId(ctx context.Context, explicit string, ref string) string {
	if explicit != "" {
		return explicit
	}
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		return span.TraceID().String()
	}
	if ref != "" {
		return ref
	}
	return uuid.NewString()
}

// estimatedWeightKg sums qty x item weight for the routed audit record.
// Unknown items count as zero weight.
func estimatedWeightKg(tx *gorm.DB, businessId string, lines []OrderLine) (decimal.Decimal, error) {
	need := aggregateNeed(lines)
	itemIds := make([]int, 0, len(need))
	for itemId, qty := range need {
		if qty > 0 {
			itemIds = append(itemIds, itemId)
		}
	}
	if len(itemIds) == 0 {
		return decimal.Zero, nil
	}

	var items []models.Item
	if err := tx.Select("id, weight_kg").
		Where("business_id = ? AND id IN ?", businessId, itemIds).
		Find(&items).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.WeightKg.Mul(decimal.NewFromInt(int64(need[item.ID]))))
	}
	return total, nil
}
