package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent implements the transactional outbox for fulfillment audit trails:
// the row is written inside the caller's DB transaction but is NOT published
// to Pub/Sub there. Publishing happens asynchronously after commit via the
// audit dispatcher.
type AuditEvent struct {
	ID         int    `gorm:"primary_key;index:idx_audit_dispatch,priority:3" json:"id"`
	BusinessId string `gorm:"size:64;not null;index" json:"business_id"`
	Flow       string `gorm:"size:50;not null;index" json:"flow"`
	Event      string `gorm:"size:50;not null;index" json:"event"`
	Platform   string `gorm:"size:50" json:"platform"`
	ShopId     string `gorm:"size:100" json:"shop_id"`
	Ref        string `gorm:"size:100;index" json:"ref"`
	TraceId    string `gorm:"size:100;index" json:"trace_id"`
	Meta       []byte `gorm:"type:blob" json:"meta"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_audit_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_audit_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e AuditEvent) GetBusinessId() string {
	return e.BusinessId
}

// WriteAuditEvent appends an outbox row on the caller's transaction.
// meta is marshaled to JSON; a nil meta writes an empty object.
func WriteAuditEvent(ctx context.Context, tx *gorm.DB, businessId string, flow string, event string, channel Channel, ref string, traceId string, meta map[string]interface{}) error {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	record := AuditEvent{
		BusinessId:    businessId,
		Flow:          flow,
		Event:         event,
		Platform:      channel.Platform,
		ShopId:        channel.ShopId,
		Ref:           ref,
		TraceId:       traceId,
		Meta:          metaBytes,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
