package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeOperator ActorType = "operator"
	ActorTypeGateway  ActorType = "gateway"
	ActorTypeSystem   ActorType = "system"
)

const (
	ActionOrderCreated         = "order.created"
	ActionOrderTransitioned    = "order.transitioned"
	ActionPaymentIntentCreated = "payment_intent.created"
	ActionPaymentVerified      = "payment.verified"
	ActionPaymentRejected      = "payment.rejected"
	ActionPaymentFailed        = "payment.failed"
	ActionWebhookProcessed     = "webhook.processed"
	ActionWebhookIgnored       = "webhook.ignored"
	ActionAuthorizationDenied  = "authorization.denied"

	ActionPaymentCaptureAfterFailure = "payment.capture_after_failure"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"not null" json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"not null" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is one side effect to record. Empty actor fields are resolved from
// the request context.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// Recorder is the side-effect port used after state changes commit. It never
// returns an error: failures are logged and swallowed so they cannot undo or
// mask the change that was already made.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

type Service interface {
	Recorder
	ListByTarget(ctx context.Context, targetType, targetID string) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByTarget(ctx context.Context, db *gorm.DB, targetType, targetID string, limit int) ([]*AuditLog, error)
}
