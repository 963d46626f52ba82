package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type IntentStatus string

const (
	IntentStatusCreated IntentStatus = "created"
	IntentStatusPaid    IntentStatus = "paid"
	IntentStatusFailed  IntentStatus = "failed"
)

// PaymentIntent is one gateway order opened for a checkout. AmountMinor is
// in minor currency units.
type PaymentIntent struct {
	ID                     snowflake.ID   `json:"id" gorm:"primaryKey"`
	OwnerID                string         `json:"owner_id" gorm:"not null"`
	OrderID                *snowflake.ID  `json:"order_id,omitempty"`
	AmountMinor            int64          `json:"amount_minor" gorm:"not null"`
	Currency               string         `json:"currency" gorm:"not null"`
	IdempotencyFingerprint *string        `json:"-"`
	Gateway                string         `json:"gateway" gorm:"not null"`
	GatewayOrderID         string         `json:"gateway_order_id" gorm:"uniqueIndex"`
	GatewayOrder           datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	Receipt                string         `json:"receipt" gorm:"not null"`
	Status                 IntentStatus   `json:"status" gorm:"not null"`
	PaymentID              *string        `json:"payment_id,omitempty"`
	Signature              *string        `json:"-"`
	CreatedAt              time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time      `json:"updated_at" gorm:"not null"`
	PaidAt                 *time.Time     `json:"paid_at,omitempty"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusIgnored   WebhookStatus = "ignored"
)

// WebhookEvent is the dedupe record of one delivery, keyed by the sha256 of
// its raw body.
type WebhookEvent struct {
	ID               string         `json:"id" gorm:"primaryKey"`
	Provider         string         `json:"provider" gorm:"type:text;not null"`
	EventType        string         `json:"event_type" gorm:"type:text;not null"`
	Status           WebhookStatus  `json:"status" gorm:"type:text;not null"`
	OrderID          *snowflake.ID  `json:"order_id,omitempty"`
	PaymentIntentID  *snowflake.ID  `json:"payment_intent_id,omitempty"`
	GatewayPaymentID *string        `json:"gateway_payment_id,omitempty"`
	Payload          datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"not null"`
	ClaimedAt        *time.Time     `json:"-"`
	ProcessedAt      *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is the canonical payment notification parsed by adapters.
type PaymentEvent struct {
	Provider         string
	GatewayEventType string
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	AmountMinor      int64
	Currency         string
	ErrorReason      string
	RawPayload       []byte
}

type CreateGatewayOrderRequest struct {
	AmountMinor    int64
	Currency       string
	Receipt        string
	IdempotencyKey string
	Notes          map[string]string
}

// GatewayOrder is the gateway's answer to an order creation. Raw keeps the
// response body verbatim.
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
	Raw         []byte
}

type InsertOutcome int

const (
	InsertCreated InsertOutcome = iota + 1
	InsertDuplicate
)

type DeliveryOutcome string

const (
	DeliveryNew       DeliveryOutcome = "new"
	DeliveryDuplicate DeliveryOutcome = "duplicate"
	DeliveryResumed   DeliveryOutcome = "resumed"
)
