package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Gateway is the observable contract of a hosted checkout provider.
type Gateway interface {
	Provider() string
	CreateOrder(ctx context.Context, req CreateGatewayOrderRequest) (*GatewayOrder, error)
	VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	VerifyWebhook(payload []byte, headers http.Header) (bool, error)
	ParseEvent(payload []byte) (*PaymentEvent, error)
}

type AdapterConfig struct {
	Provider      string
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

// IntentLocker serializes intent creation for one fingerprint across
// replicas. A locker that is not configured reports ok with an empty token.
type IntentLocker interface {
	LockIntent(ctx context.Context, fingerprint string) (string, bool, error)
	ReleaseIntent(ctx context.Context, fingerprint, token string) error
}

type CreateIntentRequest struct {
	OwnerID        string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	OrderID        *snowflake.ID
}

type IntentResponse struct {
	IntentID       snowflake.ID    `json:"intent_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amount_minor"`
	Currency       string          `json:"currency"`
	Gateway        string          `json:"gateway"`
	KeyID          string          `json:"key_id,omitempty"`
	Receipt        string          `json:"receipt"`
	Status         IntentStatus    `json:"status"`
	Reused         bool            `json:"reused"`
}

type VerifyPaymentRequest struct {
	OwnerID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type VerifyPaymentResult struct {
	Valid   bool          `json:"valid"`
	OrderID *snowflake.ID `json:"order_id,omitempty"`
}

// ApplyResult links a processed event to what it touched.
type ApplyResult struct {
	IntentID snowflake.ID
	OrderID  *snowflake.ID
}

type IntentService interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentResponse, error)
	VerifyClientPayment(ctx context.Context, req VerifyPaymentRequest) (VerifyPaymentResult, error)
	ApplyEvent(ctx context.Context, event *PaymentEvent) (ApplyResult, error)
}

type Delivery struct {
	Outcome DeliveryOutcome
	Event   *WebhookEvent
}

type IngestResult struct {
	Outcome   string `json:"outcome"`
	EventType string `json:"event_type,omitempty"`
}

const (
	IngestProcessed = "processed"
	IngestDuplicate = "duplicate"
	IngestIgnored   = "ignored"
)

type WebhookService interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
}

type IntentRepository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByFingerprint(ctx context.Context, db *gorm.DB, ownerID, fingerprint string) (*PaymentIntent, error)
	FindByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*PaymentIntent, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, signature *string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	AttachGatewayOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, order *GatewayOrder, at time.Time) (bool, error)
	ReclaimReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, at, staleBefore time.Time) (bool, error)
	DeleteReservation(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type WebhookRepository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (InsertOutcome, error)
	FindEvent(ctx context.Context, db *gorm.DB, id string) (*WebhookEvent, error)
	Claim(ctx context.Context, db *gorm.DB, id string, at, staleBefore time.Time) (bool, error)
	Release(ctx context.Context, db *gorm.DB, id string) error
	Complete(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
}

var (
	ErrInvalidOwner          = errors.New("invalid_owner")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
	ErrAmountMismatch        = errors.New("amount_mismatch")
	ErrOrderNotPayable       = errors.New("order_not_payable")
	ErrIntentNotFound        = errors.New("payment_intent_not_found")
	ErrIntentInProgress      = errors.New("payment_intent_in_progress")
	ErrInvalidVerification   = errors.New("invalid_verification")
	ErrGatewayNotConfigured  = errors.New("gateway_not_configured")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrGatewayRejected       = errors.New("gateway_rejected")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrIntentClosed          = errors.New("payment_intent_closed")
	ErrCaptureMismatch       = errors.New("captured_amount_mismatch")
	ErrIntentNotReady        = errors.New("payment_intent_not_ready")
)
