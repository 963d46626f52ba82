package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/signature"
)

const (
	providerName    = "razorpay"
	defaultBaseURL  = "https://api.razorpay.com"
	defaultTimeout  = 12 * time.Second
	signatureHeader = "X-Razorpay-Signature"
	maxResponseSize = 1 << 20
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

// NewAdapter accepts empty credentials. Operations that need them fail with
// ErrGatewayNotConfigured instead of falling back to a fake flow.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		httpClient:    client,
		baseURL:       baseURL,
		keyID:         strings.TrimSpace(cfg.KeyID),
		keySecret:     strings.TrimSpace(cfg.KeySecret),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}, nil
}

type Adapter struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
}

func (a *Adapter) Provider() string {
	return providerName
}

type createOrderPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderEntity struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.CreateGatewayOrderRequest) (*paymentdomain.GatewayOrder, error) {
	if a.keyID == "" || a.keySecret == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}

	body, err := json.Marshal(createOrderPayload{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal razorpay order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build razorpay request: %w", err)
	}
	httpReq.SetBasicAuth(a.keyID, a.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", paymentdomain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, raw)
	}

	var order orderEntity
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(order.ID) == "" {
		return nil, fmt.Errorf("%w: order id missing", paymentdomain.ErrGatewayUnavailable)
	}

	return &paymentdomain.GatewayOrder{
		ID:          order.ID,
		AmountMinor: order.Amount,
		Currency:    strings.ToUpper(order.Currency),
		Receipt:     order.Receipt,
		Status:      order.Status,
		Raw:         raw,
	}, nil
}

func statusError(status int, raw []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)
	detail := strings.TrimSpace(parsed.Error.Description)
	if detail == "" {
		detail = http.StatusText(status)
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: razorpay %d: %s", paymentdomain.ErrGatewayUnavailable, status, detail)
	}
	return fmt.Errorf("%w: razorpay %d: %s", paymentdomain.ErrGatewayRejected, status, detail)
}

func (a *Adapter) VerifyPayment(gatewayOrderID, gatewayPaymentID, sig string) (bool, error) {
	return signature.VerifyPayment(a.keySecret, gatewayOrderID, gatewayPaymentID, sig)
}

func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header) (bool, error) {
	if a.webhookSecret == "" {
		return false, signature.ErrMissingSecret
	}
	provided := strings.TrimSpace(headers.Get(signatureHeader))
	if provided == "" {
		return false, nil
	}
	return signature.VerifyWebhook(a.webhookSecret, payload, provided)
}

type webhookEvent struct {
	Entity    string         `json:"entity"`
	Event     string         `json:"event"`
	CreatedAt int64          `json:"created_at"`
	Payload   webhookPayload `json:"payload"`
}

type webhookPayload struct {
	Payment *struct {
		Entity paymentEntity `json:"entity"`
	} `json:"payment"`
	Order *struct {
		Entity orderEntity `json:"entity"`
	} `json:"order"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	OrderID          string `json:"order_id"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// ParseEvent maps a delivery to a canonical event. Unsupported event types
// return ErrEventIgnored together with a partial event carrying the gateway
// event type.
func (a *Adapter) ParseEvent(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	eventType := strings.TrimSpace(event.Event)
	if eventType == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.PaymentEvent{
		Provider:         providerName,
		GatewayEventType: eventType,
		RawPayload:       payload,
	}

	switch eventType {
	case "payment.captured", "order.paid":
		out.Type = paymentdomain.EventTypePaymentSucceeded
	case "payment.failed":
		out.Type = paymentdomain.EventTypePaymentFailed
	default:
		return out, paymentdomain.ErrEventIgnored
	}

	if p := event.Payload.Payment; p != nil {
		out.GatewayPaymentID = strings.TrimSpace(p.Entity.ID)
		out.GatewayOrderID = strings.TrimSpace(p.Entity.OrderID)
		out.AmountMinor = p.Entity.Amount
		out.Currency = strings.ToUpper(strings.TrimSpace(p.Entity.Currency))
		out.ErrorReason = strings.TrimSpace(p.Entity.ErrorDescription)
	}
	if o := event.Payload.Order; o != nil {
		if out.GatewayOrderID == "" {
			out.GatewayOrderID = strings.TrimSpace(o.Entity.ID)
		}
		if out.AmountMinor == 0 {
			out.AmountMinor = o.Entity.AmountPaid
		}
		if out.Currency == "" {
			out.Currency = strings.ToUpper(strings.TrimSpace(o.Entity.Currency))
		}
	}
	if out.GatewayOrderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return out, nil
}
