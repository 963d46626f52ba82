package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	paymentdomain "github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/signature"
)

func newAdapter(t *testing.T, baseURL string, cfg paymentdomain.AdapterConfig) *Adapter {
	t.Helper()
	cfg.BaseURL = baseURL
	gw, err := NewFactory().NewAdapter(cfg)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return gw.(*Adapter)
}

func TestCreateOrder(t *testing.T) {
	var (
		gotAuthUser string
		gotAuthPass string
		gotIdem     string
		gotBody     createOrderPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		gotIdem = r.Header.Get("Idempotency-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Nx1","entity":"order","amount":4500,"amount_paid":0,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL, paymentdomain.AdapterConfig{KeyID: "rzp_key", KeySecret: "secret"})
	order, err := adapter.CreateOrder(context.Background(), paymentdomain.CreateGatewayOrderRequest{
		AmountMinor:    4500,
		Currency:       "INR",
		Receipt:        "rcpt_1",
		IdempotencyKey: "fp-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_Nx1" || order.AmountMinor != 4500 || order.Status != "created" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(order.Raw) == 0 {
		t.Fatalf("expected raw payload to be kept")
	}
	if gotAuthUser != "rzp_key" || gotAuthPass != "secret" {
		t.Fatalf("unexpected basic auth %q:%q", gotAuthUser, gotAuthPass)
	}
	if gotIdem != "fp-1" {
		t.Fatalf("expected idempotency header, got %q", gotIdem)
	}
	if gotBody.Amount != 4500 || gotBody.Currency != "INR" || gotBody.Receipt != "rcpt_1" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rejected", status: http.StatusBadRequest, want: paymentdomain.ErrGatewayRejected},
		{name: "unauthorized", status: http.StatusUnauthorized, want: paymentdomain.ErrGatewayRejected},
		{name: "server error", status: http.StatusBadGateway, want: paymentdomain.ErrGatewayUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount invalid"}}`))
			}))
			defer srv.Close()

			adapter := newAdapter(t, srv.URL, paymentdomain.AdapterConfig{KeyID: "k", KeySecret: "s"})
			_, err := adapter.CreateOrder(context.Background(), paymentdomain.CreateGatewayOrderRequest{AmountMinor: 100, Currency: "INR"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateOrderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	adapter := newAdapter(t, url, paymentdomain.AdapterConfig{KeyID: "k", KeySecret: "s"})
	_, err := adapter.CreateOrder(context.Background(), paymentdomain.CreateGatewayOrderRequest{AmountMinor: 100, Currency: "INR"})
	if !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCreateOrderWithoutCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	adapter := newAdapter(t, srv.URL, paymentdomain.AdapterConfig{})
	_, err := adapter.CreateOrder(context.Background(), paymentdomain.CreateGatewayOrderRequest{AmountMinor: 100, Currency: "INR"})
	if !errors.Is(err, paymentdomain.ErrGatewayNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if called {
		t.Fatalf("gateway must not be called without credentials")
	}
}

func TestVerifyWebhookHeader(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	adapter := newAdapter(t, "", paymentdomain.AdapterConfig{WebhookSecret: "whsec"})

	headers := http.Header{}
	headers.Set(signatureHeader, signature.Compute("whsec", body))
	if ok, err := adapter.VerifyWebhook(body, headers); err != nil || !ok {
		t.Fatalf("expected valid webhook, ok=%v err=%v", ok, err)
	}
	if ok, err := adapter.VerifyWebhook(body, http.Header{}); err != nil || ok {
		t.Fatalf("expected missing header to fail, ok=%v err=%v", ok, err)
	}

	unconfigured := newAdapter(t, "", paymentdomain.AdapterConfig{})
	if _, err := unconfigured.VerifyWebhook(body, headers); !errors.Is(err, signature.ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	adapter := newAdapter(t, "", paymentdomain.AdapterConfig{})

	captured := []byte(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":4500,"currency":"inr","status":"captured","order_id":"order_1"}}}}`)
	event, err := adapter.ParseEvent(captured)
	if err != nil {
		t.Fatalf("parse captured: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentSucceeded || event.GatewayOrderID != "order_1" || event.GatewayPaymentID != "pay_1" || event.Currency != "INR" {
		t.Fatalf("unexpected captured event: %+v", event)
	}

	paid := []byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_2","amount_paid":900,"currency":"INR","status":"paid"}}}}`)
	event, err = adapter.ParseEvent(paid)
	if err != nil {
		t.Fatalf("parse order.paid: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentSucceeded || event.GatewayOrderID != "order_2" || event.AmountMinor != 900 {
		t.Fatalf("unexpected order.paid event: %+v", event)
	}

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_3","order_id":"order_3","error_description":"card declined"}}}}`)
	event, err = adapter.ParseEvent(failed)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentFailed || event.ErrorReason != "card declined" {
		t.Fatalf("unexpected failed event: %+v", event)
	}

	event, err = adapter.ParseEvent([]byte(`{"event":"refund.created","payload":{}}`))
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored, got %v", err)
	}
	if event == nil || event.GatewayEventType != "refund.created" {
		t.Fatalf("expected partial event for ignored type, got %+v", event)
	}

	if _, err := adapter.ParseEvent([]byte(`not json`)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := adapter.ParseEvent([]byte(`{"event":"payment.captured","payload":{}}`)); !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event without order id, got %v", err)
	}
}
