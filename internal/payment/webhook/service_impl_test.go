package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/config"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
	orderrepository "github.com/smallbiznis/printdesk/internal/order/repository"
	orderservice "github.com/smallbiznis/printdesk/internal/order/service"
	"github.com/smallbiznis/printdesk/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/printdesk/internal/payment/service"
	"github.com/smallbiznis/printdesk/internal/payment/signature"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
	pricingrepository "github.com/smallbiznis/printdesk/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/printdesk/internal/pricing/service"
	shoprepository "github.com/smallbiznis/printdesk/internal/shop/repository"
	"github.com/smallbiznis/printdesk/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, auditdomain.Entry) {}

type fixture struct {
	db      *gorm.DB
	svc     domain.WebhookService
	orderID snowflake.ID
	now     time.Time
}

// slowIntents stretches ApplyEvent so concurrent deliveries overlap.
type slowIntents struct {
	domain.IntentService
	delay time.Duration
}

func (s slowIntents) ApplyEvent(ctx context.Context, event *domain.PaymentEvent) (domain.ApplyResult, error) {
	time.Sleep(s.delay)
	return s.IntentService.ApplyEvent(ctx, event)
}

func setup(t *testing.T, secret string) fixture {
	return setupWithDelay(t, secret, 0)
}

func setupWithDelay(t *testing.T, secret string, applyDelay time.Duration) fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO shops (id, name, currency, receivable_balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		7, "Campus Prints", "INR", 0, now, now,
	).Error; err != nil {
		t.Fatalf("insert shop: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(now)
	log := zap.NewNop()

	pricing := pricingservice.NewService(pricingservice.Params{
		DB:   db,
		Log:  log,
		Repo: pricingrepository.Provide(),
		Defaults: config.NewStaticPriceTableHolder(pricingdomain.PriceTable{
			Currency: "INR",
			Rates: pricingdomain.RateSheet{
				pricingdomain.PaperSizeA4: {pricingdomain.DuplexSingle: {
					pricingdomain.ColorModeBW: decimal.NewFromInt(2),
				}},
			},
			ConvenienceFee: decimal.NewFromInt(5),
		}),
	})
	orders := orderservice.NewService(orderservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     orderrepository.Provide(),
		ShopRepo: shoprepository.Provide(),
		Pricing:  pricing,
		Recorder: nopRecorder{},
		Clock:    fake,
	})
	order, err := orders.Create(context.Background(), orderdomain.CreateOrderRequest{
		OwnerID:   "user-1",
		ShopID:    7,
		FileRef:   "uploads/a.pdf",
		PageCount: 10,
		Settings: pricingdomain.PrintSettings{
			PaperSize: pricingdomain.PaperSizeA4,
			ColorMode: pricingdomain.ColorModeBW,
			Copies:    2,
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	intentRepo := repository.ProvideIntents()
	if err := intentRepo.Insert(context.Background(), db, &domain.PaymentIntent{
		ID:             node.Generate(),
		OwnerID:        "user-1",
		OrderID:        &order.ID,
		AmountMinor:    4500,
		Currency:       "INR",
		Gateway:        "razorpay",
		GatewayOrderID: "order_1",
		GatewayOrder:   datatypes.JSON(`{"id":"order_1"}`),
		Receipt:        "rcpt",
		Status:         domain.IntentStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("insert intent: %v", err)
	}

	gateway, err := razorpay.NewFactory().NewAdapter(domain.AdapterConfig{WebhookSecret: secret})
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	intents := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     intentRepo,
		Gateway:  gateway,
		Orders:   orders,
		Recorder: nopRecorder{},
		Clock:    fake,
	})
	dedupe := NewDeduplicator(DeduplicatorParams{
		DB:    db,
		Log:   log,
		Repo:  repository.ProvideWebhooks(),
		Clock: fake,
	})
	svc := NewService(Params{
		Log:      log,
		Gateway:  gateway,
		Intents:  slowIntents{IntentService: intents, delay: applyDelay},
		Dedupe:   dedupe,
		Recorder: nopRecorder{},
	})
	return fixture{db: db, svc: svc, orderID: order.ID, now: now}
}

func captured(paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"amount":4500,"currency":"INR","status":"captured","order_id":"order_1"}}}}`, paymentID))
}

func signed(body []byte) http.Header {
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", signature.Compute(webhookSecret, body))
	return headers
}

func TestRepeatedDeliveryProcessedOnce(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	const deliveries = 5
	outcomes := map[string]int{}
	for i := 0; i < deliveries; i++ {
		res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		outcomes[res.Outcome]++
	}

	if outcomes[domain.IngestProcessed] != 1 || outcomes[domain.IngestDuplicate] != deliveries-1 {
		t.Fatalf("unexpected outcomes: %v", outcomes)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events WHERE status = 'processed'", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM order_history WHERE order_id = ?", 1, f.orderID)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 45)
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_intents WHERE status = 'paid' AND payment_id = 'pay_1'", 1)
}

func TestConcurrentDeliveriesIncrementOnce(t *testing.T) {
	f := setupWithDelay(t, webhookSecret, 50*time.Millisecond)
	body := captured("pay_1")

	const deliveries = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		counts = map[string]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			counts[res.Outcome]++
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if counts[domain.IngestProcessed] != 1 || counts[domain.IngestDuplicate] != deliveries-1 {
		t.Fatalf("expected one processed and %d duplicates, got %v", deliveries-1, counts)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM order_history WHERE order_id = ?", 1, f.orderID)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 45)
}

func TestDistinctEventsForSameOrderConverge(t *testing.T) {
	f := setup(t, webhookSecret)

	first := captured("pay_1")
	paid := []byte(`{"entity":"event","event":"order.paid","payload":{"order":{"entity":{"id":"order_1","amount_paid":4500,"currency":"INR","status":"paid"}}}}`)

	for _, body := range [][]byte{first, paid} {
		res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if res.Outcome != domain.IngestProcessed {
			t.Fatalf("expected processed, got %s", res.Outcome)
		}
	}

	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events", 2)
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM order_history WHERE order_id = ?", 1, f.orderID)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 45)
}

func TestRejectsBadSignature(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	headers := signed(body)
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-3] ^= 1

	_, err := f.svc.Ingest(context.Background(), "razorpay", tampered, headers)
	if err != domain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	_, err = f.svc.Ingest(context.Background(), "razorpay", body, http.Header{})
	if err != domain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature without header, got %v", err)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events", 0)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 0)
}

func TestUnknownEventIsIgnoredAndDeduplicated(t *testing.T) {
	f := setup(t, webhookSecret)
	body := []byte(`{"entity":"event","event":"refund.created","payload":{}}`)

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != domain.IngestIgnored || res.EventType != "refund.created" {
		t.Fatalf("unexpected result: %+v", res)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events WHERE status = 'ignored' AND event_type = 'refund.created'", 1)

	res, err = f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("repeat ingest: %v", err)
	}
	if res.Outcome != domain.IngestDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Outcome)
	}
}

func TestUnknownGatewayOrderIsRetried(t *testing.T) {
	f := setup(t, webhookSecret)
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","amount":4500,"order_id":"order_late"}}}}`)

	_, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if !errors.Is(err, domain.ErrIntentNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events WHERE status = 'received' AND claimed_at IS NULL", 1)

	if err := f.db.Exec(
		`INSERT INTO payment_intents (
			id, owner_id, amount_minor, currency, gateway, gateway_order_id,
			gateway_order, receipt, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		501, "user-1", 4500, "INR", "razorpay", "order_late", "{}", "rcpt-late", "created", f.now, f.now,
	).Error; err != nil {
		t.Fatalf("insert intent: %v", err)
	}

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Outcome != domain.IngestProcessed {
		t.Fatalf("expected retried delivery to be processed, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_intents WHERE id = 501 AND status = 'paid'", 1)
}

func TestCaptureAfterFailureIsIgnored(t *testing.T) {
	f := setup(t, webhookSecret)
	failed := []byte(`{"entity":"event","event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_0","amount":4500,"currency":"INR","status":"failed","order_id":"order_1","error_description":"declined"}}}}`)
	late := captured("pay_1")

	res, err := f.svc.Ingest(context.Background(), "razorpay", failed, signed(failed))
	if err != nil || res.Outcome != domain.IngestProcessed {
		t.Fatalf("failed event: res=%+v err=%v", res, err)
	}
	res, err = f.svc.Ingest(context.Background(), "razorpay", late, signed(late))
	if err != nil {
		t.Fatalf("late capture: %v", err)
	}
	if res.Outcome != domain.IngestIgnored {
		t.Fatalf("expected late capture to be ignored, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM payment_intents WHERE status = 'failed'", 1)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 0)
}

func TestUnderpaidCaptureIsIgnored(t *testing.T) {
	f := setup(t, webhookSecret)
	body := []byte(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":100,"currency":"INR","status":"captured","order_id":"order_1"}}}}`)

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != domain.IngestIgnored {
		t.Fatalf("expected ignored, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM order_history WHERE order_id = ?", 0, f.orderID)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 0)
}

func TestResumesUnfinishedDelivery(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	if err := f.db.Exec(
		`INSERT INTO webhook_events (id, provider, event_type, status, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		DeliveryKey(body), "razorpay", "payment.captured", "received", string(body), time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != domain.IngestProcessed {
		t.Fatalf("expected resumed delivery to be processed, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events WHERE status = 'processed'", 1)
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 45)
}

func TestInFlightDeliveryIsDuplicate(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	if err := f.db.Exec(
		`INSERT INTO webhook_events (id, provider, event_type, status, payload, received_at, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		DeliveryKey(body), "razorpay", "payment.captured", "received", string(body), f.now, f.now.Add(-30*time.Second),
	).Error; err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != domain.IngestDuplicate {
		t.Fatalf("expected delivery under a live claim to be a duplicate, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 0)
}

func TestLapsedClaimIsResumed(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	if err := f.db.Exec(
		`INSERT INTO webhook_events (id, provider, event_type, status, payload, received_at, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		DeliveryKey(body), "razorpay", "payment.captured", "received", string(body), f.now.Add(-time.Hour), f.now.Add(-10*time.Minute),
	).Error; err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	res, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != domain.IngestProcessed {
		t.Fatalf("expected lapsed claim to be resumed, got %s", res.Outcome)
	}
	testutil.AssertCount(t, f.db, "SELECT receivable_balance FROM shops WHERE id = 7", 45)
}

func TestMissingWebhookSecret(t *testing.T) {
	f := setup(t, "")
	body := captured("pay_1")

	_, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != domain.ErrGatewayNotConfigured {
		t.Fatalf("expected not configured, got %v", err)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events", 0)
}

func TestUnknownProvider(t *testing.T) {
	f := setup(t, webhookSecret)
	body := captured("pay_1")

	if _, err := f.svc.Ingest(context.Background(), "stripe", body, signed(body)); err != domain.ErrProviderNotFound {
		t.Fatalf("expected provider not found, got %v", err)
	}
}

func TestMalformedVerifiedPayload(t *testing.T) {
	f := setup(t, webhookSecret)
	body := []byte(`{"payload":{}}`)

	_, err := f.svc.Ingest(context.Background(), "razorpay", body, signed(body))
	if err != domain.ErrInvalidEvent {
		t.Fatalf("expected invalid event, got %v", err)
	}
	testutil.AssertCount(t, f.db, "SELECT COUNT(*) FROM webhook_events WHERE status = 'ignored'", 1)
}
