package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/observability/metrics"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Gateway  domain.Gateway
	Intents  domain.IntentService
	Dedupe   *Deduplicator
	Recorder auditdomain.Recorder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	gateway  domain.Gateway
	intents  domain.IntentService
	dedupe   *Deduplicator
	recorder auditdomain.Recorder
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.WebhookService {
	return &Service{
		log:      p.Log.Named("payment.webhook"),
		gateway:  p.Gateway,
		intents:  p.Intents,
		dedupe:   p.Dedupe,
		recorder: p.Recorder,
		metrics:  p.Metrics,
	}
}

// Ingest authenticates, deduplicates and applies one delivery. The signature
// is checked over the exact raw bytes before anything is parsed or stored.
// Errors returned after the delivery was recorded leave it in received so a
// gateway retry resumes it.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (domain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.IngestResult{}, domain.ErrInvalidProvider
	}
	if s.gateway == nil || s.gateway.Provider() != provider {
		return domain.IngestResult{}, domain.ErrProviderNotFound
	}

	valid, err := s.gateway.VerifyWebhook(payload, headers)
	if err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			s.log.Error("webhook secret not configured", zap.String("provider", provider))
			return domain.IngestResult{}, domain.ErrGatewayNotConfigured
		}
		return domain.IngestResult{}, err
	}
	if !valid {
		s.log.Warn("webhook signature mismatch", zap.String("provider", provider))
		return domain.IngestResult{}, domain.ErrInvalidSignature
	}
	if !json.Valid(payload) {
		return domain.IngestResult{}, domain.ErrInvalidPayload
	}

	event, parseErr := s.gateway.ParseEvent(payload)
	eventType := ""
	if event != nil {
		eventType = event.GatewayEventType
	}

	delivery, err := s.dedupe.RecordDelivery(ctx, provider, eventType, payload)
	if err != nil {
		s.log.Error("webhook dedupe store failed", zap.String("provider", provider), zap.Error(err))
		return domain.IngestResult{}, err
	}
	if delivery.Outcome == domain.DeliveryDuplicate {
		s.metrics.RecordWebhookDelivery(ctx, provider, eventType, domain.IngestDuplicate)
		return domain.IngestResult{Outcome: domain.IngestDuplicate, EventType: eventType}, nil
	}

	if parseErr != nil {
		return s.ignore(ctx, provider, delivery.Event, parseErr)
	}

	applied, err := s.intents.ApplyEvent(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEventIgnored),
		errors.Is(err, domain.ErrIntentClosed),
		errors.Is(err, domain.ErrCaptureMismatch):
		return s.ignore(ctx, provider, delivery.Event, err)
	case errors.Is(err, domain.ErrIntentNotFound):
		// The intent may still be committing; the gateway retries the delivery.
		s.dedupe.Release(ctx, delivery.Event)
		s.log.Warn("webhook for unknown gateway order deferred",
			zap.String("delivery_id", delivery.Event.ID),
			zap.String("gateway_order_id", event.GatewayOrderID),
		)
		return domain.IngestResult{}, domain.ErrIntentNotReady
	default:
		s.dedupe.Release(ctx, delivery.Event)
		s.log.Error("webhook processing failed",
			zap.String("delivery_id", delivery.Event.ID),
			zap.String("event_type", eventType),
			zap.String("delivery", string(delivery.Outcome)),
			zap.Error(err),
		)
		return domain.IngestResult{}, err
	}

	record := delivery.Event
	record.EventType = eventType
	record.OrderID = applied.OrderID
	record.PaymentIntentID = &applied.IntentID
	if event.GatewayPaymentID != "" {
		paymentID := event.GatewayPaymentID
		record.GatewayPaymentID = &paymentID
	}
	if err := s.dedupe.Finish(ctx, record, domain.WebhookStatusProcessed); err != nil {
		s.dedupe.Release(ctx, record)
		s.log.Error("failed to mark webhook processed", zap.String("delivery_id", record.ID), zap.Error(err))
		return domain.IngestResult{}, err
	}

	s.metrics.RecordWebhookDelivery(ctx, provider, eventType, domain.IngestProcessed)
	metadata := map[string]any{
		"delivery_id":      record.ID,
		"event_type":       eventType,
		"gateway_order_id": event.GatewayOrderID,
		"delivery":         string(delivery.Outcome),
	}
	if applied.OrderID != nil {
		metadata["order_id"] = applied.OrderID.String()
	}
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeGateway,
		ActorID:    provider,
		Action:     auditdomain.ActionWebhookProcessed,
		TargetType: "payment_intent",
		TargetID:   applied.IntentID.String(),
		Metadata:   metadata,
	})

	return domain.IngestResult{Outcome: domain.IngestProcessed, EventType: eventType}, nil
}

// ignore acknowledges a verified delivery that carries nothing to apply. It
// is stored as ignored so retries are answered as duplicates.
func (s *Service) ignore(ctx context.Context, provider string, record *domain.WebhookEvent, reason error) (domain.IngestResult, error) {
	if err := s.dedupe.Finish(ctx, record, domain.WebhookStatusIgnored); err != nil {
		s.dedupe.Release(ctx, record)
		s.log.Error("failed to mark webhook ignored", zap.String("delivery_id", record.ID), zap.Error(err))
		return domain.IngestResult{}, err
	}

	s.log.Info("webhook ignored",
		zap.String("delivery_id", record.ID),
		zap.String("event_type", record.EventType),
		zap.String("reason", reason.Error()),
	)
	s.metrics.RecordWebhookDelivery(ctx, provider, record.EventType, domain.IngestIgnored)
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeGateway,
		ActorID:    provider,
		Action:     auditdomain.ActionWebhookIgnored,
		TargetType: "webhook_event",
		TargetID:   record.ID,
		Metadata: map[string]any{
			"event_type": record.EventType,
			"reason":     reason.Error(),
		},
	})

	if errors.Is(reason, domain.ErrInvalidPayload) || errors.Is(reason, domain.ErrInvalidEvent) {
		return domain.IngestResult{}, reason
	}
	return domain.IngestResult{Outcome: domain.IngestIgnored, EventType: record.EventType}, nil
}
