package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeduplicatorParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.WebhookRepository
	Clock clock.Clock
}

// Deduplicator admits each distinct delivery body once. The raw body hash is
// the key, so a retried delivery collides while distinct events never do.
type Deduplicator struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.WebhookRepository
	clock clock.Clock
}

func NewDeduplicator(p DeduplicatorParams) *Deduplicator {
	return &Deduplicator{
		db:    p.DB,
		log:   p.Log.Named("payment.webhook.dedupe"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func DeliveryKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// claimLease bounds how long a delivery stays owned by an attempt that
// stopped without finishing or releasing it.
const claimLease = 2 * time.Minute

// RecordDelivery stores the delivery as received and claimed by the caller.
// A collision only resumes processing when the caller wins the claim on a
// record whose earlier attempt released it or let its lease lapse. Every
// other collision is a duplicate, including one that is mid-processing.
func (d *Deduplicator) RecordDelivery(ctx context.Context, provider, eventType string, raw []byte) (domain.Delivery, error) {
	now := d.clock.Now()
	event := &domain.WebhookEvent{
		ID:         DeliveryKey(raw),
		Provider:   strings.ToLower(strings.TrimSpace(provider)),
		EventType:  eventType,
		Status:     domain.WebhookStatusReceived,
		Payload:    datatypes.JSON(raw),
		ReceivedAt: now,
		ClaimedAt:  &now,
	}

	outcome, err := d.repo.InsertEvent(ctx, d.db, event)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("record webhook delivery: %w", err)
	}
	if outcome == domain.InsertCreated {
		return domain.Delivery{Outcome: domain.DeliveryNew, Event: event}, nil
	}

	claimed, err := d.repo.Claim(ctx, d.db, event.ID, now, now.Add(-claimLease))
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("claim webhook delivery: %w", err)
	}
	stored, err := d.repo.FindEvent(ctx, d.db, event.ID)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("load webhook delivery: %w", err)
	}
	if stored == nil {
		return domain.Delivery{}, fmt.Errorf("webhook delivery %s vanished after collision", event.ID)
	}
	if claimed {
		d.log.Info("resuming unfinished webhook delivery",
			zap.String("delivery_id", stored.ID),
			zap.String("event_type", stored.EventType),
		)
		return domain.Delivery{Outcome: domain.DeliveryResumed, Event: stored}, nil
	}

	d.log.Info("duplicate webhook delivery",
		zap.String("delivery_id", stored.ID),
		zap.String("event_type", stored.EventType),
		zap.String("status", string(stored.Status)),
	)
	return domain.Delivery{Outcome: domain.DeliveryDuplicate, Event: stored}, nil
}

// Release gives up the claim after a failed attempt. The record stays
// received.
func (d *Deduplicator) Release(ctx context.Context, event *domain.WebhookEvent) {
	if event == nil {
		return
	}
	if err := d.repo.Release(context.WithoutCancel(ctx), d.db, event.ID); err != nil {
		d.log.Warn("failed to release webhook delivery", zap.String("delivery_id", event.ID), zap.Error(err))
	}
}

// Finish records the terminal status of a delivery.
func (d *Deduplicator) Finish(ctx context.Context, event *domain.WebhookEvent, status domain.WebhookStatus) error {
	now := d.clock.Now()
	event.Status = status
	event.ProcessedAt = &now
	return d.repo.Complete(ctx, d.db, event)
}
