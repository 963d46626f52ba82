package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookRepo struct{}

func ProvideWebhooks() domain.WebhookRepository {
	return &webhookRepo{}
}

// InsertEvent is create-only on the delivery hash. A collision is reported as
// InsertDuplicate, never as an error.
func (r *webhookRepo) InsertEvent(ctx context.Context, gdb *gorm.DB, event *domain.WebhookEvent) (domain.InsertOutcome, error) {
	res := gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return domain.InsertDuplicate, nil
		}
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.InsertDuplicate, nil
	}
	return domain.InsertCreated, nil
}

func (r *webhookRepo) FindEvent(ctx context.Context, gdb *gorm.DB, id string) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	err := gdb.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == "" {
		return nil, nil
	}
	return &event, nil
}

// Claim takes over a delivery that is still received and whose previous
// claim is missing or older than staleBefore. Exactly one caller wins.
func (r *webhookRepo) Claim(ctx context.Context, gdb *gorm.DB, id string, at, staleBefore time.Time) (bool, error) {
	res := gdb.WithContext(ctx).Exec(
		`UPDATE webhook_events SET claimed_at = ?
		 WHERE id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)`,
		at,
		id,
		domain.WebhookStatusReceived,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release drops the claim of an unfinished delivery so the next retry can
// take it immediately.
func (r *webhookRepo) Release(ctx context.Context, gdb *gorm.DB, id string) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE webhook_events SET claimed_at = NULL WHERE id = ? AND status = ?`,
		id,
		domain.WebhookStatusReceived,
	).Error
}

// Complete stores the final status and links of a delivery that is still
// marked received.
func (r *webhookRepo) Complete(ctx context.Context, gdb *gorm.DB, event *domain.WebhookEvent) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, event_type = ?, order_id = ?, payment_intent_id = ?,
			gateway_payment_id = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		event.Status,
		event.EventType,
		event.OrderID,
		event.PaymentIntentID,
		event.GatewayPaymentID,
		event.ProcessedAt,
		event.ID,
		domain.WebhookStatusReceived,
	).Error
}
