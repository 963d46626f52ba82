package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type intentRepo struct{}

func ProvideIntents() domain.IntentRepository {
	return &intentRepo{}
}

// Insert returns the driver error untouched on a unique violation so callers
// can detect the race with db.IsDuplicateKeyErr. An empty gateway order id is
// stored as NULL: the row is a reservation.
func (r *intentRepo) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (
			id, owner_id, order_id, amount_minor, currency, idempotency_fingerprint,
			gateway, gateway_order_id, gateway_order, receipt, status,
			payment_id, signature, created_at, updated_at, paid_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID,
		intent.OwnerID,
		intent.OrderID,
		intent.AmountMinor,
		intent.Currency,
		intent.IdempotencyFingerprint,
		intent.Gateway,
		nullIfEmpty(intent.GatewayOrderID),
		intent.GatewayOrder,
		intent.Receipt,
		intent.Status,
		intent.PaymentID,
		intent.Signature,
		intent.CreatedAt,
		intent.UpdatedAt,
		intent.PaidAt,
	).Error
}

func (r *intentRepo) FindByFingerprint(ctx context.Context, db *gorm.DB, ownerID, fingerprint string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := db.WithContext(ctx).
		Where("owner_id = ? AND idempotency_fingerprint = ?", ownerID, fingerprint).
		Limit(1).
		Find(&intent).Error
	if err != nil {
		return nil, err
	}
	if intent.ID == 0 {
		return nil, nil
	}
	return &intent, nil
}

func (r *intentRepo) FindByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		Limit(1).
		Find(&intent).Error
	if err != nil {
		return nil, err
	}
	if intent.ID == 0 {
		return nil, nil
	}
	return &intent, nil
}

// AttachGatewayOrder completes a reservation. It reports false when the row
// is no longer a reservation.
func (r *intentRepo) AttachGatewayOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, order *domain.GatewayOrder, at time.Time) (bool, error) {
	raw := datatypes.JSON(order.Raw)
	if len(raw) == 0 {
		raw = datatypes.JSON("{}")
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET gateway_order_id = ?, gateway_order = ?, updated_at = ?
		 WHERE id = ? AND gateway_order_id IS NULL`,
		order.ID,
		raw,
		at,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReclaimReservation hands a reservation abandoned before staleBefore to a
// new caller. Exactly one caller wins.
func (r *intentRepo) ReclaimReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, at, staleBefore time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_intents SET updated_at = ?
		 WHERE id = ? AND gateway_order_id IS NULL AND updated_at < ?`,
		at,
		id,
		staleBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *intentRepo) DeleteReservation(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payment_intents WHERE id = ? AND gateway_order_id IS NULL`,
		id,
	).Error
}

// MarkPaid only moves a created intent. It reports false when the intent is
// already paid or has failed. A nil signature keeps whatever signature is
// stored.
func (r *intentRepo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, signature *string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, payment_id = ?, signature = COALESCE(?, signature),
			paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.IntentStatusPaid,
		paymentID,
		signature,
		at,
		at,
		id,
		domain.IntentStatusCreated,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *intentRepo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.IntentStatusFailed,
		at,
		id,
		domain.IntentStatusCreated,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
