package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/testutil"
	"github.com/smallbiznis/printdesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newIntent(id snowflake.ID, gatewayOrderID string, fingerprint *string, now time.Time) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:                     id,
		OwnerID:                "user-1",
		AmountMinor:            4500,
		Currency:               "INR",
		IdempotencyFingerprint: fingerprint,
		Gateway:                "razorpay",
		GatewayOrderID:         gatewayOrderID,
		GatewayOrder:           datatypes.JSON(`{"id":"` + gatewayOrderID + `"}`),
		Receipt:                "rcpt",
		Status:                 domain.IntentStatusCreated,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func TestIntentFingerprintIsUniquePerOwner(t *testing.T) {
	gdb := testutil.OpenDB(t)
	repo := ProvideIntents()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fp := "abc"

	require.NoError(t, repo.Insert(ctx, gdb, newIntent(1, "order_1", &fp, now)))

	err := repo.Insert(ctx, gdb, newIntent(2, "order_2", &fp, now))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	require.NoError(t, repo.Insert(ctx, gdb, newIntent(3, "order_3", nil, now)))
	require.NoError(t, repo.Insert(ctx, gdb, newIntent(4, "order_4", nil, now)))

	found, err := repo.FindByFingerprint(ctx, gdb, "user-1", fp)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "order_1", found.GatewayOrderID)

	missing, err := repo.FindByFingerprint(ctx, gdb, "user-2", fp)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntentStatusMovesForwardOnly(t *testing.T) {
	gdb := testutil.OpenDB(t)
	repo := ProvideIntents()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, gdb, newIntent(1, "order_1", nil, now)))

	sig := "sig"
	ok, err := repo.MarkPaid(ctx, gdb, 1, "pay_1", &sig, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(ctx, gdb, 1, "pay_1", nil, now)
	require.NoError(t, err)
	assert.False(t, ok, "paid is sticky")

	ok, err = repo.MarkFailed(ctx, gdb, 1, now)
	require.NoError(t, err)
	assert.False(t, ok, "paid intents never fail")

	intent, err := repo.FindByGatewayOrderID(ctx, gdb, "order_1")
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentStatusPaid, intent.Status)
	require.NotNil(t, intent.Signature)
	assert.Equal(t, "sig", *intent.Signature)
	require.NotNil(t, intent.PaidAt)
}

func TestFailedIntentIsNotPaid(t *testing.T) {
	gdb := testutil.OpenDB(t)
	repo := ProvideIntents()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, gdb, newIntent(2, "order_2", nil, now)))

	ok, err := repo.MarkFailed(ctx, gdb, 2, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(ctx, gdb, 2, "pay_2", nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "failed is terminal")

	intent, err := repo.FindByGatewayOrderID(ctx, gdb, "order_2")
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentStatusFailed, intent.Status)
	assert.Nil(t, intent.PaidAt)
}

func TestWebhookInsertReportsDuplicate(t *testing.T) {
	gdb := testutil.OpenDB(t)
	repo := ProvideWebhooks()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	event := func() *domain.WebhookEvent {
		return &domain.WebhookEvent{
			ID:         "hash-1",
			Provider:   "razorpay",
			EventType:  "payment.captured",
			Status:     domain.WebhookStatusReceived,
			Payload:    datatypes.JSON(`{"event":"payment.captured"}`),
			ReceivedAt: now,
		}
	}

	outcome, err := repo.InsertEvent(ctx, gdb, event())
	require.NoError(t, err)
	assert.Equal(t, domain.InsertCreated, outcome)

	for i := 0; i < 3; i++ {
		outcome, err = repo.InsertEvent(ctx, gdb, event())
		require.NoError(t, err)
		assert.Equal(t, domain.InsertDuplicate, outcome)
	}
	testutil.AssertCount(t, gdb, "SELECT COUNT(*) FROM webhook_events", 1)

	processedAt := now.Add(time.Second)
	orderID := snowflake.ID(77)
	done := event()
	done.Status = domain.WebhookStatusProcessed
	done.OrderID = &orderID
	done.ProcessedAt = &processedAt
	require.NoError(t, repo.Complete(ctx, gdb, done))

	stored, err := repo.FindEvent(ctx, gdb, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.WebhookStatusProcessed, stored.Status)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, orderID, *stored.OrderID)

	missing, err := repo.FindEvent(ctx, gdb, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
