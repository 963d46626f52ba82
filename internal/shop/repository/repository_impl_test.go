package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/shop/domain"
	"github.com/smallbiznis/printdesk/internal/testutil"
)

func TestIncrementReceivable(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	repo := Provide()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	shopID := snowflake.ID(101)
	if err := db.Exec(
		`INSERT INTO shops (id, name, currency, receivable_balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		shopID, "Corner Prints", "INR", 10, now, now,
	).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}

	if err := repo.IncrementReceivable(ctx, db, shopID, 45, now.Add(time.Hour)); err != nil {
		t.Fatalf("increment: %v", err)
	}

	shop, err := repo.FindByID(ctx, db, shopID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if shop == nil || shop.ReceivableBalance != 55 {
		t.Fatalf("expected balance 55, got %+v", shop)
	}

	if err := repo.IncrementReceivable(ctx, db, snowflake.ID(999), 1, now); !errors.Is(err, domain.ErrShopNotFound) {
		t.Fatalf("expected ErrShopNotFound, got %v", err)
	}
}

func TestFindByIDMissing(t *testing.T) {
	db := testutil.OpenDB(t)
	shop, err := Provide().FindByID(context.Background(), db, snowflake.ID(7))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if shop != nil {
		t.Fatalf("expected nil shop, got %+v", shop)
	}
}
