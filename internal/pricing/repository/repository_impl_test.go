package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/printdesk/internal/pricing/domain"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:pricing_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Exec(`CREATE TABLE shop_price_tables (
		shop_id BIGINT PRIMARY KEY,
		price_table TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestFindByShopID(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	shopID := snowflake.ID(42)

	payload := `{"currency":"inr","rates":{"a4":{"single":{"bw":"2","color":"6"}}},"bindings":{"spiral":"30"},"convenience_fee":"5"}`
	if err := db.Exec(`INSERT INTO shop_price_tables (shop_id, price_table, updated_at) VALUES (?, ?, ?)`,
		shopID, payload, time.Now().UTC()).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	table, err := Provide().FindByShopID(ctx, db, shopID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if table == nil {
		t.Fatalf("expected table")
	}
	if table.Currency != "INR" {
		t.Fatalf("expected INR, got %q", table.Currency)
	}
	if got := table.Rates.Rate(domain.PaperSizeA4, domain.DuplexSingle, domain.ColorModeColor); !got.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected color rate 6, got %s", got)
	}
}

func TestFindByShopIDMissing(t *testing.T) {
	table, err := Provide().FindByShopID(context.Background(), setupDB(t), snowflake.ID(1))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if table != nil {
		t.Fatalf("expected nil table, got %+v", table)
	}
}
