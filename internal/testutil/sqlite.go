// Package testutil provides an in-memory SQLite database carrying the
// printdesk schema for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations using types SQLite understands.
var Schema = []string{
	`CREATE TABLE shops (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		receivable_balance BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE shop_price_tables (
		shop_id BIGINT PRIMARY KEY,
		price_table TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		shop_id BIGINT NOT NULL,
		file_ref TEXT NOT NULL,
		page_count INTEGER NOT NULL,
		paper_size TEXT NOT NULL,
		duplex TEXT NOT NULL,
		color_mode TEXT NOT NULL,
		binding TEXT NOT NULL,
		copies INTEGER NOT NULL,
		extra_color_pages INTEGER NOT NULL DEFAULT 0,
		emergency BOOLEAN NOT NULL DEFAULT FALSE,
		after_dark BOOLEAN NOT NULL DEFAULT FALSE,
		total_cost BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_history (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		owner_id TEXT NOT NULL,
		shop_id BIGINT NOT NULL,
		file_ref TEXT NOT NULL,
		page_count INTEGER NOT NULL,
		paper_size TEXT NOT NULL,
		duplex TEXT NOT NULL,
		color_mode TEXT NOT NULL,
		binding TEXT NOT NULL,
		copies INTEGER NOT NULL,
		extra_color_pages INTEGER NOT NULL DEFAULT 0,
		emergency BOOLEAN NOT NULL DEFAULT FALSE,
		after_dark BOOLEAN NOT NULL DEFAULT FALSE,
		total_cost BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		order_created_at DATETIME NOT NULL,
		history_timestamp DATETIME NOT NULL
	)`,
	`CREATE INDEX ix_order_history_order_id ON order_history(order_id)`,
	`CREATE TABLE payment_intents (
		id BIGINT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		order_id BIGINT,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		idempotency_fingerprint TEXT,
		gateway TEXT NOT NULL,
		gateway_order_id TEXT,
		gateway_order TEXT NOT NULL,
		receipt TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_id TEXT,
		signature TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		paid_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_intents_gateway_order_id ON payment_intents(gateway_order_id)`,
	`CREATE UNIQUE INDEX ux_payment_intents_owner_fingerprint ON payment_intents(owner_id, idempotency_fingerprint)`,
	`CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		order_id BIGINT,
		payment_intent_id BIGINT,
		gateway_payment_id TEXT,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		claimed_at DATETIME,
		processed_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns a fresh shared-cache in-memory database with Schema
// applied. The pool is pinned to one connection so concurrent tests
// serialize on it the way row locks serialize them on postgres.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// AssertCount fails the test when query does not return expected.
func AssertCount(t testing.TB, db *gorm.DB, query string, expected int64, args ...any) {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("%s: expected %d, got %d", query, expected, count)
	}
}
