package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/printdesk/internal/order/domain"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
	"github.com/smallbiznis/printdesk/internal/testutil"
)

func sampleOrder(now time.Time) *domain.Order {
	return &domain.Order{
		ID:        101,
		OwnerID:   "user-1",
		ShopID:    7,
		FileRef:   "uploads/thesis.pdf",
		PageCount: 10,
		PaperSize: pricingdomain.PaperSizeA4,
		Duplex:    pricingdomain.DuplexSingle,
		ColorMode: pricingdomain.ColorModeBW,
		Binding:   pricingdomain.BindingNone,
		Copies:    2,
		TotalCost: 45,
		Currency:  "INR",
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInsertAndFind(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Insert(ctx, db, sampleOrder(now)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.FindByID(ctx, db, 101)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.TotalCost != 45 || got.Status != domain.StatusProcessing || got.OwnerID != "user-1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	missing, err := repo.FindByID(ctx, db, 999)
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing order, got %+v", missing)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Insert(ctx, db, sampleOrder(now)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := repo.CompareAndSetStatus(ctx, db, 101, domain.StatusProcessing, domain.StatusPrinting, now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected first swap to apply, ok=%v err=%v", ok, err)
	}
	ok, err = repo.CompareAndSetStatus(ctx, db, 101, domain.StatusProcessing, domain.StatusCompleted, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if ok {
		t.Fatalf("expected stale swap to be rejected")
	}

	testutil.AssertCount(t, db, "SELECT COUNT(*) FROM orders WHERE id = ? AND status = ?", 1, 101, "printing")
}

func TestHistoryOrdering(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := sampleOrder(now)

	first := domain.Snapshot(1, *order, now.Add(time.Hour))
	first.Status = domain.StatusCompleted
	second := domain.Snapshot(2, *order, now.Add(2*time.Hour))
	second.Status = domain.StatusCancelled

	for _, rec := range []*domain.HistoryRecord{&second, &first} {
		if err := repo.InsertHistory(ctx, db, rec); err != nil {
			t.Fatalf("insert history: %v", err)
		}
	}

	items, err := repo.ListHistory(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records, got %d", len(items))
	}
	if items[0].ID != 1 || items[1].ID != 2 {
		t.Fatalf("expected chronological order, got %d then %d", items[0].ID, items[1].ID)
	}
	if !items[0].OrderCreatedAt.Equal(now) {
		t.Fatalf("expected order creation time to be preserved, got %s", items[0].OrderCreatedAt)
	}
}
