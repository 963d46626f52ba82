package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, owner_id, shop_id, file_ref, page_count, paper_size, duplex,
			color_mode, binding, copies, extra_color_pages, emergency, after_dark,
			total_cost, currency, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OwnerID,
		order.ShopID,
		order.FileRef,
		order.PageCount,
		order.PaperSize,
		order.Duplex,
		order.ColorMode,
		order.Binding,
		order.Copies,
		order.ExtraColorPages,
		order.Emergency,
		order.AfterDark,
		order.TotalCost,
		order.Currency,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

// FindByIDForUpdate takes a row lock on dialects that support it. Callers
// must be inside a transaction.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	query := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).Limit(1).Find(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

// CompareAndSetStatus moves the order from one status to another and reports
// whether this call performed the change.
func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		at,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, record *domain.HistoryRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_history (
			id, order_id, owner_id, shop_id, file_ref, page_count, paper_size,
			duplex, color_mode, binding, copies, extra_color_pages, emergency,
			after_dark, total_cost, currency, status, order_created_at, history_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrderID,
		record.OwnerID,
		record.ShopID,
		record.FileRef,
		record.PageCount,
		record.PaperSize,
		record.Duplex,
		record.ColorMode,
		record.Binding,
		record.Copies,
		record.ExtraColorPages,
		record.Emergency,
		record.AfterDark,
		record.TotalCost,
		record.Currency,
		record.Status,
		record.OrderCreatedAt,
		record.HistoryTimestamp,
	).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*domain.HistoryRecord, error) {
	var items []*domain.HistoryRecord
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("history_timestamp ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
