package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/shop/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Shop, error) {
	var shop domain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, currency, receivable_balance, created_at, updated_at
		 FROM shops WHERE id = ?`,
		id,
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

// IncrementReceivable adds amount to the shop balance. It must run inside the
// same transaction as the status change that earned it.
func (r *repo) IncrementReceivable(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE shops
		 SET receivable_balance = receivable_balance + ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		at,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrShopNotFound
	}
	return nil
}
