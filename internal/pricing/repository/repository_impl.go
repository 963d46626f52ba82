package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/pricing/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindByShopID returns the shop's stored table, or nil when the shop has
// none and the default applies.
func (r *repo) FindByShopID(ctx context.Context, db *gorm.DB, shopID snowflake.ID) (*domain.PriceTable, error) {
	var row struct {
		ShopID     snowflake.ID   `gorm:"column:shop_id"`
		PriceTable datatypes.JSON `gorm:"column:price_table"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT shop_id, price_table FROM shop_price_tables WHERE shop_id = ?`,
		shopID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ShopID == 0 || len(row.PriceTable) == 0 {
		return nil, nil
	}

	var table domain.PriceTable
	if err := json.Unmarshal(row.PriceTable, &table); err != nil {
		return nil, fmt.Errorf("decode price table for shop %s: %w", shopID, err)
	}
	normalized := table.Normalized()
	return &normalized, nil
}
