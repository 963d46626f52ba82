package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/clock"
	shopdomain "github.com/smallbiznis/printdesk/internal/shop/domain"
	"gorm.io/gorm"
)

const (
	defaultShopName     = "Main Print Shop"
	defaultShopCurrency = "INR"
)

// EnsureDefaultShop seeds a single shop for local and demo deployments. It
// is a no-op when a shop with the same name already exists.
func EnsureDefaultShop(ctx context.Context, db *gorm.DB, node *snowflake.Node, clk clock.Clock, name, currency string) (shopdomain.Shop, error) {
	if db == nil {
		return shopdomain.Shop{}, errors.New("seed database handle is required")
	}
	if node == nil {
		return shopdomain.Shop{}, errors.New("seed id generator is required")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultShopName
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultShopCurrency
	}

	var shop shopdomain.Shop
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Where("name = ?", name).First(&shop).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := clk.Now().UTC()
		shop = shopdomain.Shop{
			ID:        node.Generate(),
			Name:      name,
			Currency:  currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&shop).Error
	})
	return shop, err
}
