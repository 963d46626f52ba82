package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, node *snowflake.Node, clk clock.Clock, cfg config.Config, prices *config.PriceTableHolder, log *zap.Logger) error {
		if !cfg.SeedDefaultShop {
			return nil
		}
		if cfg.IsProduction() {
			log.Warn("default shop seeding skipped in production")
			return nil
		}
		shop, err := EnsureDefaultShop(context.Background(), db, node, clk, cfg.SeedShopName, prices.Get().Currency)
		if err != nil {
			return err
		}
		log.Info("default shop ready",
			zap.String("shop_id", shop.ID.String()),
			zap.String("name", shop.Name),
		)
		return nil
	}),
)
