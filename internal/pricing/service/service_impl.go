package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/config"
	"github.com/smallbiznis/printdesk/internal/pricing/domain"
	"github.com/smallbiznis/printdesk/internal/pricing/engine"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Defaults *config.PriceTableHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	defaults *config.PriceTableHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		repo:     p.Repo,
		defaults: p.Defaults,
	}
}

func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if req.ShopID == 0 {
		return domain.Quote{}, domain.ErrInvalidShop
	}
	settings := req.Settings
	if err := domain.ValidateSettings(&settings, req.PageCount); err != nil {
		return domain.Quote{}, err
	}

	table, err := s.PriceTable(ctx, req.ShopID)
	if err != nil {
		return domain.Quote{}, err
	}

	breakdown := engine.Calculate(settings, req.PageCount, table)
	if breakdown.FeeTierMissed {
		s.log.Warn("page count falls between convenience fee tiers, fee waived",
			zap.String("shop_id", req.ShopID.String()),
			zap.Int("page_count", req.PageCount),
		)
	}

	return domain.Quote{
		ShopID:    req.ShopID,
		Currency:  table.Currency,
		PageCount: req.PageCount,
		Settings:  settings,
		Breakdown: breakdown,
		Total:     breakdown.Total,
	}, nil
}

// PriceTable resolves the shop's own table, falling back to the configured
// default.
func (s *Service) PriceTable(ctx context.Context, shopID snowflake.ID) (domain.PriceTable, error) {
	table, err := s.repo.FindByShopID(ctx, s.db, shopID)
	if err != nil {
		return domain.PriceTable{}, err
	}
	if table != nil {
		return *table, nil
	}
	if s.defaults == nil {
		return config.DefaultPriceTable(), nil
	}
	return s.defaults.Get(), nil
}
