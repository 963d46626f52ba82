package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/observability/logger"
	"github.com/smallbiznis/printdesk/internal/observability/metrics"
	"github.com/smallbiznis/printdesk/internal/order/domain"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
	shopdomain "github.com/smallbiznis/printdesk/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	ShopRepo shopdomain.Repository
	Pricing  pricingdomain.Service
	Recorder auditdomain.Recorder
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	shopRepo shopdomain.Repository
	pricing  pricingdomain.Service
	recorder auditdomain.Recorder
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		shopRepo: p.ShopRepo,
		pricing:  p.Pricing,
		recorder: p.Recorder,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (pricingdomain.Quote, error) {
	if _, err := s.loadShop(ctx, req.ShopID); err != nil {
		return pricingdomain.Quote{}, err
	}
	return s.pricing.Quote(ctx, pricingdomain.QuoteRequest{
		ShopID:    req.ShopID,
		PageCount: req.PageCount,
		Settings:  req.Settings,
	})
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return domain.Order{}, domain.ErrInvalidOwner
	}
	fileRef := strings.TrimSpace(req.FileRef)
	if fileRef == "" {
		return domain.Order{}, domain.ErrInvalidFileRef
	}
	shop, err := s.loadShop(ctx, req.ShopID)
	if err != nil {
		return domain.Order{}, err
	}

	quote, err := s.pricing.Quote(ctx, pricingdomain.QuoteRequest{
		ShopID:    req.ShopID,
		PageCount: req.PageCount,
		Settings:  req.Settings,
	})
	if err != nil {
		return domain.Order{}, err
	}

	currency := quote.Currency
	if currency == "" {
		currency = shop.Currency
	}
	now := s.clock.Now()
	settings := quote.Settings
	order := domain.Order{
		ID:              s.genID.Generate(),
		OwnerID:         ownerID,
		ShopID:          shop.ID,
		FileRef:         fileRef,
		PageCount:       quote.PageCount,
		PaperSize:       settings.PaperSize,
		Duplex:          settings.Duplex,
		ColorMode:       settings.ColorMode,
		Binding:         settings.Binding,
		Copies:          settings.Copies,
		ExtraColorPages: settings.ExtraColorPages,
		Emergency:       settings.Emergency,
		AfterDark:       settings.AfterDark,
		TotalCost:       quote.Total,
		Currency:        currency,
		Status:          domain.StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.Order{}, err
	}

	logger.WithOrder(s.log, order.ID.String(), shop.ID.String()).Info("order created",
		zap.Int64("total_cost", order.TotalCost),
		zap.Int("page_count", order.PageCount),
	)
	s.metrics.RecordOrderCreated(ctx, string(order.PaperSize), string(order.ColorMode))
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    ownerID,
		Action:     auditdomain.ActionOrderCreated,
		TargetType: "order",
		TargetID:   order.ID.String(),
		Metadata: map[string]any{
			"shop_id":    shop.ID.String(),
			"total_cost": order.TotalCost,
			"currency":   order.Currency,
		},
	})

	return order, nil
}

// Get returns the order only to its owner. Other callers see it as missing.
func (s *Service) Get(ctx context.Context, ownerID string, id snowflake.ID) (domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if owner := strings.TrimSpace(ownerID); owner != "" && order.OwnerID != owner {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

func (s *Service) ListHistory(ctx context.Context, ownerID string, id snowflake.ID) ([]domain.HistoryRecord, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	items, err := s.repo.ListHistory(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	records := make([]domain.HistoryRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}
	return records, nil
}

// Transition moves an order to target. The read, decision and write happen
// in one transaction against a locked row, and the status update only
// applies when the row still holds the status that was read, so concurrent
// callers racing to the same terminal status produce a single history record
// and a single receivable increment.
func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	if req.OrderID == 0 {
		return domain.TransitionResult{}, domain.ErrInvalidOrder
	}
	if !req.Target.Valid() {
		return domain.TransitionResult{}, domain.ErrInvalidStatus
	}

	var result domain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		result.From = order.Status
		if order.Status == req.Target {
			result.Order = *order
			return nil
		}
		if !order.Status.CanTransitionTo(req.Target) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		swapped, err := s.repo.CompareAndSetStatus(ctx, tx, order.ID, order.Status, req.Target, now)
		if err != nil {
			return err
		}
		if !swapped {
			return domain.ErrConcurrentUpdate
		}
		order.Status = req.Target
		order.UpdatedAt = now

		if req.Target.IsTerminal() {
			record := domain.Snapshot(s.genID.Generate(), *order, now)
			if err := s.repo.InsertHistory(ctx, tx, &record); err != nil {
				return err
			}
		}
		if req.Target == domain.StatusCompleted {
			if err := s.shopRepo.IncrementReceivable(ctx, tx, order.ShopID, order.TotalCost, now); err != nil {
				return err
			}
		}

		result.Order = *order
		result.Applied = true
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			s.log.Error("order transition failed",
				zap.String("order_id", req.OrderID.String()),
				zap.String("target", string(req.Target)),
				zap.Error(err),
			)
		}
		return domain.TransitionResult{}, err
	}

	if !result.Applied {
		return result, nil
	}

	logger.WithOrder(s.log, result.Order.ID.String(), result.Order.ShopID.String()).Info("order transitioned",
		zap.String("from", string(result.From)),
		zap.String("to", string(result.Order.Status)),
	)
	s.metrics.RecordOrderTransition(ctx, string(result.From), string(result.Order.Status))

	metadata := map[string]any{
		"from":    string(result.From),
		"to":      string(result.Order.Status),
		"shop_id": result.Order.ShopID.String(),
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		metadata["reason"] = reason
	}
	if result.Order.Status == domain.StatusCompleted {
		metadata["receivable_increment"] = result.Order.TotalCost
	}
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorType(req.Actor.Type),
		ActorID:    req.Actor.ID,
		Action:     auditdomain.ActionOrderTransitioned,
		TargetType: "order",
		TargetID:   result.Order.ID.String(),
		Metadata:   metadata,
	})

	return result, nil
}

func (s *Service) loadShop(ctx context.Context, id snowflake.ID) (*shopdomain.Shop, error) {
	if id == 0 {
		return nil, pricingdomain.ErrInvalidShop
	}
	shop, err := s.shopRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, shopdomain.ErrShopNotFound
	}
	return shop, nil
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrConcurrentUpdate)
}
