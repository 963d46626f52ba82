package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/config"
	"github.com/smallbiznis/printdesk/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/signature"
	"github.com/smallbiznis/printdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxIdempotencyKeyLength = 255

	reservationPoll = 25 * time.Millisecond
	reservationWait = 5 * time.Second
	reservationTTL  = 2 * time.Minute
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cfg      config.Config
	Repo     domain.IntentRepository
	Gateway  domain.Gateway
	Orders   orderdomain.Service
	Recorder auditdomain.Recorder
	Clock    clock.Clock
	Locks    domain.IntentLocker `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	keyID    string
	repo     domain.IntentRepository
	gateway  domain.Gateway
	orders   orderdomain.Service
	recorder auditdomain.Recorder
	clock    clock.Clock
	locks    domain.IntentLocker
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.IntentService {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		keyID:    p.Cfg.Gateway.KeyID,
		repo:     p.Repo,
		gateway:  p.Gateway,
		orders:   p.Orders,
		recorder: p.Recorder,
		clock:    p.Clock,
		locks:    p.Locks,
		metrics:  p.Metrics,
	}
}

// Fingerprint scopes a caller-supplied idempotency key to its owner.
func Fingerprint(ownerID, key string) string {
	sum := sha256.Sum256([]byte(ownerID + "|" + key))
	return hex.EncodeToString(sum[:])
}

func (s *Service) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.IntentResponse, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return domain.IntentResponse{}, domain.ErrInvalidOwner
	}
	if !req.Amount.IsPositive() {
		return domain.IntentResponse{}, domain.ErrInvalidAmount
	}
	amountMinor := req.Amount.Mul(hundred).Round(0).IntPart()
	if amountMinor <= 0 {
		return domain.IntentResponse{}, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.IntentResponse{}, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return domain.IntentResponse{}, domain.ErrInvalidIdempotencyKey
	}

	if req.OrderID != nil {
		if err := s.checkPayable(ctx, ownerID, *req.OrderID, req.Amount, currency); err != nil {
			return domain.IntentResponse{}, err
		}
	}

	var fingerprint *string
	if key != "" {
		fp := Fingerprint(ownerID, key)
		fingerprint = &fp

		if existing, err := s.findReusable(ctx, ownerID, fp); err != nil || existing != nil {
			if err != nil {
				return domain.IntentResponse{}, err
			}
			return s.reuse(ctx, existing), nil
		}
	}

	now := s.clock.Now()
	draft := &domain.PaymentIntent{
		ID:                     s.genID.Generate(),
		OwnerID:                ownerID,
		OrderID:                req.OrderID,
		AmountMinor:            amountMinor,
		Currency:               currency,
		IdempotencyFingerprint: fingerprint,
		Gateway:                s.gateway.Provider(),
		GatewayOrder:           datatypes.JSON("{}"),
		Receipt:                ulid.Make().String(),
		Status:                 domain.IntentStatusCreated,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	intent, existing, err := s.reserve(ctx, draft)
	if err != nil {
		return domain.IntentResponse{}, err
	}
	if existing != nil {
		return s.reuse(ctx, existing), nil
	}

	notes := map[string]string{"owner_id": ownerID}
	if intent.OrderID != nil {
		notes["order_id"] = intent.OrderID.String()
	}
	gatewayKey := ""
	if fingerprint != nil {
		gatewayKey = *fingerprint
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, domain.CreateGatewayOrderRequest{
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		Receipt:        intent.Receipt,
		IdempotencyKey: gatewayKey,
		Notes:          notes,
	})
	if err != nil {
		s.log.Warn("gateway order creation failed",
			zap.String("provider", s.gateway.Provider()),
			zap.Error(err),
		)
		if delErr := s.repo.DeleteReservation(context.WithoutCancel(ctx), s.db, intent.ID); delErr != nil {
			s.log.Error("failed to drop intent reservation", zap.String("intent_id", intent.ID.String()), zap.Error(delErr))
		}
		return domain.IntentResponse{}, err
	}

	attachedAt := s.clock.Now()
	attached, err := s.repo.AttachGatewayOrder(ctx, s.db, intent.ID, gwOrder, attachedAt)
	if err != nil {
		return domain.IntentResponse{}, err
	}
	if !attached {
		s.log.Error("intent reservation lost before gateway order was attached",
			zap.String("intent_id", intent.ID.String()),
			zap.String("gateway_order_id", gwOrder.ID),
		)
		return domain.IntentResponse{}, domain.ErrIntentInProgress
	}
	intent.GatewayOrderID = gwOrder.ID
	if len(gwOrder.Raw) > 0 {
		intent.GatewayOrder = datatypes.JSON(gwOrder.Raw)
	}
	intent.UpdatedAt = attachedAt

	s.metrics.RecordPaymentIntent(ctx, intent.Gateway, false)
	metadata := map[string]any{
		"gateway_order_id": intent.GatewayOrderID,
		"amount_minor":     intent.AmountMinor,
		"currency":         intent.Currency,
	}
	if intent.OrderID != nil {
		metadata["order_id"] = intent.OrderID.String()
	}
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    ownerID,
		Action:     auditdomain.ActionPaymentIntentCreated,
		TargetType: "payment_intent",
		TargetID:   intent.ID.String(),
		Metadata:   metadata,
	})

	return s.response(intent, false), nil
}

func (s *Service) VerifyClientPayment(ctx context.Context, req domain.VerifyPaymentRequest) (domain.VerifyPaymentResult, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	orderID := strings.TrimSpace(req.GatewayOrderID)
	paymentID := strings.TrimSpace(req.GatewayPaymentID)
	sig := strings.TrimSpace(req.Signature)
	if ownerID == "" || orderID == "" || paymentID == "" || sig == "" {
		return domain.VerifyPaymentResult{}, domain.ErrInvalidVerification
	}

	valid, err := s.gateway.VerifyPayment(orderID, paymentID, sig)
	if err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			return domain.VerifyPaymentResult{}, domain.ErrGatewayNotConfigured
		}
		return domain.VerifyPaymentResult{}, err
	}
	s.metrics.RecordPaymentVerification(ctx, s.gateway.Provider(), valid)

	if !valid {
		s.log.Warn("client payment signature mismatch", zap.String("gateway_order_id", orderID))
		s.recorder.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    ownerID,
			Action:     auditdomain.ActionPaymentRejected,
			TargetType: "gateway_order",
			TargetID:   orderID,
			Metadata:   map[string]any{"payment_id": paymentID},
		})
		return domain.VerifyPaymentResult{Valid: false}, nil
	}

	intent, err := s.repo.FindByGatewayOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.VerifyPaymentResult{}, err
	}
	if intent == nil || intent.OwnerID != ownerID {
		return domain.VerifyPaymentResult{}, domain.ErrIntentNotFound
	}

	actor := orderdomain.Actor{Type: string(auditdomain.ActorTypeUser), ID: ownerID}
	if err := s.settle(ctx, intent, paymentID, &sig, actor, "client"); err != nil {
		return domain.VerifyPaymentResult{}, err
	}
	return domain.VerifyPaymentResult{Valid: true, OrderID: intent.OrderID}, nil
}

// ApplyEvent settles a verified gateway notification.
func (s *Service) ApplyEvent(ctx context.Context, event *domain.PaymentEvent) (domain.ApplyResult, error) {
	if event == nil || strings.TrimSpace(event.GatewayOrderID) == "" {
		return domain.ApplyResult{}, domain.ErrInvalidEvent
	}

	intent, err := s.repo.FindByGatewayOrderID(ctx, s.db, event.GatewayOrderID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if intent == nil {
		return domain.ApplyResult{}, domain.ErrIntentNotFound
	}
	result := domain.ApplyResult{IntentID: intent.ID, OrderID: intent.OrderID}

	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		if event.AmountMinor > 0 && event.AmountMinor != intent.AmountMinor {
			s.log.Error("captured amount differs from intent, order left open",
				zap.String("gateway_order_id", intent.GatewayOrderID),
				zap.Int64("intent_amount_minor", intent.AmountMinor),
				zap.Int64("event_amount_minor", event.AmountMinor),
			)
			s.recorder.Record(ctx, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeGateway,
				ActorID:    event.Provider,
				Action:     auditdomain.ActionPaymentRejected,
				TargetType: "payment_intent",
				TargetID:   intent.ID.String(),
				Metadata: map[string]any{
					"gateway_order_id":    intent.GatewayOrderID,
					"payment_id":          event.GatewayPaymentID,
					"intent_amount_minor": intent.AmountMinor,
					"event_amount_minor":  event.AmountMinor,
					"reason":              domain.ErrCaptureMismatch.Error(),
				},
			})
			return domain.ApplyResult{}, domain.ErrCaptureMismatch
		}
		actor := orderdomain.Actor{Type: string(auditdomain.ActorTypeGateway), ID: event.Provider}
		if err := s.settle(ctx, intent, event.GatewayPaymentID, nil, actor, "webhook"); err != nil {
			return domain.ApplyResult{}, err
		}
	case domain.EventTypePaymentFailed:
		changed, err := s.repo.MarkFailed(ctx, s.db, intent.ID, s.clock.Now())
		if err != nil {
			return domain.ApplyResult{}, err
		}
		if changed {
			s.recorder.Record(ctx, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeGateway,
				ActorID:    event.Provider,
				Action:     auditdomain.ActionPaymentFailed,
				TargetType: "payment_intent",
				TargetID:   intent.ID.String(),
				Metadata: map[string]any{
					"gateway_order_id": intent.GatewayOrderID,
					"reason":           event.ErrorReason,
				},
			})
		}
	default:
		return domain.ApplyResult{}, domain.ErrEventIgnored
	}
	return result, nil
}

// settle marks the intent paid and completes its order. Both steps are
// idempotent so the client path and the webhook path can race or repeat. A
// failed intent stays failed and its order is left alone.
func (s *Service) settle(ctx context.Context, intent *domain.PaymentIntent, paymentID string, sig *string, actor orderdomain.Actor, source string) error {
	applied, err := s.repo.MarkPaid(ctx, s.db, intent.ID, paymentID, sig, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		current, err := s.repo.FindByGatewayOrderID(ctx, s.db, intent.GatewayOrderID)
		if err != nil {
			return err
		}
		if current != nil && current.Status == domain.IntentStatusFailed {
			s.log.Warn("capture arrived for failed payment intent",
				zap.String("intent_id", intent.ID.String()),
				zap.String("gateway_order_id", intent.GatewayOrderID),
				zap.String("source", source),
			)
			s.recorder.Record(ctx, auditdomain.Entry{
				ActorType:  auditdomain.ActorType(actor.Type),
				ActorID:    actor.ID,
				Action:     auditdomain.ActionPaymentCaptureAfterFailure,
				TargetType: "payment_intent",
				TargetID:   intent.ID.String(),
				Metadata: map[string]any{
					"gateway_order_id": intent.GatewayOrderID,
					"payment_id":       paymentID,
					"source":           source,
				},
			})
			return domain.ErrIntentClosed
		}
	}
	if applied {
		s.log.Info("payment intent paid",
			zap.String("intent_id", intent.ID.String()),
			zap.String("gateway_order_id", intent.GatewayOrderID),
			zap.String("source", source),
		)
		s.recorder.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorType(actor.Type),
			ActorID:    actor.ID,
			Action:     auditdomain.ActionPaymentVerified,
			TargetType: "payment_intent",
			TargetID:   intent.ID.String(),
			Metadata: map[string]any{
				"gateway_order_id": intent.GatewayOrderID,
				"payment_id":       paymentID,
				"source":           source,
			},
		})
	}

	if intent.OrderID == nil {
		return nil
	}
	_, err = s.orders.Transition(ctx, orderdomain.TransitionRequest{
		OrderID: *intent.OrderID,
		Target:  orderdomain.StatusCompleted,
		Actor:   actor,
		Reason:  "payment " + source,
	})
	if errors.Is(err, orderdomain.ErrInvalidTransition) {
		s.log.Warn("paid order can no longer complete",
			zap.String("order_id", intent.OrderID.String()),
			zap.String("gateway_order_id", intent.GatewayOrderID),
		)
		return nil
	}
	return err
}

func (s *Service) checkPayable(ctx context.Context, ownerID string, orderID snowflake.ID, amount decimal.Decimal, currency string) error {
	order, err := s.orders.Get(ctx, ownerID, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return domain.ErrOrderNotPayable
	}
	if !decimal.NewFromInt(order.TotalCost).Equal(amount) {
		return domain.ErrAmountMismatch
	}
	if order.Currency != "" && order.Currency != currency {
		return domain.ErrInvalidCurrency
	}
	return nil
}

func (s *Service) findReusable(ctx context.Context, ownerID, fingerprint string) (*domain.PaymentIntent, error) {
	existing, err := s.repo.FindByFingerprint(ctx, s.db, ownerID, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.GatewayOrderID == "" {
		return nil, nil
	}
	return existing, nil
}

// reserve stores draft as a reservation before any gateway call. For a keyed
// request only the caller whose insert lands owns the reservation; the others
// wait for it and reuse the finished intent.
func (s *Service) reserve(ctx context.Context, draft *domain.PaymentIntent) (*domain.PaymentIntent, *domain.PaymentIntent, error) {
	if draft.IdempotencyFingerprint == nil {
		if err := s.repo.Insert(ctx, s.db, draft); err != nil {
			return nil, nil, err
		}
		return draft, nil, nil
	}
	fingerprint := *draft.IdempotencyFingerprint

	release, held := s.lock(ctx, fingerprint)
	defer release()
	if !held {
		return s.awaitReservation(ctx, draft.OwnerID, fingerprint)
	}

	err := s.repo.Insert(ctx, s.db, draft)
	if err == nil {
		return draft, nil, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return nil, nil, err
	}
	return s.awaitReservation(ctx, draft.OwnerID, fingerprint)
}

// awaitReservation polls until the intent for fingerprint has its gateway
// order. A reservation abandoned for longer than reservationTTL is taken over.
func (s *Service) awaitReservation(ctx context.Context, ownerID, fingerprint string) (*domain.PaymentIntent, *domain.PaymentIntent, error) {
	deadline := time.NewTimer(reservationWait)
	defer deadline.Stop()
	ticker := time.NewTicker(reservationPoll)
	defer ticker.Stop()

	for {
		stored, err := s.repo.FindByFingerprint(ctx, s.db, ownerID, fingerprint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			return nil, nil, err
		}
		if stored != nil {
			if stored.GatewayOrderID != "" {
				return nil, stored, nil
			}
			now := s.clock.Now()
			reclaimed, err := s.repo.ReclaimReservation(ctx, s.db, stored.ID, now, now.Add(-reservationTTL))
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, nil, ctxErr
				}
				return nil, nil, err
			}
			if reclaimed {
				s.log.Warn("taking over abandoned intent reservation", zap.String("intent_id", stored.ID.String()))
				stored.UpdatedAt = now
				return stored, nil, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-deadline.C:
			return nil, nil, domain.ErrIntentInProgress
		case <-ticker.C:
		}
	}
}

// lock reports whether the caller holds the fingerprint lock. Without a
// working locker every caller holds it and the reservation alone serializes.
func (s *Service) lock(ctx context.Context, fingerprint string) (func(), bool) {
	if s.locks == nil {
		return func() {}, true
	}
	token, ok, err := s.locks.LockIntent(ctx, fingerprint)
	if err != nil {
		s.log.Warn("intent lock unavailable, relying on reservation", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() {
		if err := s.locks.ReleaseIntent(context.WithoutCancel(ctx), fingerprint, token); err != nil {
			s.log.Warn("failed to release intent lock", zap.Error(err))
		}
	}, true
}

func (s *Service) reuse(ctx context.Context, intent *domain.PaymentIntent) domain.IntentResponse {
	s.metrics.RecordPaymentIntent(ctx, intent.Gateway, true)
	return s.response(intent, true)
}

func (s *Service) response(intent *domain.PaymentIntent, reused bool) domain.IntentResponse {
	return domain.IntentResponse{
		IntentID:       intent.ID,
		GatewayOrderID: intent.GatewayOrderID,
		Amount:         decimal.NewFromInt(intent.AmountMinor).Shift(-2),
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		Gateway:        intent.Gateway,
		KeyID:          s.keyID,
		Receipt:        intent.Receipt,
		Status:         intent.Status,
		Reused:         reused,
	}
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}
