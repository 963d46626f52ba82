package payment

import (
	"github.com/smallbiznis/printdesk/internal/payment/adapters"
	"github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/printdesk/internal/payment/service"
	"github.com/smallbiznis/printdesk/internal/payment/webhook"
	"github.com/smallbiznis/printdesk/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.ProvideIntents),
	fx.Provide(repository.ProvideWebhooks),
	fx.Provide(adapters.NewDefaultRegistry),
	fx.Provide(adapters.NewGateway),
	fx.Provide(func(l *ratelimit.CheckoutLimiter) domain.IntentLocker { return l }),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewDeduplicator),
	fx.Provide(webhook.NewService),
)
