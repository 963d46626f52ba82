package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the domain counters exported over OTLP.
type Metrics struct {
	ordersCreated     metric.Int64Counter
	orderTransitions  metric.Int64Counter
	webhookDeliveries metric.Int64Counter
	paymentIntents    metric.Int64Counter
	paymentVerifies   metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the domain counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "printdesk"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		name        string
		description string
		target      *metric.Int64Counter
	}{
		{"printdesk_orders_created_total", "Print orders accepted at intake.", &m.ordersCreated},
		{"printdesk_order_transitions_total", "Applied order status changes.", &m.orderTransitions},
		{"printdesk_webhook_deliveries_total", "Gateway webhook deliveries by outcome.", &m.webhookDeliveries},
		{"printdesk_payment_intents_total", "Payment intent requests, created or reused.", &m.paymentIntents},
		{"printdesk_payment_verifications_total", "Client payment signature checks.", &m.paymentVerifies},
		{"printdesk_rate_limit_allowed_total", "Checkout requests admitted by the rate limiter.", &m.rateLimitAllowed},
		{"printdesk_rate_limit_denied_total", "Checkout requests rejected by the rate limiter.", &m.rateLimitDenied},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, paperSize, colorMode string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.ordersCreated },
		attribute.String("paper_size", paperSize),
		attribute.String("color_mode", colorMode),
	)
}

func (m *Metrics) RecordOrderTransition(ctx context.Context, from, to string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.orderTransitions },
		attribute.String("from", from),
		attribute.String("to", to),
	)
}

func (m *Metrics) RecordWebhookDelivery(ctx context.Context, provider, eventType, outcome string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.webhookDeliveries },
		attribute.String("provider", provider),
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	)
}

// RecordPaymentIntent counts intent requests; reused means an idempotency key
// matched a stored intent.
func (m *Metrics) RecordPaymentIntent(ctx context.Context, provider string, reused bool) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.paymentIntents },
		attribute.String("provider", provider),
		attribute.String("outcome", pick(reused, "reused", "created")),
	)
}

func (m *Metrics) RecordPaymentVerification(ctx context.Context, provider string, valid bool) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.paymentVerifies },
		attribute.String("provider", provider),
		attribute.String("outcome", pick(valid, "valid", "invalid")),
	)
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.rateLimitAllowed },
		attribute.String("endpoint", endpoint),
	)
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.rateLimitDenied },
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)
}

// add is a no-op on a nil *Metrics so optional injection needs no guards.
func (m *Metrics) add(ctx context.Context, counter func(*Metrics) metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	c := counter(m)
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"reason":      {},
	"from":        {},
	"to":          {},
	"paper_size":  {},
	"color_mode":  {},
}

// FilterAttributes keeps allowlisted labels and trims their string values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attr.Key.String(strings.TrimSpace(attr.Value.AsString()))
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
