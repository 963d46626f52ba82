package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/smallbiznis/printdesk/internal/pricing/domain"
)

// DefaultPriceTable is used for shops without a stored table when no
// pricing.yml is found.
func DefaultPriceTable() domain.PriceTable {
	return domain.PriceTable{
		Currency: "INR",
		Rates: domain.RateSheet{
			domain.PaperSizeA4: {
				domain.DuplexSingle: {
					domain.ColorModeBW:    decimal.NewFromInt(2),
					domain.ColorModeColor: decimal.NewFromInt(10),
				},
				domain.DuplexDouble: {
					domain.ColorModeBW:    decimal.RequireFromString("1.5"),
					domain.ColorModeColor: decimal.NewFromInt(8),
				},
			},
			domain.PaperSizeA3: {
				domain.DuplexSingle: {
					domain.ColorModeBW:    decimal.NewFromInt(5),
					domain.ColorModeColor: decimal.NewFromInt(20),
				},
				domain.DuplexDouble: {
					domain.ColorModeBW:    decimal.NewFromInt(4),
					domain.ColorModeColor: decimal.NewFromInt(16),
				},
			},
		},
		Bindings: map[domain.Binding]decimal.Decimal{
			domain.BindingSoft:   decimal.NewFromInt(20),
			domain.BindingSpiral: decimal.NewFromInt(30),
			domain.BindingHard:   decimal.NewFromInt(80),
		},
		RushFee:        decimal.NewFromInt(25),
		AfterDarkFee:   decimal.NewFromInt(15),
		ConvenienceFee: decimal.NewFromInt(5),
	}
}

type PriceTableHolder struct {
	current atomic.Value // holds domain.PriceTable
}

// NewStaticPriceTableHolder returns a holder that never reloads.
func NewStaticPriceTableHolder(table domain.PriceTable) *PriceTableHolder {
	holder := &PriceTableHolder{}
	holder.current.Store(table.Normalized())
	return holder
}

func NewPriceTableHolder(log *zap.Logger) (*PriceTableHolder, error) {
	log = log.Named("config.pricing")

	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/printdesk/config") // Volume-mounted config
	v.AddConfigPath("/etc/printdesk")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("PRINTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("pricing.yml not found, using built-in price table")
		return NewStaticPriceTableHolder(DefaultPriceTable()), nil
	}

	table, err := decodePriceTable(v)
	if err != nil {
		return nil, err
	}

	holder := &PriceTableHolder{}
	holder.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePriceTable(v)
		if err != nil {
			log.Warn("price table reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("price table reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PriceTableHolder) Get() domain.PriceTable {
	return h.current.Load().(domain.PriceTable)
}

func decodePriceTable(v *viper.Viper) (domain.PriceTable, error) {
	var table domain.PriceTable
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalKey("pricing", &table, hook); err != nil {
		return domain.PriceTable{}, fmt.Errorf("decode pricing: %w", err)
	}
	table = table.Normalized()
	if err := validatePriceTable(table); err != nil {
		return domain.PriceTable{}, err
	}
	return table, nil
}

func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(value))
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		case float64:
			return decimal.NewFromFloat(value), nil
		case nil:
			return decimal.Zero, nil
		default:
			return nil, fmt.Errorf("cannot decode %s into decimal", from)
		}
	}
}

func validatePriceTable(table domain.PriceTable) error {
	if len(table.Currency) != 3 {
		return errors.New("pricing.currency must be a 3-letter code")
	}
	if len(table.Rates) == 0 {
		return errors.New("pricing.rates cannot be empty")
	}
	for paper, byDuplex := range table.Rates {
		for duplex, byColor := range byDuplex {
			for color, rate := range byColor {
				if rate.IsNegative() {
					return fmt.Errorf("pricing.rates.%s.%s.%s cannot be negative", paper, duplex, color)
				}
			}
		}
	}
	for i, tier := range table.FeeTiers {
		if tier.MinPages > tier.MaxPages {
			return fmt.Errorf("pricing.fee_tiers[%d] min_pages exceeds max_pages", i)
		}
		if i > 0 && tier.MinPages <= table.FeeTiers[i-1].MaxPages {
			return fmt.Errorf("pricing.fee_tiers[%d] overlaps the previous tier", i)
		}
	}
	return nil
}
