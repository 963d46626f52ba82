package config

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/smallbiznis/printdesk/internal/pricing/domain"
)

func readPricing(t *testing.T, body string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(body)); err != nil {
		t.Fatalf("read config: %v", err)
	}
	return v
}

func TestDecodePriceTableRestoresKeyCasing(t *testing.T) {
	v := readPricing(t, `
pricing:
  currency: inr
  rates:
    A4:
      single: { bw: "2", color: 5 }
      double: { bw: 1.5 }
  bindings:
    Spiral: "30"
  rush_fee: "20"
  fee_tiers:
    - { min_pages: 1, max_pages: 10, fee: "3" }
    - { min_pages: 11, max_pages: 50, fee: "6" }
`)

	table, err := decodePriceTable(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if table.Currency != "INR" {
		t.Fatalf("expected INR, got %q", table.Currency)
	}
	rate := table.Rates.Rate(domain.PaperSizeA4, domain.DuplexDouble, domain.ColorModeBW)
	if !rate.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected A4 double bw rate 1.5, got %s", rate)
	}
	if got := table.Rates.Rate(domain.PaperSizeA4, domain.DuplexSingle, domain.ColorModeColor); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected A4 single color rate 5, got %s", got)
	}
	if got := table.Bindings[domain.BindingSpiral]; !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected spiral binding 30, got %s", got)
	}
	if len(table.FeeTiers) != 2 || !table.FeeTiers[1].Fee.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected fee tiers: %+v", table.FeeTiers)
	}
}

func TestDecodePriceTableRejectsOverlappingTiers(t *testing.T) {
	v := readPricing(t, `
pricing:
  currency: INR
  rates:
    A4:
      single: { bw: "2" }
  fee_tiers:
    - { min_pages: 1, max_pages: 10, fee: "3" }
    - { min_pages: 10, max_pages: 50, fee: "6" }
`)

	if _, err := decodePriceTable(v); err == nil {
		t.Fatalf("expected overlapping tiers to be rejected")
	}
}

func TestDecodePriceTableRejectsMissingRates(t *testing.T) {
	v := readPricing(t, `
pricing:
  currency: INR
`)

	if _, err := decodePriceTable(v); err == nil {
		t.Fatalf("expected empty rates to be rejected")
	}
}

func TestStaticHolderNormalizes(t *testing.T) {
	holder := NewStaticPriceTableHolder(domain.PriceTable{
		Currency: "usd",
		Rates: domain.RateSheet{
			"a4": {"SINGLE": {"BW": decimal.NewFromInt(1)}},
		},
	})

	table := holder.Get()
	if table.Currency != "USD" {
		t.Fatalf("expected USD, got %q", table.Currency)
	}
	if got := table.Rates.Rate(domain.PaperSizeA4, domain.DuplexSingle, domain.ColorModeBW); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected normalized rate 1, got %s", got)
	}
}

func TestLoadGatewayConfigTrimsValues(t *testing.T) {
	t.Setenv("GATEWAY_PROVIDER", " Razorpay ")
	t.Setenv("GATEWAY_BASE_URL", "https://api.example.test/")
	t.Setenv("GATEWAY_KEY_SECRET", " secret ")
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "0")

	cfg, err := LoadGatewayConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "razorpay" {
		t.Fatalf("expected razorpay, got %q", cfg.Provider)
	}
	if cfg.BaseURL != "https://api.example.test" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.KeySecret != "secret" {
		t.Fatalf("unexpected key secret %q", cfg.KeySecret)
	}
	if cfg.Timeout().Seconds() != 12 {
		t.Fatalf("expected 12s default timeout, got %s", cfg.Timeout())
	}
}
