package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PaperSize string

const (
	PaperSizeA3 PaperSize = "A3"
	PaperSizeA4 PaperSize = "A4"
)

type Duplex string

const (
	DuplexSingle Duplex = "single"
	DuplexDouble Duplex = "double"
)

type ColorMode string

const (
	ColorModeBW    ColorMode = "bw"
	ColorModeColor ColorMode = "color"
)

type Binding string

const (
	BindingNone   Binding = "none"
	BindingSoft   Binding = "soft"
	BindingSpiral Binding = "spiral"
	BindingHard   Binding = "hard"
)

// PrintSettings describes one print job. Emergency (rush) and AfterDark are
// mutually exclusive; use the setters to keep them that way.
type PrintSettings struct {
	PaperSize       PaperSize `json:"paper_size"`
	Duplex          Duplex    `json:"duplex"`
	ColorMode       ColorMode `json:"color_mode"`
	Binding         Binding   `json:"binding"`
	Copies          int       `json:"copies"`
	ExtraColorPages int       `json:"extra_color_pages"`
	Emergency       bool      `json:"emergency"`
	AfterDark       bool      `json:"after_dark"`
}

// SetEmergency toggles rush printing and clears after-dark when enabled.
func (s *PrintSettings) SetEmergency(on bool) {
	s.Emergency = on
	if on {
		s.AfterDark = false
	}
}

// SetAfterDark toggles after-dark printing and clears rush when enabled.
func (s *PrintSettings) SetAfterDark(on bool) {
	s.AfterDark = on
	if on {
		s.Emergency = false
	}
}

// RateSheet is indexed paper size -> duplex -> color mode.
type RateSheet map[PaperSize]map[Duplex]map[ColorMode]decimal.Decimal

// Rate returns the per-page rate, zero when any level is missing.
func (r RateSheet) Rate(paper PaperSize, duplex Duplex, color ColorMode) decimal.Decimal {
	byDuplex, ok := r[paper]
	if !ok {
		return decimal.Zero
	}
	byColor, ok := byDuplex[duplex]
	if !ok {
		return decimal.Zero
	}
	rate, ok := byColor[color]
	if !ok {
		return decimal.Zero
	}
	return rate
}

type FeeTier struct {
	MinPages int             `json:"min_pages" mapstructure:"min_pages"`
	MaxPages int             `json:"max_pages" mapstructure:"max_pages"`
	Fee      decimal.Decimal `json:"fee" mapstructure:"fee"`
}

// PriceTable is a shop's rate sheet. Tiers, when present, replace the flat
// convenience fee and are expected to be contiguous and non-overlapping.
type PriceTable struct {
	Currency       string                      `json:"currency" mapstructure:"currency"`
	Rates          RateSheet                   `json:"rates" mapstructure:"rates"`
	Bindings       map[Binding]decimal.Decimal `json:"bindings" mapstructure:"bindings"`
	RushFee        decimal.Decimal             `json:"rush_fee" mapstructure:"rush_fee"`
	AfterDarkFee   decimal.Decimal             `json:"after_dark_fee" mapstructure:"after_dark_fee"`
	ConvenienceFee decimal.Decimal             `json:"convenience_fee" mapstructure:"convenience_fee"`
	FeeTiers       []FeeTier                   `json:"fee_tiers" mapstructure:"fee_tiers"`
}

// Breakdown is the itemised result of pricing a job. Component amounts are
// unrounded; Total is rounded once to whole currency units.
type Breakdown struct {
	PerPage        decimal.Decimal `json:"per_page"`
	BaseCost       decimal.Decimal `json:"base_cost"`
	BindingCost    decimal.Decimal `json:"binding_cost"`
	ExtraColorCost decimal.Decimal `json:"extra_color_cost"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	UrgencyFee     decimal.Decimal `json:"urgency_fee"`
	ConvenienceFee decimal.Decimal `json:"convenience_fee"`
	Total          int64           `json:"total"`
	FeeTierMissed  bool            `json:"-"`
}

// Normalized returns a copy with canonical key casing. Config sources such
// as viper lowercase map keys, which would otherwise hide the A3/A4 rates.
func (t PriceTable) Normalized() PriceTable {
	out := t
	out.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if t.Rates != nil {
		out.Rates = RateSheet{}
		for paper, byDuplex := range t.Rates {
			p := PaperSize(strings.ToUpper(strings.TrimSpace(string(paper))))
			if out.Rates[p] == nil {
				out.Rates[p] = map[Duplex]map[ColorMode]decimal.Decimal{}
			}
			for duplex, byColor := range byDuplex {
				d := Duplex(strings.ToLower(strings.TrimSpace(string(duplex))))
				if out.Rates[p][d] == nil {
					out.Rates[p][d] = map[ColorMode]decimal.Decimal{}
				}
				for color, rate := range byColor {
					out.Rates[p][d][ColorMode(strings.ToLower(strings.TrimSpace(string(color))))] = rate
				}
			}
		}
	}
	if t.Bindings != nil {
		out.Bindings = map[Binding]decimal.Decimal{}
		for binding, cost := range t.Bindings {
			out.Bindings[Binding(strings.ToLower(strings.TrimSpace(string(binding))))] = cost
		}
	}
	if t.FeeTiers != nil {
		out.FeeTiers = append([]FeeTier(nil), t.FeeTiers...)
	}
	return out
}
