// Package engine prices print jobs. It performs no I/O and never fails:
// missing rates price at zero.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/printdesk/internal/pricing/domain"
)

// Calculate returns the itemised price of printing pageCount pages with the
// given settings against table.
func Calculate(settings domain.PrintSettings, pageCount int, table domain.PriceTable) domain.Breakdown {
	if pageCount < 0 {
		pageCount = 0
	}
	copies := settings.Copies
	if copies < 1 {
		copies = 1
	}
	pages := decimal.NewFromInt(int64(pageCount))

	perPage := table.Rates.Rate(settings.PaperSize, settings.Duplex, settings.ColorMode)
	base := perPage.Mul(pages)

	binding := decimal.Zero
	if settings.Binding != "" && settings.Binding != domain.BindingNone {
		binding = table.Bindings[settings.Binding]
	}

	extraColor := decimal.Zero
	if settings.ColorMode == domain.ColorModeBW && settings.ExtraColorPages > 0 {
		extra := settings.ExtraColorPages
		if extra > pageCount {
			extra = pageCount
		}
		bwRate := table.Rates.Rate(settings.PaperSize, settings.Duplex, domain.ColorModeBW)
		colorRate := table.Rates.Rate(settings.PaperSize, settings.Duplex, domain.ColorModeColor)
		diff := decimal.Max(colorRate.Sub(bwRate), decimal.Zero)
		extraColor = diff.Mul(decimal.NewFromInt(int64(extra)))
	}

	subtotal := base.Add(binding).Add(extraColor).Mul(decimal.NewFromInt(int64(copies)))

	urgency := decimal.Zero
	switch {
	case settings.Emergency:
		urgency = table.RushFee
	case settings.AfterDark:
		urgency = table.AfterDarkFee
	}

	fee, missed := convenienceFee(table, pageCount)

	total := subtotal.Add(urgency).Add(fee)

	return domain.Breakdown{
		PerPage:        perPage,
		BaseCost:       base,
		BindingCost:    binding,
		ExtraColorCost: extraColor,
		Subtotal:       subtotal,
		UrgencyFee:     urgency,
		ConvenienceFee: fee,
		Total:          total.Round(0).IntPart(),
		FeeTierMissed:  missed,
	}
}

// convenienceFee resolves the tiered fee for pageCount using closed
// intervals, falling back to the flat fee when no tiers are configured. A
// page count that lands in a gap between tiers yields zero.
func convenienceFee(table domain.PriceTable, pageCount int) (decimal.Decimal, bool) {
	if len(table.FeeTiers) == 0 {
		return table.ConvenienceFee, false
	}
	for _, tier := range table.FeeTiers {
		if pageCount >= tier.MinPages && pageCount <= tier.MaxPages {
			return tier.Fee, false
		}
	}
	return decimal.Zero, true
}
