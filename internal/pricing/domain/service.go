package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type QuoteRequest struct {
	ShopID    snowflake.ID
	PageCount int
	Settings  PrintSettings
}

// Quote carries the validated settings so callers persist exactly what was
// priced.
type Quote struct {
	ShopID    snowflake.ID  `json:"shop_id"`
	Currency  string        `json:"currency"`
	PageCount int           `json:"page_count"`
	Settings  PrintSettings `json:"settings"`
	Breakdown Breakdown     `json:"breakdown"`
	Total     int64         `json:"total"`
}

type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	PriceTable(ctx context.Context, shopID snowflake.ID) (PriceTable, error)
}

type Repository interface {
	FindByShopID(ctx context.Context, db *gorm.DB, shopID snowflake.ID) (*PriceTable, error)
}

var (
	ErrInvalidShop            = errors.New("invalid_shop")
	ErrInvalidPageCount       = errors.New("invalid_page_count")
	ErrInvalidCopies          = errors.New("invalid_copies")
	ErrInvalidPaperSize       = errors.New("invalid_paper_size")
	ErrInvalidDuplex          = errors.New("invalid_duplex")
	ErrInvalidColorMode       = errors.New("invalid_color_mode")
	ErrInvalidBinding         = errors.New("invalid_binding")
	ErrInvalidExtraColorPages = errors.New("invalid_extra_color_pages")
	ErrConflictingUrgency     = errors.New("conflicting_urgency")
)

// ValidateSettings checks a job before it reaches the engine. Binding
// and duplex default to none/single when empty.
func ValidateSettings(settings *PrintSettings, pageCount int) error {
	if settings == nil {
		return ErrInvalidPaperSize
	}
	if pageCount < 1 {
		return ErrInvalidPageCount
	}
	if settings.Copies < 1 {
		return ErrInvalidCopies
	}
	switch settings.PaperSize {
	case PaperSizeA3, PaperSizeA4:
	default:
		return ErrInvalidPaperSize
	}
	if settings.Duplex == "" {
		settings.Duplex = DuplexSingle
	}
	switch settings.Duplex {
	case DuplexSingle, DuplexDouble:
	default:
		return ErrInvalidDuplex
	}
	switch settings.ColorMode {
	case ColorModeBW, ColorModeColor:
	default:
		return ErrInvalidColorMode
	}
	if settings.Binding == "" {
		settings.Binding = BindingNone
	}
	switch settings.Binding {
	case BindingNone, BindingSoft, BindingSpiral, BindingHard:
	default:
		return ErrInvalidBinding
	}
	if settings.ExtraColorPages < 0 || settings.ExtraColorPages > pageCount {
		return ErrInvalidExtraColorPages
	}
	if settings.ExtraColorPages > 0 && settings.ColorMode != ColorModeBW {
		return ErrInvalidExtraColorPages
	}
	if settings.Emergency && settings.AfterDark {
		return ErrConflictingUrgency
	}
	return nil
}
