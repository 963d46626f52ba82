package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusPrinting   Status = "printing"
	StatusPrinted    Status = "printed"
	StatusCollected  Status = "collected"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusProcessing: {StatusPrinting, StatusCompleted, StatusCancelled},
	StatusPrinting:   {StatusPrinted, StatusCancelled},
	StatusPrinted:    {StatusCollected, StatusProcessing, StatusCancelled},
	StatusCollected:  {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether target is reachable in one step. Staying
// in the same status is not a transition.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Order is one print job. TotalCost is fixed at intake and never rewritten.
type Order struct {
	ID              snowflake.ID            `gorm:"primaryKey" json:"id"`
	OwnerID         string                  `gorm:"not null;index" json:"owner_id"`
	ShopID          snowflake.ID            `gorm:"not null;index" json:"shop_id"`
	FileRef         string                  `gorm:"not null" json:"file_ref"`
	PageCount       int                     `gorm:"not null" json:"page_count"`
	PaperSize       pricingdomain.PaperSize `gorm:"not null" json:"paper_size"`
	Duplex          pricingdomain.Duplex    `gorm:"not null" json:"duplex"`
	ColorMode       pricingdomain.ColorMode `gorm:"not null" json:"color_mode"`
	Binding         pricingdomain.Binding   `gorm:"not null" json:"binding"`
	Copies          int                     `gorm:"not null" json:"copies"`
	ExtraColorPages int                     `gorm:"not null;default:0" json:"extra_color_pages"`
	Emergency       bool                    `gorm:"not null;default:false" json:"emergency"`
	AfterDark       bool                    `gorm:"not null;default:false" json:"after_dark"`
	TotalCost       int64                   `gorm:"not null" json:"total_cost"`
	Currency        string                  `gorm:"not null" json:"currency"`
	Status          Status                  `gorm:"not null" json:"status"`
	CreatedAt       time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time               `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

func (o Order) Settings() pricingdomain.PrintSettings {
	return pricingdomain.PrintSettings{
		PaperSize:       o.PaperSize,
		Duplex:          o.Duplex,
		ColorMode:       o.ColorMode,
		Binding:         o.Binding,
		Copies:          o.Copies,
		ExtraColorPages: o.ExtraColorPages,
		Emergency:       o.Emergency,
		AfterDark:       o.AfterDark,
	}
}

// HistoryRecord is the immutable snapshot written when an order enters a
// terminal status.
type HistoryRecord struct {
	ID               snowflake.ID            `gorm:"primaryKey" json:"id"`
	OrderID          snowflake.ID            `gorm:"not null;index" json:"order_id"`
	OwnerID          string                  `gorm:"not null" json:"owner_id"`
	ShopID           snowflake.ID            `gorm:"not null" json:"shop_id"`
	FileRef          string                  `gorm:"not null" json:"file_ref"`
	PageCount        int                     `gorm:"not null" json:"page_count"`
	PaperSize        pricingdomain.PaperSize `gorm:"not null" json:"paper_size"`
	Duplex           pricingdomain.Duplex    `gorm:"not null" json:"duplex"`
	ColorMode        pricingdomain.ColorMode `gorm:"not null" json:"color_mode"`
	Binding          pricingdomain.Binding   `gorm:"not null" json:"binding"`
	Copies           int                     `gorm:"not null" json:"copies"`
	ExtraColorPages  int                     `gorm:"not null" json:"extra_color_pages"`
	Emergency        bool                    `gorm:"not null" json:"emergency"`
	AfterDark        bool                    `gorm:"not null" json:"after_dark"`
	TotalCost        int64                   `gorm:"not null" json:"total_cost"`
	Currency         string                  `gorm:"not null" json:"currency"`
	Status           Status                  `gorm:"not null" json:"status"`
	OrderCreatedAt   time.Time               `gorm:"not null" json:"order_created_at"`
	HistoryTimestamp time.Time               `gorm:"not null" json:"history_timestamp"`
}

func (HistoryRecord) TableName() string { return "order_history" }

// Snapshot copies o into a history record stamped at.
func Snapshot(id snowflake.ID, o Order, at time.Time) HistoryRecord {
	return HistoryRecord{
		ID:               id,
		OrderID:          o.ID,
		OwnerID:          o.OwnerID,
		ShopID:           o.ShopID,
		FileRef:          o.FileRef,
		PageCount:        o.PageCount,
		PaperSize:        o.PaperSize,
		Duplex:           o.Duplex,
		ColorMode:        o.ColorMode,
		Binding:          o.Binding,
		Copies:           o.Copies,
		ExtraColorPages:  o.ExtraColorPages,
		Emergency:        o.Emergency,
		AfterDark:        o.AfterDark,
		TotalCost:        o.TotalCost,
		Currency:         o.Currency,
		Status:           o.Status,
		OrderCreatedAt:   o.CreatedAt,
		HistoryTimestamp: at,
	}
}
