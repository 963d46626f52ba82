package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
	"gorm.io/gorm"
)

type CreateOrderRequest struct {
	OwnerID   string
	ShopID    snowflake.ID
	FileRef   string
	PageCount int
	Settings  pricingdomain.PrintSettings
}

type QuoteRequest struct {
	ShopID    snowflake.ID
	PageCount int
	Settings  pricingdomain.PrintSettings
}

// Actor identifies who asked for a transition, for the audit trail.
type Actor struct {
	Type string
	ID   string
}

type TransitionRequest struct {
	OrderID snowflake.ID
	Target  Status
	Actor   Actor
	Reason  string
}

// TransitionResult reports the order after the call. Applied is false when
// the order already had the target status.
type TransitionResult struct {
	Order   Order  `json:"order"`
	From    Status `json:"from"`
	Applied bool   `json:"applied"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Quote(ctx context.Context, req QuoteRequest) (pricingdomain.Quote, error)
	Get(ctx context.Context, ownerID string, id snowflake.ID) (Order, error)
	ListHistory(ctx context.Context, ownerID string, id snowflake.ID) ([]HistoryRecord, error)
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	InsertHistory(ctx context.Context, db *gorm.DB, record *HistoryRecord) error
	ListHistory(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*HistoryRecord, error)
}

var (
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrInvalidFileRef    = errors.New("invalid_file_ref")
	ErrInvalidOrder      = errors.New("invalid_order")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrConcurrentUpdate  = errors.New("concurrent_update")
)
