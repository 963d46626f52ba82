package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Shop is owned by shop tooling. The order lifecycle only reads it and
// credits ReceivableBalance when an order completes.
type Shop struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Name              string       `gorm:"not null" json:"name"`
	Currency          string       `gorm:"not null" json:"currency"`
	ReceivableBalance int64        `gorm:"not null;default:0" json:"receivable_balance"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Shop) TableName() string { return "shops" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Shop, error)
	IncrementReceivable(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, at time.Time) error
}

var ErrShopNotFound = errors.New("shop_not_found")
