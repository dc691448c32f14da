package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows receipt queries. Zero values mean "no constraint".
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Receipt) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)

	// FindByPurchase returns the receipt owned by the purchase, or nil.
	FindByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) (*Receipt, error)

	// List returns receipts ordered by transaction time.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Receipt, error)
}
