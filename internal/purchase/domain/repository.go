package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows purchase queries. Zero values mean "no constraint".
type ListFilter struct {
	UserID snowflake.ID
	From   time.Time
	To     time.Time
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Purchase) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Purchase, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Purchase, error)

	// FindEarliest returns the purchase with the smallest purchase date,
	// or nil when the ledger is empty. Ties break on the smaller ID so
	// the reconciler's first-purchase rule is deterministic.
	FindEarliest(ctx context.Context, db *gorm.DB) (*Purchase, error)

	// CountAll reports how many purchases exist.
	CountAll(ctx context.Context, db *gorm.DB) (int64, error)

	// SumTokensThrough totals TotalTokens across purchases dated at or
	// before the given date.
	SumTokensThrough(ctx context.Context, db *gorm.DB, date time.Time) (float64, error)

	// ListUnreceipted returns purchases that do not yet own a receipt,
	// ordered by purchase date.
	ListUnreceipted(ctx context.Context, db *gorm.DB) ([]Purchase, error)

	InsertContribution(ctx context.Context, db *gorm.DB, c *Contribution) error
	UpdateContribution(ctx context.Context, db *gorm.DB, c *Contribution) error
	DeleteContributionByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) error
	FindContributionByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) (*Contribution, error)
	ListContributionsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Contribution, error)
}
