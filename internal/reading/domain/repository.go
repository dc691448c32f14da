package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows reading queries. Zero values mean "no constraint".
type ListFilter struct {
	UserID snowflake.ID
	From   time.Time
	To     time.Time
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *MeterReading) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]MeterReading, error)

	// MaxOnDate returns the largest reading recorded on the same calendar
	// day (UTC), or nil when the day has none.
	MaxOnDate(ctx context.Context, db *gorm.DB, date time.Time) (*MeterReading, error)

	// LastBefore returns the most recent reading on an earlier calendar
	// day, or nil.
	LastBefore(ctx context.Context, db *gorm.DB, date time.Time) (*MeterReading, error)

	// FirstAfter returns the earliest reading on a later calendar day,
	// or nil.
	FirstAfter(ctx context.Context, db *gorm.DB, date time.Time) (*MeterReading, error)

	// ListRecentByUser returns up to limit readings recorded by the user,
	// most recent first.
	ListRecentByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]MeterReading, error)
}
