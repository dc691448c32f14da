package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MeterReading is one point in the single global, strictly time-ordered
// series for the shared meter. UserID records who read the meter, not a
// per-user series.
type MeterReading struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID `json:"user_id" gorm:"column:user_id;not null;index"`
	Reading     float64      `json:"reading" gorm:"not null"`
	ReadingDate time.Time    `json:"reading_date" gorm:"not null;index"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MeterReading) TableName() string { return "meter_readings" }
