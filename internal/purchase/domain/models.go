package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Purchase is an immutable-once-created bulk token purchase against the
// shared meter.
type Purchase struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID       snowflake.ID `json:"user_id" gorm:"column:user_id;not null;index"`
	TotalTokens  float64      `json:"total_tokens" gorm:"not null"`
	TotalPayment float64      `json:"total_payment" gorm:"not null"`
	MeterReading float64      `json:"meter_reading" gorm:"not null"`
	PurchaseDate time.Time    `json:"purchase_date" gorm:"not null;index"`
	IsEmergency  bool         `json:"is_emergency" gorm:"not null;default:false"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }

// Contribution reconciles a Purchase against the member who consumed the
// tokens it replaced. A purchase owns at most one contribution.
type Contribution struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	PurchaseID         snowflake.ID `json:"purchase_id" gorm:"not null;uniqueIndex:ux_contributions_purchase"`
	UserID             snowflake.ID `json:"user_id" gorm:"column:user_id;not null;index"`
	ContributionAmount float64      `json:"contribution_amount" gorm:"not null"`
	MeterReading       float64      `json:"meter_reading" gorm:"not null"`
	TokensConsumed     float64      `json:"tokens_consumed" gorm:"not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contribution) TableName() string { return "contributions" }
