package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Receipt is the vendor-side record of a token purchase. PurchaseID is
// optional: bulk-imported receipts may arrive before anyone links them,
// but a purchase never owns more than one receipt.
type Receipt struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	PurchaseID    *snowflake.ID     `json:"purchase_id,omitempty" gorm:"column:purchase_id;uniqueIndex:ux_receipts_purchase"`
	TokenNumber   *string           `json:"token_number,omitempty" gorm:"column:token_number"`
	AccountNumber *string           `json:"account_number,omitempty" gorm:"column:account_number"`
	KwhPurchased  float64           `json:"kwh_purchased" gorm:"not null"`
	EnergyCost    float64           `json:"energy_cost"`
	Debt          float64           `json:"debt"`
	Rea           float64           `json:"rea"`
	Vat           float64           `json:"vat"`
	TotalAmount   float64           `json:"total_amount" gorm:"not null"`
	Tendered      float64           `json:"tendered"`
	TransactionAt time.Time         `json:"transaction_at" gorm:"column:transaction_at;not null;index"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Receipt) TableName() string { return "receipts" }
