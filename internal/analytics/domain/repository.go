package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ReceiptPair is one receipt joined to the purchase it belongs to.
type ReceiptPair struct {
	ReceiptID    snowflake.ID `gorm:"column:receipt_id"`
	PurchaseID   snowflake.ID `gorm:"column:purchase_id"`
	PurchaseDate time.Time    `gorm:"column:purchase_date"`
	KwhPurchased float64      `gorm:"column:kwh_purchased"`
	TotalAmount  float64      `gorm:"column:total_amount"`
	TotalPayment float64      `gorm:"column:total_payment"`
}

type Repository interface {
	// ListReceiptPairs returns every linked receipt with its purchase,
	// ordered by purchase date. Unlinked receipts are excluded; without a
	// purchase they carry no date or payment to analyze against.
	ListReceiptPairs(ctx context.Context, db *gorm.DB) ([]ReceiptPair, error)
}
