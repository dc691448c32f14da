package repository

import (
	"context"

	analyticsdomain "github.com/openutility/wattshare/internal/analytics/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() analyticsdomain.Repository {
	return &repo{}
}

func (r *repo) ListReceiptPairs(ctx context.Context, db *gorm.DB) ([]analyticsdomain.ReceiptPair, error) {
	var pairs []analyticsdomain.ReceiptPair
	err := db.WithContext(ctx).Raw(
		`SELECT r.id AS receipt_id, p.id AS purchase_id, p.purchase_date,
		        r.kwh_purchased, r.total_amount, p.total_payment
		 FROM receipts r
		 INNER JOIN purchases p ON p.id = r.purchase_id
		 ORDER BY p.purchase_date ASC, p.id ASC`,
	).Scan(&pairs).Error
	if err != nil {
		return nil, err
	}
	return pairs, nil
}
