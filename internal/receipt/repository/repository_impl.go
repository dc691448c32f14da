package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() receiptdomain.Repository {
	return &repo{}
}

const receiptColumns = `id, purchase_id, token_number, account_number, kwh_purchased,
	energy_cost, debt, rea, vat, total_amount, tendered, transaction_at,
	metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *receiptdomain.Receipt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO receipts (`+receiptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.PurchaseID,
		m.TokenNumber,
		m.AccountNumber,
		m.KwhPurchased,
		m.EnergyCost,
		m.Debt,
		m.Rea,
		m.Vat,
		m.TotalAmount,
		m.Tendered,
		m.TransactionAt,
		m.Metadata,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*receiptdomain.Receipt, error) {
	return r.scanOne(ctx, db,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
}

func (r *repo) FindByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) (*receiptdomain.Receipt, error) {
	return r.scanOne(ctx, db,
		`SELECT `+receiptColumns+` FROM receipts WHERE purchase_id = ?`, purchaseID)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter receiptdomain.ListFilter) ([]receiptdomain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE 1=1`
	args := make([]any, 0, 3)

	if !filter.From.IsZero() {
		query += ` AND transaction_at >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND transaction_at <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY transaction_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var receipts []receiptdomain.Receipt
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*receiptdomain.Receipt, error) {
	var m receiptdomain.Receipt
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}
