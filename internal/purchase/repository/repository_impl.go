package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() purchasedomain.Repository {
	return &repo{}
}

const purchaseColumns = `id, user_id, total_tokens, total_payment, meter_reading, purchase_date, is_emergency, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *purchasedomain.Purchase) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.UserID,
		p.TotalTokens,
		p.TotalPayment,
		p.MeterReading,
		p.PurchaseDate,
		p.IsEmergency,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM purchases WHERE id = ?`, id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*purchasedomain.Purchase, error) {
	var p purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter purchasedomain.ListFilter) ([]purchasedomain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		query += ` AND purchase_date >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND purchase_date <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY purchase_date ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var purchases []purchasedomain.Purchase
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repo) FindEarliest(ctx context.Context, db *gorm.DB) (*purchasedomain.Purchase, error) {
	var p purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT ` + purchaseColumns + ` FROM purchases
		 ORDER BY purchase_date ASC, id ASC LIMIT 1`,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM purchases`).Scan(&count).Error
	return count, err
}

func (r *repo) SumTokensThrough(ctx context.Context, db *gorm.DB, date time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_tokens), 0) FROM purchases WHERE purchase_date <= ?`,
		date,
	).Scan(&total).Error
	return total, err
}

func (r *repo) ListUnreceipted(ctx context.Context, db *gorm.DB) ([]purchasedomain.Purchase, error) {
	var purchases []purchasedomain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.user_id, p.total_tokens, p.total_payment, p.meter_reading, p.purchase_date, p.is_emergency, p.created_at, p.updated_at
		 FROM purchases p
		 LEFT JOIN receipts r ON r.purchase_id = p.id
		 WHERE r.id IS NULL
		 ORDER BY p.purchase_date ASC, p.id ASC`,
	).Scan(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

const contributionColumns = `id, purchase_id, user_id, contribution_amount, meter_reading, tokens_consumed, created_at, updated_at`

func (r *repo) InsertContribution(ctx context.Context, db *gorm.DB, c *purchasedomain.Contribution) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contributions (`+contributionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.PurchaseID,
		c.UserID,
		c.ContributionAmount,
		c.MeterReading,
		c.TokensConsumed,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) UpdateContribution(ctx context.Context, db *gorm.DB, c *purchasedomain.Contribution) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET user_id = ?, contribution_amount = ?, meter_reading = ?, tokens_consumed = ?, updated_at = ?
		 WHERE purchase_id = ?`,
		c.UserID,
		c.ContributionAmount,
		c.MeterReading,
		c.TokensConsumed,
		c.UpdatedAt,
		c.PurchaseID,
	).Error
}

func (r *repo) DeleteContributionByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM contributions WHERE purchase_id = ?`, purchaseID,
	).Error
}

func (r *repo) FindContributionByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) (*purchasedomain.Contribution, error) {
	var c purchasedomain.Contribution
	err := db.WithContext(ctx).Raw(
		`SELECT `+contributionColumns+` FROM contributions WHERE purchase_id = ?`,
		purchaseID,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) ListContributionsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]purchasedomain.Contribution, error) {
	var contributions []purchasedomain.Contribution
	err := db.WithContext(ctx).Raw(
		`SELECT `+contributionColumns+` FROM contributions WHERE user_id = ?`,
		userID,
	).Scan(&contributions).Error
	if err != nil {
		return nil, err
	}
	return contributions, nil
}
