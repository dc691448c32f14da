package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

const readingColumns = `id, user_id, reading, reading_date, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *readingdomain.MeterReading) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO meter_readings (`+readingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.UserID,
		m.Reading,
		m.ReadingDate,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter readingdomain.ListFilter) ([]readingdomain.MeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM meter_readings WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		query += ` AND reading_date >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND reading_date <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY reading_date ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var readings []readingdomain.MeterReading
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) MaxOnDate(ctx context.Context, db *gorm.DB, date time.Time) (*readingdomain.MeterReading, error) {
	dayStart, dayEnd := dayBounds(date)
	return r.scanOne(ctx, db,
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE reading_date >= ? AND reading_date < ?
		 ORDER BY reading DESC, id DESC LIMIT 1`,
		dayStart, dayEnd,
	)
}

func (r *repo) LastBefore(ctx context.Context, db *gorm.DB, date time.Time) (*readingdomain.MeterReading, error) {
	dayStart, _ := dayBounds(date)
	return r.scanOne(ctx, db,
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE reading_date < ?
		 ORDER BY reading_date DESC, reading DESC, id DESC LIMIT 1`,
		dayStart,
	)
}

func (r *repo) FirstAfter(ctx context.Context, db *gorm.DB, date time.Time) (*readingdomain.MeterReading, error) {
	_, dayEnd := dayBounds(date)
	return r.scanOne(ctx, db,
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE reading_date >= ?
		 ORDER BY reading_date ASC, reading ASC, id ASC LIMIT 1`,
		dayEnd,
	)
}

func (r *repo) ListRecentByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]readingdomain.MeterReading, error) {
	if limit <= 0 {
		limit = 30
	}
	var readings []readingdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE user_id = ?
		 ORDER BY reading_date DESC, id DESC LIMIT ?`,
		userID, limit,
	).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*readingdomain.MeterReading, error) {
	var m readingdomain.MeterReading
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

// dayBounds returns the UTC calendar-day window containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
