package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openutility/wattshare/internal/clock"
	"github.com/openutility/wattshare/internal/config"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	purchaserepo "github.com/openutility/wattshare/internal/purchase/repository"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	readingrepo "github.com/openutility/wattshare/internal/reading/repository"
	"github.com/openutility/wattshare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   readingdomain.Service
	db    *gorm.DB
	node  *snowflake.Node
	user  snowflake.ID
	clock *clock.FakeClock
	rrepo readingdomain.Repository
	prepo purchasedomain.Repository
}

func newFixture(t *testing.T, initialReading float64) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&purchasedomain.Purchase{},
		&purchasedomain.Contribution{},
		&readingdomain.MeterReading{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	rrepo := readingrepo.Provide()
	prepo := purchaserepo.Provide()

	svc := New(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Config:       config.Config{InitialMeterReading: initialReading},
		Policy:       config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:         rrepo,
		PurchaseRepo: prepo,
	})

	return &fixture{
		svc:   svc,
		db:    conn,
		node:  node,
		user:  node.Generate(),
		clock: fake,
		rrepo: rrepo,
		prepo: prepo,
	}
}

func (f *fixture) addPurchase(t *testing.T, tokens, payment float64, date time.Time) {
	t.Helper()
	now := f.clock.Now()
	err := f.prepo.Insert(context.Background(), f.db, &purchasedomain.Purchase{
		ID:           f.node.Generate(),
		UserID:       f.user,
		TotalTokens:  tokens,
		TotalPayment: payment,
		PurchaseDate: date,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
}

func (f *fixture) addReading(t *testing.T, value float64, date time.Time) {
	t.Helper()
	now := f.clock.Now()
	err := f.rrepo.Insert(context.Background(), f.db, &readingdomain.MeterReading{
		ID:          f.node.Generate(),
		UserID:      f.user,
		Reading:     value,
		ReadingDate: date,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidate_RejectsWhenNoPurchasesExist(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     100,
		ReadingDate: date(2024, 1, 5),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "no purchases recorded")
}

func TestValidate_RejectsNegativeReading(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 1000, 500, date(2024, 1, 1))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     -5,
		ReadingDate: date(2024, 1, 5),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "cannot be negative")
}

func TestValidate_RejectsReadingAboveLaterPoint(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 1000, 500, date(2024, 1, 1))
	f.addReading(t, 110, date(2024, 1, 10))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     115,
		ReadingDate: date(2024, 1, 5),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "110.00")
	assert.Contains(t, res.Errors[0], "2024-01-10")
}

func TestValidate_RejectsReadingBelowEarlierPoint(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 1000, 500, date(2024, 1, 1))
	f.addReading(t, 200, date(2024, 1, 3))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     150,
		ReadingDate: date(2024, 1, 8),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "200.00")
	assert.Contains(t, res.Errors[0], "2024-01-03")
}

func TestValidate_RejectsReadingBelowSameDayMax(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 1000, 500, date(2024, 1, 1))
	f.addReading(t, 300, date(2024, 1, 5).Add(8*time.Hour))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     290,
		ReadingDate: date(2024, 1, 5).Add(20 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "already recorded on 2024-01-05")
}

func TestValidate_RejectsReadingAboveCumulativePurchases(t *testing.T) {
	f := newFixture(t, 100)
	f.addPurchase(t, 50, 25, date(2024, 1, 1))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     200,
		ReadingDate: date(2024, 1, 2),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "150.00")
}

func TestValidate_IgnoresPurchasesAfterReadingDate(t *testing.T) {
	f := newFixture(t, 100)
	f.addPurchase(t, 50, 25, date(2024, 1, 1))
	f.addPurchase(t, 500, 250, date(2024, 2, 1))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     200,
		ReadingDate: date(2024, 1, 2),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidate_AcceptsPlausibleReading(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	f.addReading(t, 100, date(2024, 1, 1))
	f.addReading(t, 105, date(2024, 1, 2))
	f.addReading(t, 110, date(2024, 1, 3))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     115,
		ReadingDate: date(2024, 1, 4),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Statistics)
	assert.InDelta(t, 5, res.Statistics.DailyConsumption, 0.001)
	assert.InDelta(t, 5, res.Statistics.HistoricalAverage, 0.001)
}

func TestValidate_RejectsImplausiblyHighConsumption(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	f.addReading(t, 100, date(2024, 1, 1))
	f.addReading(t, 105, date(2024, 1, 2))
	f.addReading(t, 110, date(2024, 1, 3))

	// avg=med=max=5 so the threshold bottoms out at the absolute floor 50.
	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     210,
		ReadingDate: date(2024, 1, 4),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "implausibly high")
	require.NotNil(t, res.Statistics)
	assert.InDelta(t, 50, res.Statistics.Threshold, 0.001)
}

func TestValidate_WarnsOnHighButPlausibleConsumption(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	f.addReading(t, 100, date(2024, 1, 1))
	f.addReading(t, 105, date(2024, 1, 2))
	f.addReading(t, 110, date(2024, 1, 3))

	// 20 units/day is above twice the 5 units/day average but under the
	// floor, so it passes with a warning.
	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     130,
		ReadingDate: date(2024, 1, 4),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "significantly higher")
}

func TestValidate_WarnsOnZeroConsumptionOverSeveralDays(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	f.addReading(t, 100, date(2024, 1, 1))
	f.addReading(t, 105, date(2024, 1, 2))
	f.addReading(t, 110, date(2024, 1, 3))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     110,
		ReadingDate: date(2024, 1, 8),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "zero consumption over 5 days")
}

func TestValidate_SkipsStatisticsWithThinHistory(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	f.addReading(t, 100, date(2024, 1, 1))

	res, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     400,
		ReadingDate: date(2024, 1, 2),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.Statistics)
}

func TestRecord_InsertsAcceptedReading(t *testing.T) {
	f := newFixture(t, 0)
	f.addPurchase(t, 10000, 5000, date(2024, 1, 1))
	recordedAt := f.clock.Advance(24 * time.Hour)

	out, err := f.svc.Record(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     100,
		ReadingDate: date(2024, 1, 2),
	})
	require.NoError(t, err)
	assert.True(t, out.Validation.Valid)
	require.NotNil(t, out.Reading)
	assert.Equal(t, 100.0, out.Reading.Reading)
	assert.Equal(t, recordedAt, out.Reading.CreatedAt)

	stored, err := f.svc.List(context.Background(), readingdomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRecord_DoesNotInsertRejectedReading(t *testing.T) {
	f := newFixture(t, 0)

	out, err := f.svc.Record(context.Background(), readingdomain.ValidateRequest{
		UserID:      f.user.String(),
		Reading:     100,
		ReadingDate: date(2024, 1, 2),
	})
	require.NoError(t, err)
	assert.False(t, out.Validation.Valid)
	assert.Nil(t, out.Reading)

	stored, err := f.svc.List(context.Background(), readingdomain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestValidate_InvalidUserID(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Validate(context.Background(), readingdomain.ValidateRequest{
		UserID:      "not-a-number",
		Reading:     10,
		ReadingDate: date(2024, 1, 2),
	})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidUser)
}
