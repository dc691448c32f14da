package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/openutility/wattshare/internal/analytics/domain"
	analyticsrepo "github.com/openutility/wattshare/internal/analytics/repository"
	"github.com/openutility/wattshare/internal/config"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
	"github.com/openutility/wattshare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  analyticsdomain.Service
	db   *gorm.DB
	node *snowflake.Node
	user snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&purchasedomain.Purchase{},
		&receiptdomain.Receipt{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:   analyticsrepo.Provide(),
	})

	return &fixture{svc: svc, db: conn, node: node, user: node.Generate()}
}

// addReceiptedPurchase stores a purchase plus its linked receipt and
// returns both IDs.
func (f *fixture) addReceiptedPurchase(t *testing.T, kwh, amountZWG, paymentUSD float64, when time.Time) (snowflake.ID, snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()

	purchaseID := f.node.Generate()
	require.NoError(t, f.db.Create(&purchasedomain.Purchase{
		ID:           purchaseID,
		UserID:       f.user,
		TotalTokens:  kwh,
		TotalPayment: paymentUSD,
		PurchaseDate: when,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)

	receiptID := f.node.Generate()
	require.NoError(t, f.db.Create(&receiptdomain.Receipt{
		ID:            receiptID,
		PurchaseID:    &purchaseID,
		KwhPurchased:  kwh,
		TotalAmount:   amountZWG,
		TransactionAt: when,
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)

	return purchaseID, receiptID
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 15, 0, 0, 0, 0, time.UTC)
}

func TestAnalyzeHistory_EmptyLedger(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Summary.ReceiptCount)
	assert.Equal(t, analyticsdomain.TrendStable, report.Trend.Direction)
	assert.Empty(t, report.MonthlyTrends)
	assert.Empty(t, report.Anomalies)
	assert.Empty(t, report.Recommendations)
}

func TestAnalyzeHistory_MonthlyAggregation(t *testing.T) {
	f := newFixture(t)
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.January))
	f.addReceiptedPurchase(t, 100, 1200, 25, month(2024, time.January).AddDate(0, 0, 5))
	f.addReceiptedPurchase(t, 50, 600, 12, month(2024, time.February))

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.ReceiptCount)
	assert.InDelta(t, 250, report.Summary.TotalKwh, 0.01)
	assert.InDelta(t, 2800, report.Summary.TotalAmount, 0.01)

	require.Len(t, report.MonthlyTrends, 2)
	jan := report.MonthlyTrends[0]
	assert.Equal(t, "2024-01", jan.Month)
	assert.Equal(t, 2, jan.ReceiptCount)
	assert.InDelta(t, 11, jan.AverageCostPerKwh, 0.01) // 2200 / 200
	assert.Equal(t, "2024-02", report.MonthlyTrends[1].Month)
	assert.InDelta(t, 12, report.MonthlyTrends[1].AverageCostPerKwh, 0.01)
}

func TestAnalyzeHistory_IncreasingTrend(t *testing.T) {
	f := newFixture(t)
	// Cost per kWh climbs from 10 to 17 over eight months; the first
	// quarter (2 months) averages 10.5, the last 16.5.
	for i := 0; i < 8; i++ {
		f.addReceiptedPurchase(t, 100, float64(1000+i*100), 25, month(2024, time.Month(i+1)))
	}

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, analyticsdomain.TrendIncreasing, report.Trend.Direction)
	assert.InDelta(t, 10.5, report.Trend.FirstAverage, 0.01)
	assert.InDelta(t, 16.5, report.Trend.LastAverage, 0.01)
	assert.InDelta(t, 57.14, report.Trend.PercentChange, 0.1)
	assert.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "risen")
}

func TestAnalyzeHistory_StableWithinThreshold(t *testing.T) {
	f := newFixture(t)
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.January))
	f.addReceiptedPurchase(t, 100, 1020, 25, month(2024, time.February))

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, analyticsdomain.TrendStable, report.Trend.Direction)
}

func TestAnalyzeHistory_FlagsSpikeAndDrop(t *testing.T) {
	f := newFixture(t)
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.January))
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.February))
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.March))
	f.addReceiptedPurchase(t, 100, 2000, 25, month(2024, time.April)) // spike
	f.addReceiptedPurchase(t, 100, 400, 25, month(2024, time.May))    // drop

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Anomalies, 2)

	spike := report.Anomalies[0]
	assert.Equal(t, analyticsdomain.AnomalySpike, spike.Kind)
	assert.Equal(t, analyticsdomain.SeverityHigh, spike.Severity)
	assert.Greater(t, spike.Deviation, 0.20)

	drop := report.Anomalies[1]
	assert.Equal(t, analyticsdomain.AnomalyDrop, drop.Kind)
	assert.Less(t, drop.Deviation, -0.20)
}

func TestAnalyzeHistory_TooFewReceiptsForAnomalies(t *testing.T) {
	f := newFixture(t)
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.January))
	f.addReceiptedPurchase(t, 100, 5000, 25, month(2024, time.February))

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Anomalies)
}

func TestAnalyzeHistory_SeasonalPatterns(t *testing.T) {
	f := newFixture(t)
	// Two years of winter-heavy pricing, 12 receipts total.
	for year := 2023; year <= 2024; year++ {
		for _, m := range []time.Month{time.January, time.March, time.May, time.July, time.September, time.November} {
			amount := 1000.0
			if m == time.July {
				amount = 1500
			}
			f.addReceiptedPurchase(t, 100, amount, 25, month(year, m))
		}
	}

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, report.SeasonalPatterns, 6)

	for _, p := range report.SeasonalPatterns {
		assert.Equal(t, 2, p.ReceiptCount)
		if p.Month == time.July {
			assert.InDelta(t, 15, p.AverageCostPerKwh, 0.01)
		} else {
			assert.InDelta(t, 10, p.AverageCostPerKwh, 0.01)
		}
	}
}

func TestAnalyzeHistory_VarianceAnalysis(t *testing.T) {
	f := newFixture(t)
	f.addReceiptedPurchase(t, 100, 1000, 25, month(2024, time.January))  // rate 40
	f.addReceiptedPurchase(t, 100, 1250, 25, month(2024, time.February)) // rate 50
	f.addReceiptedPurchase(t, 100, 750, 25, month(2024, time.March))     // rate 30

	report, err := f.svc.AnalyzeHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Variance.ReceiptCount)
	assert.InDelta(t, 40, report.Variance.AverageRate, 0.01)
	assert.InDelta(t, 30, report.Variance.MinRate, 0.01)
	assert.InDelta(t, 50, report.Variance.MaxRate, 0.01)
}
