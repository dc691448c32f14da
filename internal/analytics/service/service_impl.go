package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	analyticsdomain "github.com/openutility/wattshare/internal/analytics/domain"
	"github.com/openutility/wattshare/internal/config"
	obsmetrics "github.com/openutility/wattshare/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Policy     *config.PolicyHolder
	Repo       analyticsdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	policy     *config.PolicyHolder
	repo       analyticsdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) analyticsdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("analytics.service"),
		policy:     p.Policy,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AnalyzeHistory(ctx context.Context) (*analyticsdomain.Report, error) {
	pairs, err := s.repo.ListReceiptPairs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	pol := s.policy.Get().Analytics

	report := &analyticsdomain.Report{
		Anomalies:        []analyticsdomain.Anomaly{},
		SeasonalPatterns: []analyticsdomain.SeasonalAverage{},
		Recommendations:  []string{},
	}
	report.Summary = summarize(pairs)
	report.MonthlyTrends = monthlyTrends(pairs)
	report.Trend = trendOf(report.MonthlyTrends, pol)
	if len(pairs) >= pol.MinAnomalyReceipts {
		report.Anomalies = detectAnomalies(pairs, report.Summary.AverageCostPerKwh, pol)
	}
	if len(pairs) >= pol.MinSeasonalReceipts {
		report.SeasonalPatterns = seasonalAverages(pairs)
	}
	report.Variance = varianceOf(pairs)
	report.Recommendations = recommend(pairs, report)

	s.obsMetrics.RecordAnalysisRun(ctx)
	return report, nil
}

func costPerKwh(p *analyticsdomain.ReceiptPair) float64 {
	if p.KwhPurchased <= 0 {
		return 0
	}
	return p.TotalAmount / p.KwhPurchased
}

func summarize(pairs []analyticsdomain.ReceiptPair) analyticsdomain.Summary {
	sum := analyticsdomain.Summary{ReceiptCount: len(pairs)}
	if len(pairs) == 0 {
		return sum
	}
	sum.FirstPurchaseDate = pairs[0].PurchaseDate
	sum.LastPurchaseDate = pairs[len(pairs)-1].PurchaseDate
	for i := range pairs {
		sum.TotalKwh += pairs[i].KwhPurchased
		sum.TotalAmount += pairs[i].TotalAmount
	}
	if sum.TotalKwh > 0 {
		sum.AverageCostPerKwh = sum.TotalAmount / sum.TotalKwh
	}
	return sum
}

func monthlyTrends(pairs []analyticsdomain.ReceiptPair) []analyticsdomain.TrendPoint {
	byMonth := make(map[string]*analyticsdomain.TrendPoint)
	for i := range pairs {
		key := pairs[i].PurchaseDate.UTC().Format("2006-01")
		point, ok := byMonth[key]
		if !ok {
			point = &analyticsdomain.TrendPoint{Month: key}
			byMonth[key] = point
		}
		point.ReceiptCount++
		point.TotalKwh += pairs[i].KwhPurchased
		point.TotalAmount += pairs[i].TotalAmount
	}

	points := make([]analyticsdomain.TrendPoint, 0, len(byMonth))
	for _, point := range byMonth {
		if point.TotalKwh > 0 {
			point.AverageCostPerKwh = point.TotalAmount / point.TotalKwh
		}
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month < points[j].Month })
	return points
}

// trendOf compares the earliest quarter of months with the latest. Below
// the stability threshold the direction reports stable.
func trendOf(points []analyticsdomain.TrendPoint, pol config.AnalyticsPolicy) analyticsdomain.Trend {
	trend := analyticsdomain.Trend{Direction: analyticsdomain.TrendStable}
	if len(points) < 2 {
		return trend
	}

	quarter := len(points) / 4
	if quarter < 1 {
		quarter = 1
	}
	trend.FirstAverage = meanCost(points[:quarter])
	trend.LastAverage = meanCost(points[len(points)-quarter:])
	if trend.FirstAverage <= 0 {
		return trend
	}

	trend.PercentChange = (trend.LastAverage - trend.FirstAverage) / trend.FirstAverage * 100
	switch {
	case math.Abs(trend.PercentChange) < pol.TrendStabilityPct:
		trend.Direction = analyticsdomain.TrendStable
	case trend.PercentChange > 0:
		trend.Direction = analyticsdomain.TrendIncreasing
	default:
		trend.Direction = analyticsdomain.TrendDecreasing
	}
	return trend
}

func meanCost(points []analyticsdomain.TrendPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for i := range points {
		sum += points[i].AverageCostPerKwh
	}
	return sum / float64(len(points))
}

func detectAnomalies(pairs []analyticsdomain.ReceiptPair, overallAvg float64, pol config.AnalyticsPolicy) []analyticsdomain.Anomaly {
	anomalies := []analyticsdomain.Anomaly{}
	if overallAvg <= 0 {
		return anomalies
	}
	for i := range pairs {
		cost := costPerKwh(&pairs[i])
		deviation := (cost - overallAvg) / overallAvg
		if math.Abs(deviation) <= pol.AnomalyDeviation {
			continue
		}

		kind := analyticsdomain.AnomalySpike
		verdict := "overpriced"
		if deviation < 0 {
			kind = analyticsdomain.AnomalyDrop
			verdict = "good deal"
		}
		anomalies = append(anomalies, analyticsdomain.Anomaly{
			ReceiptID:    pairs[i].ReceiptID.String(),
			PurchaseID:   pairs[i].PurchaseID.String(),
			PurchaseDate: pairs[i].PurchaseDate,
			CostPerKwh:   cost,
			Deviation:    deviation,
			Kind:         kind,
			Severity:     severityOf(math.Abs(deviation), pol),
			Description: fmt.Sprintf("%.2f per kWh on %s deviates %.0f%% from the %.2f average (%s)",
				cost, pairs[i].PurchaseDate.UTC().Format("2006-01-02"),
				deviation*100, overallAvg, verdict),
		})
	}
	return anomalies
}

func severityOf(absDeviation float64, pol config.AnalyticsPolicy) string {
	switch {
	case absDeviation > pol.HighSeverity:
		return analyticsdomain.SeverityHigh
	case absDeviation > pol.MediumSeverity:
		return analyticsdomain.SeverityMedium
	default:
		return analyticsdomain.SeverityLow
	}
}

func seasonalAverages(pairs []analyticsdomain.ReceiptPair) []analyticsdomain.SeasonalAverage {
	type bucket struct {
		count  int
		kwh    float64
		amount float64
	}
	byMonth := make(map[time.Month]*bucket)
	for i := range pairs {
		m := pairs[i].PurchaseDate.UTC().Month()
		b, ok := byMonth[m]
		if !ok {
			b = &bucket{}
			byMonth[m] = b
		}
		b.count++
		b.kwh += pairs[i].KwhPurchased
		b.amount += pairs[i].TotalAmount
	}

	out := make([]analyticsdomain.SeasonalAverage, 0, len(byMonth))
	for m := time.January; m <= time.December; m++ {
		b, ok := byMonth[m]
		if !ok {
			continue
		}
		avg := 0.0
		if b.kwh > 0 {
			avg = b.amount / b.kwh
		}
		out = append(out, analyticsdomain.SeasonalAverage{
			Month:             m,
			MonthName:         m.String(),
			ReceiptCount:      b.count,
			AverageCostPerKwh: avg,
		})
	}
	return out
}

func varianceOf(pairs []analyticsdomain.ReceiptPair) analyticsdomain.VarianceAnalysis {
	v := analyticsdomain.VarianceAnalysis{}
	var sum float64
	for i := range pairs {
		if pairs[i].TotalPayment <= 0 {
			continue
		}
		rate := pairs[i].TotalAmount / pairs[i].TotalPayment
		if v.ReceiptCount == 0 {
			v.MinRate, v.MaxRate = rate, rate
		}
		if rate < v.MinRate {
			v.MinRate = rate
		}
		if rate > v.MaxRate {
			v.MaxRate = rate
		}
		sum += rate
		v.ReceiptCount++
	}
	if v.ReceiptCount > 0 {
		v.AverageRate = sum / float64(v.ReceiptCount)
	}
	return v
}

func recommend(pairs []analyticsdomain.ReceiptPair, report *analyticsdomain.Report) []string {
	recs := []string{}
	if len(pairs) == 0 {
		return recs
	}

	if report.Trend.Direction == analyticsdomain.TrendIncreasing {
		recs = append(recs, fmt.Sprintf(
			"token prices have risen %.1f%% since your earliest months; consider buying larger amounts less often",
			report.Trend.PercentChange))
	}

	latest := costPerKwh(&pairs[len(pairs)-1])
	avg := report.Summary.AverageCostPerKwh
	if avg > 0 && latest > 0 {
		switch {
		case latest > avg*1.05:
			recs = append(recs, fmt.Sprintf(
				"your latest purchase cost %.2f per kWh, above your %.2f historical average", latest, avg))
		case latest < avg*0.95:
			recs = append(recs, fmt.Sprintf(
				"your latest purchase cost %.2f per kWh, below your %.2f historical average", latest, avg))
		}
	}

	recent := 3
	if len(pairs) < recent {
		recent = len(pairs)
	}
	cutoff := pairs[len(pairs)-recent].PurchaseDate
	for i := range report.Anomalies {
		if !report.Anomalies[i].PurchaseDate.Before(cutoff) && report.Anomalies[i].Kind == analyticsdomain.AnomalySpike {
			recs = append(recs, "one of your recent purchases was priced well above your usual rate; double-check the vendor")
			break
		}
	}
	return recs
}
