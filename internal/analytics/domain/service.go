package domain

import (
	"context"
	"time"
)

type Service interface {
	// AnalyzeHistory derives trends, anomalies, seasonal patterns and
	// currency variance from the full receipt ledger. Nothing is
	// persisted; every call recomputes from the records as they stand.
	AnalyzeHistory(ctx context.Context) (*Report, error)
}

type Report struct {
	Summary          Summary           `json:"summary"`
	Trend            Trend             `json:"trend"`
	MonthlyTrends    []TrendPoint      `json:"monthly_trends"`
	Anomalies        []Anomaly         `json:"anomalies"`
	SeasonalPatterns []SeasonalAverage `json:"seasonal_patterns"`
	Variance         VarianceAnalysis  `json:"variance_analysis"`
	Recommendations  []string          `json:"recommendations"`
}

type Summary struct {
	ReceiptCount      int       `json:"receipt_count"`
	FirstPurchaseDate time.Time `json:"first_purchase_date,omitempty"`
	LastPurchaseDate  time.Time `json:"last_purchase_date,omitempty"`
	TotalKwh          float64   `json:"total_kwh"`
	TotalAmount       float64   `json:"total_amount"`
	AverageCostPerKwh float64   `json:"average_cost_per_kwh"`
}

// TrendPoint is one calendar month's aggregate.
type TrendPoint struct {
	Month             string  `json:"month"` // "2024-01"
	ReceiptCount      int     `json:"receipt_count"`
	TotalKwh          float64 `json:"total_kwh"`
	TotalAmount       float64 `json:"total_amount"`
	AverageCostPerKwh float64 `json:"average_cost_per_kwh"`
}

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Trend compares the earliest quarter of months against the latest.
type Trend struct {
	Direction     string  `json:"direction"`
	PercentChange float64 `json:"percent_change"`
	FirstAverage  float64 `json:"first_average"`
	LastAverage   float64 `json:"last_average"`
}

// Anomaly kinds and severities.
const (
	AnomalySpike = "spike"
	AnomalyDrop  = "drop"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type Anomaly struct {
	ReceiptID    string    `json:"receipt_id"`
	PurchaseID   string    `json:"purchase_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	CostPerKwh   float64   `json:"cost_per_kwh"`
	Deviation    float64   `json:"deviation"`
	Kind         string    `json:"kind"`
	Severity     string    `json:"severity"`
	Description  string    `json:"description"`
}

// SeasonalAverage is the month-of-year aggregate across all years.
type SeasonalAverage struct {
	Month             time.Month `json:"month"`
	MonthName         string     `json:"month_name"`
	ReceiptCount      int        `json:"receipt_count"`
	AverageCostPerKwh float64    `json:"average_cost_per_kwh"`
}

// VarianceAnalysis summarizes the exchange rate implied by each receipt's
// ZWG total against the payment recorded on its purchase.
type VarianceAnalysis struct {
	ReceiptCount int     `json:"receipt_count"`
	AverageRate  float64 `json:"average_rate"`
	MinRate      float64 `json:"min_rate"`
	MaxRate      float64 `json:"max_rate"`
}
