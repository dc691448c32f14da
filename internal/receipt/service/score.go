package service

import (
	"math"
	"time"

	"github.com/openutility/wattshare/internal/config"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
)

// Confidence is additive across two independently bucketed factors, each
// worth up to 50 points: calendar-day proximity and kWh closeness.

// DateProximityScore buckets the calendar-day gap between a receipt's
// transaction time and a purchase date.
func DateProximityScore(receiptAt, purchaseAt time.Time) float64 {
	switch days := calendarDaysApart(receiptAt, purchaseAt); {
	case days == 0:
		return 50
	case days == 1:
		return 40
	case days <= 3:
		return 30
	case days <= 7:
		return 20
	case days <= 14:
		return 10
	default:
		return 0
	}
}

// KwhScore buckets the relative difference between the receipt's kWh and
// the purchase's token total.
func KwhScore(receiptKwh, purchaseTokens float64) float64 {
	if purchaseTokens <= 0 || receiptKwh <= 0 {
		return 0
	}
	if receiptKwh == purchaseTokens {
		return 50
	}
	switch diff := math.Abs(receiptKwh-purchaseTokens) / purchaseTokens; {
	case diff < 0.05:
		return 40
	case diff <= 0.10:
		return 30
	case diff <= 0.20:
		return 20
	case diff <= 0.30:
		return 10
	default:
		return 0
	}
}

// Classify maps a confidence score onto the policy's descending bands.
func Classify(score float64, pol config.MatcherPolicy) string {
	switch {
	case score >= pol.HighThreshold:
		return receiptdomain.ConfidenceHigh
	case score >= pol.MediumThreshold:
		return receiptdomain.ConfidenceMedium
	case score >= pol.LowThreshold:
		return receiptdomain.ConfidenceLow
	default:
		return receiptdomain.ConfidenceNone
	}
}

// calendarDaysApart measures whole UTC calendar days between two instants,
// ignoring time of day.
func calendarDaysApart(a, b time.Time) int {
	a, b = a.UTC(), b.UTC()
	dayA := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	dayB := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(dayB.Sub(dayA).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
