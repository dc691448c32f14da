// Package costing holds the pure allocation math for splitting a bulk
// token purchase across the members who consumed it. Everything here is
// derived on demand; nothing is persisted.
package costing

// PurchaseTotals is the slice of a purchase the allocator needs.
type PurchaseTotals struct {
	TotalTokens  float64
	TotalPayment float64
	IsEmergency  bool
}

// TrueCost returns the proportional share of totalPayment attributable to
// tokensConsumed. A zero totalTokens yields 0; purchases are validated to
// have positive totals, so this only guards division by zero.
func TrueCost(tokensConsumed, totalTokens, totalPayment float64) float64 {
	if totalTokens == 0 {
		return 0
	}
	return (tokensConsumed / totalTokens) * totalPayment
}

// CostPerUnit returns the per-token rate of a purchase.
func CostPerUnit(totalPayment, totalTokens float64) float64 {
	if totalTokens == 0 {
		return 0
	}
	return totalPayment / totalTokens
}

// RegularCostPerUnit returns the blended per-token rate across the
// non-emergency purchases in the window, or 0 when the window holds none.
func RegularCostPerUnit(window []PurchaseTotals) float64 {
	var tokens, payment float64
	for _, p := range window {
		if p.IsEmergency {
			continue
		}
		tokens += p.TotalTokens
		payment += p.TotalPayment
	}
	if tokens == 0 {
		return 0
	}
	return payment / tokens
}

// EmergencyPremium returns how much more an emergency consumption slice
// cost compared to the regular rate in the same window. Without a regular
// baseline there is no comparison to make and the premium is 0, never a
// false signal.
func EmergencyPremium(emergencyTokens, emergencyTrueCost float64, window []PurchaseTotals) float64 {
	rate := RegularCostPerUnit(window)
	if rate == 0 {
		return 0
	}
	return emergencyTrueCost - emergencyTokens*rate
}
