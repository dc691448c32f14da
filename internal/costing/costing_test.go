package costing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrueCost(t *testing.T) {
	tests := []struct {
		name           string
		tokensConsumed float64
		totalTokens    float64
		totalPayment   float64
		want           float64
	}{
		{"full consumption equals full payment", 100, 100, 20.00, 20.00},
		{"proportional share", 80, 200, 50.00, 20.00},
		{"zero consumption", 0, 100, 20.00, 0},
		{"zero total tokens guards division", 40, 0, 20.00, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrueCost(tt.tokensConsumed, tt.totalTokens, tt.totalPayment)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestTrueCostLinearity(t *testing.T) {
	base := TrueCost(25, 200, 60.00)
	doubled := TrueCost(50, 200, 60.00)
	assert.InDelta(t, base*2, doubled, 1e-9)
}

func TestCostPerUnit(t *testing.T) {
	assert.InDelta(t, 0.25, CostPerUnit(50.00, 200), 1e-9)
	assert.Equal(t, 0.0, CostPerUnit(50.00, 0))
}

func TestRegularCostPerUnit(t *testing.T) {
	window := []PurchaseTotals{
		{TotalTokens: 100, TotalPayment: 20, IsEmergency: false},
		{TotalTokens: 100, TotalPayment: 40, IsEmergency: true},
		{TotalTokens: 300, TotalPayment: 60, IsEmergency: false},
	}
	// (20+60)/(100+300)
	assert.InDelta(t, 0.2, RegularCostPerUnit(window), 1e-9)
}

func TestEmergencyPremium(t *testing.T) {
	window := []PurchaseTotals{
		{TotalTokens: 400, TotalPayment: 80, IsEmergency: false},
	}

	// emergency slice of 50 tokens cost 15.00; regular rate 0.20/token.
	premium := EmergencyPremium(50, 15.00, window)
	assert.InDelta(t, 5.00, premium, 0.01)
}

func TestEmergencyPremiumWithoutRegularBaseline(t *testing.T) {
	window := []PurchaseTotals{
		{TotalTokens: 100, TotalPayment: 40, IsEmergency: true},
	}
	assert.Equal(t, 0.0, EmergencyPremium(50, 15.00, window))
}
