package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// ComputeBalance derives a member's net balance from their full
	// contribution history. Positive means overpaid (credit), negative
	// means the member owes the group.
	ComputeBalance(ctx context.Context, userID string) (*Balance, error)
}

// Balance is the derived result of one reconciliation run. It is never
// persisted; it is stale the moment a contribution lands anywhere in the
// chronological sequence.
type Balance struct {
	UserID         string  `json:"user_id"`
	RunningBalance float64 `json:"running_balance"`
	Lines          []Line  `json:"lines"`
}

// Line is the per-contribution breakdown behind the running balance.
type Line struct {
	ContributionID     string    `json:"contribution_id"`
	PurchaseID         string    `json:"purchase_id"`
	PurchaseDate       time.Time `json:"purchase_date"`
	TokensConsumed     float64   `json:"tokens_consumed"`
	EffectiveTokens    float64   `json:"effective_tokens_consumed"`
	FirstPurchase      bool      `json:"first_purchase"`
	FairShare          float64   `json:"fair_share"`
	ContributionAmount float64   `json:"contribution_amount"`
	BalanceChange      float64   `json:"balance_change"`
	RunningBalance     float64   `json:"running_balance"`
}

var ErrInvalidUser = errors.New("invalid_user")

// BrokenReferenceError reports ledger corruption: a contribution points at
// a purchase that no longer exists. The computation aborts rather than
// silently skipping the row.
type BrokenReferenceError struct {
	ContributionID snowflake.ID
	PurchaseID     snowflake.ID
}

func (e *BrokenReferenceError) Error() string {
	return fmt.Sprintf("contribution %s references missing purchase %s", e.ContributionID, e.PurchaseID)
}
