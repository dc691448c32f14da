package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Delete(ctx context.Context, id string) error

	// RecordContribution attaches the single contribution a purchase may
	// own. A second attempt fails with ErrContributionExists.
	RecordContribution(ctx context.Context, req ContributionRequest) (*ContributionResponse, error)
	UpdateContribution(ctx context.Context, req ContributionRequest) (*ContributionResponse, error)
}

type CreateRequest struct {
	UserID       string    `json:"user_id"`
	TotalTokens  float64   `json:"total_tokens"`
	TotalPayment float64   `json:"total_payment"`
	MeterReading float64   `json:"meter_reading"`
	PurchaseDate time.Time `json:"purchase_date"`
	IsEmergency  bool      `json:"is_emergency"`

	// Contribution optionally records the consumption reconciliation in
	// the same call.
	Contribution *ContributionFields `json:"contribution,omitempty"`
}

type ContributionFields struct {
	UserID             string  `json:"user_id"`
	ContributionAmount float64 `json:"contribution_amount"`
	MeterReading       float64 `json:"meter_reading"`
	TokensConsumed     float64 `json:"tokens_consumed"`
}

type ContributionRequest struct {
	PurchaseID string `json:"purchase_id"`
	ContributionFields
}

type ListRequest struct {
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
}

type Response struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	TotalTokens  float64               `json:"total_tokens"`
	TotalPayment float64               `json:"total_payment"`
	CostPerUnit  float64               `json:"cost_per_unit"`
	MeterReading float64               `json:"meter_reading"`
	PurchaseDate time.Time             `json:"purchase_date"`
	IsEmergency  bool                  `json:"is_emergency"`
	Contribution *ContributionResponse `json:"contribution,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type ContributionResponse struct {
	ID                 string  `json:"id"`
	PurchaseID         string  `json:"purchase_id"`
	UserID             string  `json:"user_id"`
	ContributionAmount float64 `json:"contribution_amount"`
	MeterReading       float64 `json:"meter_reading"`
	TokensConsumed     float64 `json:"tokens_consumed"`
	TrueCost           float64 `json:"true_cost"`
}

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidTotalTokens    = errors.New("invalid_total_tokens")
	ErrInvalidTotalPayment   = errors.New("invalid_total_payment")
	ErrInvalidPurchaseDate   = errors.New("invalid_purchase_date")
	ErrInvalidTokensConsumed = errors.New("invalid_tokens_consumed")
	ErrNotFound              = errors.New("not_found")
	ErrContributionExists    = errors.New("contribution_exists")
	ErrContributionNotFound  = errors.New("contribution_not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
