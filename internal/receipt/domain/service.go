package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create attaches a receipt to a purchase. Fails distinctly when the
	// purchase does not exist versus when it already owns a receipt.
	Create(ctx context.Context, req CreateRequest) (*Response, error)

	GetByID(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)

	// Match pairs externally supplied receipt rows with purchases that do
	// not yet own a receipt. With AutoImport set, high and medium
	// confidence matches are persisted; everything else is reported for
	// manual review. Rows fail independently, never the whole batch.
	Match(ctx context.Context, req MatchRequest) (*MatchResult, error)
}

type CreateRequest struct {
	PurchaseID    string    `json:"purchase_id"`
	TokenNumber   *string   `json:"token_number,omitempty"`
	AccountNumber *string   `json:"account_number,omitempty"`
	KwhPurchased  float64   `json:"kwh_purchased"`
	EnergyCost    float64   `json:"energy_cost"`
	Debt          float64   `json:"debt"`
	Rea           float64   `json:"rea"`
	Vat           float64   `json:"vat"`
	TotalAmount   float64   `json:"total_amount"`
	Tendered      float64   `json:"tendered"`
	TransactionAt time.Time `json:"transaction_at"`
}

type ListRequest struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Row is one externally supplied receipt line in a matching batch.
type Row struct {
	TokenNumber   *string   `json:"token_number,omitempty"`
	AccountNumber *string   `json:"account_number,omitempty"`
	KwhPurchased  float64   `json:"kwh_purchased"`
	EnergyCost    float64   `json:"energy_cost"`
	Debt          float64   `json:"debt"`
	Rea           float64   `json:"rea"`
	Vat           float64   `json:"vat"`
	TotalAmount   float64   `json:"total_amount"`
	Tendered      float64   `json:"tendered"`
	TransactionAt time.Time `json:"transaction_at"`
}

type MatchRequest struct {
	Rows       []Row `json:"rows"`
	AutoImport bool  `json:"auto_import"`
}

// Confidence classes, highest first.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "none"
)

// RowMatch is the per-row outcome. PurchaseID is empty when no candidate
// scored above zero.
type RowMatch struct {
	RowIndex        int      `json:"row_index"`
	PurchaseID      string   `json:"purchase_id,omitempty"`
	Confidence      string   `json:"confidence"`
	ConfidenceScore float64  `json:"confidence_score"`
	Reasons         []string `json:"reasons"`
	Warnings        []string `json:"warnings"`
	Imported        bool     `json:"imported"`
	Error           string   `json:"error,omitempty"`
	ReceiptID       string   `json:"receipt_id,omitempty"`
}

type MatchResult struct {
	BatchID          string     `json:"batch_id"`
	Matches          []RowMatch `json:"matches"`
	ValidationErrors []string   `json:"validation_errors"`
	Imported         int        `json:"imported"`
}

type Response struct {
	ID            string    `json:"id"`
	PurchaseID    string    `json:"purchase_id,omitempty"`
	TokenNumber   *string   `json:"token_number,omitempty"`
	AccountNumber *string   `json:"account_number,omitempty"`
	KwhPurchased  float64   `json:"kwh_purchased"`
	EnergyCost    float64   `json:"energy_cost"`
	Debt          float64   `json:"debt"`
	Rea           float64   `json:"rea"`
	Vat           float64   `json:"vat"`
	TotalAmount   float64   `json:"total_amount"`
	Tendered      float64   `json:"tendered"`
	TransactionAt time.Time `json:"transaction_at"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	ErrInvalidID            = errors.New("invalid_receipt_id")
	ErrInvalidKwh           = errors.New("invalid_kwh_purchased")
	ErrInvalidTotalAmount   = errors.New("invalid_total_amount")
	ErrInvalidTransactionAt = errors.New("invalid_transaction_at")
	ErrPurchaseNotFound     = errors.New("purchase_not_found")
	ErrReceiptExists        = errors.New("receipt_already_exists")
	ErrNotFound             = errors.New("receipt_not_found")
	ErrBatchTooLarge        = errors.New("batch_too_large")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
