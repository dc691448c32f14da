package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Validate checks a prospective reading against the global series
	// without inserting it.
	Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error)

	// Record validates and, when valid, inserts the reading. Validation
	// and insert share one transaction so concurrent inserts cannot both
	// pass against stale neighbors.
	Record(ctx context.Context, req ValidateRequest) (*RecordResult, error)

	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type ValidateRequest struct {
	UserID      string    `json:"user_id"`
	Reading     float64   `json:"reading"`
	ReadingDate time.Time `json:"reading_date"`
}

type ListRequest struct {
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
}

// ValidationResult is a structured outcome rather than an error: hard
// violations land in Errors, advisory findings in Warnings.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Errors     []string    `json:"errors"`
	Warnings   []string    `json:"warnings"`
	Statistics *Statistics `json:"statistics,omitempty"`
}

// Statistics describes the consumption profile the soft checks ran
// against. Present only when enough history existed.
type Statistics struct {
	DailyConsumption  float64 `json:"daily_consumption"`
	HistoricalAverage float64 `json:"historical_average"`
	HistoricalMax     float64 `json:"historical_max"`
	HistoricalMin     float64 `json:"historical_min"`
	HistoricalMedian  float64 `json:"historical_median"`
	Threshold         float64 `json:"threshold"`
	DaysBetween       float64 `json:"days_between"`
}

// RecordResult carries the validation outcome and, when the reading was
// accepted, the stored point.
type RecordResult struct {
	Validation *ValidationResult `json:"validation"`
	Reading    *Response         `json:"reading,omitempty"`
}

type Response struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Reading     float64   `json:"reading"`
	ReadingDate time.Time `json:"reading_date"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidDate = errors.New("invalid_reading_date")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
