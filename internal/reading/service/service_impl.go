package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openutility/wattshare/internal/clock"
	"github.com/openutility/wattshare/internal/config"
	obsmetrics "github.com/openutility/wattshare/internal/observability/metrics"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Policy       *config.PolicyHolder
	Repo         readingdomain.Repository
	PurchaseRepo purchasedomain.Repository
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	initial      float64
	policy       *config.PolicyHolder
	repo         readingdomain.Repository
	purchaseRepo purchasedomain.Repository
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) readingdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("reading.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		initial:      p.Config.InitialMeterReading,
		policy:       p.Policy,
		repo:         p.Repo,
		purchaseRepo: p.PurchaseRepo,
		obsMetrics:   p.ObsMetrics,
	}
}

const dateLayout = "2006-01-02"

func (s *Service) Validate(ctx context.Context, req readingdomain.ValidateRequest) (*readingdomain.ValidationResult, error) {
	uid, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	if req.ReadingDate.IsZero() {
		return nil, readingdomain.ErrInvalidDate
	}

	var result *readingdomain.ValidationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verr error
		result, verr = s.validate(ctx, tx, uid, req.Reading, req.ReadingDate.UTC())
		return verr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Record validates the reading and inserts it when valid. Both steps run
// inside one transaction so the neighbors the checks ran against cannot
// change underneath the insert.
func (s *Service) Record(ctx context.Context, req readingdomain.ValidateRequest) (*readingdomain.RecordResult, error) {
	uid, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	if req.ReadingDate.IsZero() {
		return nil, readingdomain.ErrInvalidDate
	}
	date := req.ReadingDate.UTC()

	out := &readingdomain.RecordResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		validation, err := s.validate(ctx, tx, uid, req.Reading, date)
		if err != nil {
			return err
		}
		out.Validation = validation
		if !validation.Valid {
			return nil
		}

		now := s.clock.Now()
		m := &readingdomain.MeterReading{
			ID:          s.genID.Generate(),
			UserID:      uid,
			Reading:     req.Reading,
			ReadingDate: date,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, m); err != nil {
			return err
		}
		out.Reading = toResponse(m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "accepted"
	if !out.Validation.Valid {
		outcome = "rejected"
	}
	s.obsMetrics.RecordReadingValidated(ctx, outcome)

	if !out.Validation.Valid {
		s.log.Info("reading rejected",
			zap.String("user_id", uid.String()),
			zap.Float64("reading", req.Reading),
			zap.Strings("errors", out.Validation.Errors),
		)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, req readingdomain.ListRequest) ([]readingdomain.Response, error) {
	filter := readingdomain.ListFilter{
		From:  req.From,
		To:    req.To,
		Limit: req.Limit,
	}
	if trimmed := strings.TrimSpace(req.UserID); trimmed != "" {
		uid, err := parseUserID(trimmed)
		if err != nil {
			return nil, err
		}
		filter.UserID = uid
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]readingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// validate applies the hard chronological invariants first and, only when
// they all pass, the statistical plausibility checks. Statistics never
// rescue a reading the hard checks rejected.
func (s *Service) validate(ctx context.Context, tx *gorm.DB, uid snowflake.ID, reading float64, date time.Time) (*readingdomain.ValidationResult, error) {
	result := &readingdomain.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	count, err := s.purchaseRepo.CountAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		result.Errors = append(result.Errors,
			"no purchases recorded yet; record the purchase that loaded the meter first")
		return result, nil
	}

	if reading < 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("reading %.2f cannot be negative", reading))
		return result, nil
	}

	sameDay, err := s.repo.MaxOnDate(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	if sameDay != nil && reading < sameDay.Reading {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reading %.2f is below the reading %.2f already recorded on %s",
			reading, sameDay.Reading, sameDay.ReadingDate.UTC().Format(dateLayout)))
	}

	prev, err := s.repo.LastBefore(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	if prev != nil && reading < prev.Reading {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reading %.2f is below the earlier reading %.2f recorded on %s",
			reading, prev.Reading, prev.ReadingDate.UTC().Format(dateLayout)))
	}

	next, err := s.repo.FirstAfter(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	if next != nil && reading > next.Reading {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reading %.2f exceeds the later reading %.2f recorded on %s",
			reading, next.Reading, next.ReadingDate.UTC().Format(dateLayout)))
	}

	purchased, err := s.purchaseRepo.SumTokensThrough(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	ceiling := s.initial + purchased
	if reading > ceiling {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reading %.2f exceeds the maximum possible value %.2f (initial reading %.2f plus %.2f units purchased through %s)",
			reading, ceiling, s.initial, purchased, date.Format(dateLayout)))
	}

	if len(result.Errors) > 0 {
		return result, nil
	}

	if err := s.applyStatistics(ctx, tx, result, uid, reading, date, prev); err != nil {
		return nil, err
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// applyStatistics compares the implied daily consumption against the
// recorder's own history. With too little history it stays silent.
func (s *Service) applyStatistics(ctx context.Context, tx *gorm.DB, result *readingdomain.ValidationResult, uid snowflake.ID, reading float64, date time.Time, prev *readingdomain.MeterReading) error {
	if prev == nil {
		return nil
	}
	pol := s.policy.Get().Reading

	history, err := s.repo.ListRecentByUser(ctx, tx, uid, pol.HistoryWindow)
	if err != nil {
		return err
	}
	if len(history) < pol.MinHistoryPoints {
		return nil
	}

	rates := dailyRates(history)
	if len(rates) == 0 {
		return nil
	}

	daysBetween := daysApart(prev.ReadingDate, date)
	daily := (reading - prev.Reading) / daysBetween

	avg, min, max := summarize(rates)
	med := median(rates)
	threshold := maxOf(
		pol.AverageMultiplier*avg,
		pol.MedianMultiplier*med,
		pol.MaxMultiplier*max,
		pol.AbsoluteFloor,
	)

	result.Statistics = &readingdomain.Statistics{
		DailyConsumption:  daily,
		HistoricalAverage: avg,
		HistoricalMax:     max,
		HistoricalMin:     min,
		HistoricalMedian:  med,
		Threshold:         threshold,
		DaysBetween:       daysBetween,
	}

	switch {
	case daily > threshold:
		result.Errors = append(result.Errors, fmt.Sprintf(
			"daily consumption %.2f units/day is implausibly high (threshold %.2f, historical average %.2f)",
			daily, threshold, avg))
	case daily > pol.WarnAverageMultiplier*avg:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"daily consumption %.2f units/day is significantly higher than the historical average %.2f",
			daily, avg))
	case daily > 0 && daily < pol.LowFraction*avg:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"daily consumption %.2f units/day is unusually low against the historical average %.2f",
			daily, avg))
	case daily == 0 && daysBetween > 1:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"zero consumption over %.0f days since the reading on %s",
			daysBetween, prev.ReadingDate.UTC().Format(dateLayout)))
	}
	return nil
}

// dailyRates converts a user's reading history into per-day consumption
// rates between consecutive points. Non-increasing pairs are skipped;
// they belong to other recorders interleaving on the shared series.
func dailyRates(history []readingdomain.MeterReading) []float64 {
	if len(history) < 2 {
		return nil
	}
	ordered := make([]readingdomain.MeterReading, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ReadingDate.Equal(ordered[j].ReadingDate) {
			return ordered[i].ReadingDate.Before(ordered[j].ReadingDate)
		}
		return ordered[i].ID < ordered[j].ID
	})

	rates := make([]float64, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		delta := ordered[i].Reading - ordered[i-1].Reading
		if delta < 0 {
			continue
		}
		rates = append(rates, delta/daysApart(ordered[i-1].ReadingDate, ordered[i].ReadingDate))
	}
	return rates
}

// daysApart returns the gap in days, never less than one so same-day and
// sub-day gaps do not inflate the rate to infinity.
func daysApart(from, to time.Time) float64 {
	days := to.UTC().Sub(from.UTC()).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

func summarize(values []float64) (avg, min, max float64) {
	min, max = values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return sum / float64(len(values)), min, max
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func maxOf(values ...float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func parseUserID(value string) (snowflake.ID, error) {
	uid, err := readingdomain.ParseID(strings.TrimSpace(value))
	if err != nil || uid == 0 {
		return 0, readingdomain.ErrInvalidUser
	}
	return uid, nil
}

func toResponse(m *readingdomain.MeterReading) *readingdomain.Response {
	return &readingdomain.Response{
		ID:          m.ID.String(),
		UserID:      m.UserID.String(),
		Reading:     m.Reading,
		ReadingDate: m.ReadingDate,
		CreatedAt:   m.CreatedAt,
	}
}
