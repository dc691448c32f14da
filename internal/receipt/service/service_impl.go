package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/openutility/wattshare/internal/clock"
	"github.com/openutility/wattshare/internal/config"
	obsmetrics "github.com/openutility/wattshare/internal/observability/metrics"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
	"github.com/openutility/wattshare/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.PolicyHolder
	Repo         receiptdomain.Repository
	PurchaseRepo purchasedomain.Repository
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.PolicyHolder
	repo         receiptdomain.Repository
	purchaseRepo purchasedomain.Repository
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) receiptdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("receipt.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		repo:         p.Repo,
		purchaseRepo: p.PurchaseRepo,
		obsMetrics:   p.ObsMetrics,
	}
}

const dateLayout = "2006-01-02"

func (s *Service) Create(ctx context.Context, req receiptdomain.CreateRequest) (*receiptdomain.Response, error) {
	if err := validateReceiptFields(req.KwhPurchased, req.TotalAmount, req.TransactionAt); err != nil {
		return nil, err
	}
	purchaseID, err := receiptdomain.ParseID(strings.TrimSpace(req.PurchaseID))
	if err != nil {
		return nil, receiptdomain.ErrInvalidID
	}

	var m *receiptdomain.Receipt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.purchaseRepo.FindByID(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if p == nil {
			return receiptdomain.ErrPurchaseNotFound
		}

		existing, err := s.repo.FindByPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return receiptdomain.ErrReceiptExists
		}

		m = s.newReceipt(&purchaseID, rowFromCreate(req))
		return s.repo.Insert(ctx, tx, m)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, receiptdomain.ErrReceiptExists
		}
		return nil, err
	}
	return toResponse(m), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*receiptdomain.Response, error) {
	receiptID, err := receiptdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, receiptdomain.ErrInvalidID
	}
	m, err := s.repo.FindByID(ctx, s.db, receiptID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, receiptdomain.ErrNotFound
	}
	return toResponse(m), nil
}

func (s *Service) List(ctx context.Context, req receiptdomain.ListRequest) ([]receiptdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db, receiptdomain.ListFilter{
		From:  req.From,
		To:    req.To,
		Limit: req.Limit,
	})
	if err != nil {
		return nil, err
	}
	resp := make([]receiptdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// Match scores every row against purchases without a receipt and, in
// auto-import mode, persists the high and medium confidence pairs. Each
// row succeeds or fails on its own.
func (s *Service) Match(ctx context.Context, req receiptdomain.MatchRequest) (*receiptdomain.MatchResult, error) {
	pol := s.policy.Get().Matcher
	if len(req.Rows) > pol.MaxBatchSize {
		return nil, receiptdomain.ErrBatchTooLarge
	}

	result := &receiptdomain.MatchResult{
		BatchID:          ulid.Make().String(),
		Matches:          make([]receiptdomain.RowMatch, 0, len(req.Rows)),
		ValidationErrors: []string{},
	}

	candidates, err := s.purchaseRepo.ListUnreceipted(ctx, s.db)
	if err != nil {
		return nil, err
	}

	// Purchases claimed earlier in this batch are off the table for
	// later rows even before the insert lands.
	claimed := make(map[snowflake.ID]bool)

	for i := range req.Rows {
		row := &req.Rows[i]
		match := receiptdomain.RowMatch{
			RowIndex:   i,
			Confidence: receiptdomain.ConfidenceNone,
			Reasons:    []string{},
			Warnings:   []string{},
		}

		if err := validateReceiptFields(row.KwhPurchased, row.TotalAmount, row.TransactionAt); err != nil {
			match.Error = err.Error()
			result.ValidationErrors = append(result.ValidationErrors,
				fmt.Sprintf("row %d: %s", i, err.Error()))
			result.Matches = append(result.Matches, match)
			continue
		}

		best := s.pickBest(row, candidates, claimed)
		if best == nil {
			match.Warnings = append(match.Warnings, "no plausible purchase found; manual review required")
			result.Matches = append(result.Matches, match)
			s.obsMetrics.RecordReceiptMatched(ctx, match.Confidence)
			continue
		}

		match.ConfidenceScore = best.score
		match.Confidence = Classify(best.score, pol)
		if match.Confidence != receiptdomain.ConfidenceNone {
			match.PurchaseID = best.purchase.ID.String()
			match.Reasons = matchReasons(row, best)
		}
		if match.Confidence == receiptdomain.ConfidenceLow {
			match.Warnings = append(match.Warnings, "low confidence match; manual review required")
		}
		if match.Confidence == receiptdomain.ConfidenceNone {
			match.Warnings = append(match.Warnings, "no plausible purchase found; manual review required")
		}
		s.obsMetrics.RecordReceiptMatched(ctx, match.Confidence)

		if req.AutoImport && importable(match.Confidence) {
			s.importRow(ctx, row, best.purchase.ID, &match, claimed)
			if match.Imported {
				result.Imported++
			}
		}

		result.Matches = append(result.Matches, match)
	}

	s.log.Info("receipt batch matched",
		zap.String("batch_id", result.BatchID),
		zap.Int("rows", len(req.Rows)),
		zap.Int("imported", result.Imported),
		zap.Bool("auto_import", req.AutoImport),
	)
	return result, nil
}

type candidateMatch struct {
	purchase  *purchasedomain.Purchase
	score     float64
	dayDelta  int
	dateScore float64
	kwhScore  float64
}

// pickBest returns the highest scoring unclaimed candidate. Ties break on
// the smaller calendar-day delta, then the smaller purchase ID, so a
// batch always resolves the same way.
func (s *Service) pickBest(row *receiptdomain.Row, candidates []purchasedomain.Purchase, claimed map[snowflake.ID]bool) *candidateMatch {
	var best *candidateMatch
	for i := range candidates {
		p := &candidates[i]
		if claimed[p.ID] {
			continue
		}
		dateScore := DateProximityScore(row.TransactionAt, p.PurchaseDate)
		kwhScore := KwhScore(row.KwhPurchased, p.TotalTokens)
		cand := &candidateMatch{
			purchase:  p,
			score:     dateScore + kwhScore,
			dayDelta:  calendarDaysApart(row.TransactionAt, p.PurchaseDate),
			dateScore: dateScore,
			kwhScore:  kwhScore,
		}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best
}

func better(a, b *candidateMatch) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.dayDelta != b.dayDelta {
		return a.dayDelta < b.dayDelta
	}
	return a.purchase.ID < b.purchase.ID
}

func importable(confidence string) bool {
	return confidence == receiptdomain.ConfidenceHigh || confidence == receiptdomain.ConfidenceMedium
}

// importRow attaches the row to its matched purchase. Failures stay on
// the row result; the batch keeps going.
func (s *Service) importRow(ctx context.Context, row *receiptdomain.Row, purchaseID snowflake.ID, match *receiptdomain.RowMatch, claimed map[snowflake.ID]bool) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return receiptdomain.ErrReceiptExists
		}
		m := s.newReceipt(&purchaseID, *row)
		if err := s.repo.Insert(ctx, tx, m); err != nil {
			return err
		}
		match.ReceiptID = m.ID.String()
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			err = receiptdomain.ErrReceiptExists
		}
		match.Error = err.Error()
		s.obsMetrics.RecordReceiptImported(ctx, "failed")
		return
	}

	claimed[purchaseID] = true
	match.Imported = true
	s.obsMetrics.RecordReceiptImported(ctx, "imported")
}

func matchReasons(row *receiptdomain.Row, cand *candidateMatch) []string {
	reasons := make([]string, 0, 2)
	switch cand.dayDelta {
	case 0:
		reasons = append(reasons, fmt.Sprintf(
			"transaction date %s matches the purchase date exactly",
			row.TransactionAt.UTC().Format(dateLayout)))
	default:
		reasons = append(reasons, fmt.Sprintf(
			"transaction date %s is %d day(s) from purchase date %s",
			row.TransactionAt.UTC().Format(dateLayout),
			cand.dayDelta,
			cand.purchase.PurchaseDate.UTC().Format(dateLayout)))
	}
	if cand.kwhScore == 50 {
		reasons = append(reasons, fmt.Sprintf(
			"%.2f kWh matches the purchase total exactly", row.KwhPurchased))
	} else if cand.kwhScore > 0 {
		reasons = append(reasons, fmt.Sprintf(
			"%.2f kWh is close to the %.2f tokens purchased",
			row.KwhPurchased, cand.purchase.TotalTokens))
	} else {
		reasons = append(reasons, fmt.Sprintf(
			"%.2f kWh does not resemble the %.2f tokens purchased",
			row.KwhPurchased, cand.purchase.TotalTokens))
	}
	return reasons
}

func validateReceiptFields(kwh, totalAmount float64, transactionAt time.Time) error {
	if kwh <= 0 {
		return receiptdomain.ErrInvalidKwh
	}
	if totalAmount <= 0 {
		return receiptdomain.ErrInvalidTotalAmount
	}
	if transactionAt.IsZero() {
		return receiptdomain.ErrInvalidTransactionAt
	}
	return nil
}

func (s *Service) newReceipt(purchaseID *snowflake.ID, row receiptdomain.Row) *receiptdomain.Receipt {
	now := s.clock.Now()
	return &receiptdomain.Receipt{
		ID:            s.genID.Generate(),
		PurchaseID:    purchaseID,
		TokenNumber:   row.TokenNumber,
		AccountNumber: row.AccountNumber,
		KwhPurchased:  row.KwhPurchased,
		EnergyCost:    row.EnergyCost,
		Debt:          row.Debt,
		Rea:           row.Rea,
		Vat:           row.Vat,
		TotalAmount:   row.TotalAmount,
		Tendered:      row.Tendered,
		TransactionAt: row.TransactionAt.UTC(),
		Metadata:      rowMetadata(row),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// rowMetadata preserves the vendor row as submitted, before any
// normalization, so the original figures stay queryable on the receipt.
func rowMetadata(row receiptdomain.Row) datatypes.JSONMap {
	m := datatypes.JSONMap{
		"kwh_purchased":  row.KwhPurchased,
		"energy_cost":    row.EnergyCost,
		"debt":           row.Debt,
		"rea":            row.Rea,
		"vat":            row.Vat,
		"total_amount":   row.TotalAmount,
		"tendered":       row.Tendered,
		"transaction_at": row.TransactionAt.UTC().Format(time.RFC3339),
	}
	if row.TokenNumber != nil {
		m["token_number"] = *row.TokenNumber
	}
	if row.AccountNumber != nil {
		m["account_number"] = *row.AccountNumber
	}
	return m
}

func rowFromCreate(req receiptdomain.CreateRequest) receiptdomain.Row {
	return receiptdomain.Row{
		TokenNumber:   req.TokenNumber,
		AccountNumber: req.AccountNumber,
		KwhPurchased:  req.KwhPurchased,
		EnergyCost:    req.EnergyCost,
		Debt:          req.Debt,
		Rea:           req.Rea,
		Vat:           req.Vat,
		TotalAmount:   req.TotalAmount,
		Tendered:      req.Tendered,
		TransactionAt: req.TransactionAt,
	}
}

func toResponse(m *receiptdomain.Receipt) *receiptdomain.Response {
	resp := &receiptdomain.Response{
		ID:            m.ID.String(),
		TokenNumber:   m.TokenNumber,
		AccountNumber: m.AccountNumber,
		KwhPurchased:  m.KwhPurchased,
		EnergyCost:    m.EnergyCost,
		Debt:          m.Debt,
		Rea:           m.Rea,
		Vat:           m.Vat,
		TotalAmount:   m.TotalAmount,
		Tendered:      m.Tendered,
		TransactionAt: m.TransactionAt,
		CreatedAt:     m.CreatedAt,
	}
	if m.PurchaseID != nil {
		resp.PurchaseID = m.PurchaseID.String()
	}
	return resp
}
