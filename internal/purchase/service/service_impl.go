package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openutility/wattshare/internal/costing"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	"github.com/openutility/wattshare/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  purchasedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  purchasedomain.Repository
	genID *snowflake.Node
}

func New(p Params) purchasedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("purchase.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req purchasedomain.CreateRequest) (*purchasedomain.Response, error) {
	userID, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}

	if req.TotalTokens <= 0 {
		return nil, purchasedomain.ErrInvalidTotalTokens
	}
	if req.TotalPayment <= 0 {
		return nil, purchasedomain.ErrInvalidTotalPayment
	}
	if req.PurchaseDate.IsZero() {
		return nil, purchasedomain.ErrInvalidPurchaseDate
	}

	var contribUserID snowflake.ID
	if req.Contribution != nil {
		contribUserID, err = parseUserID(req.Contribution.UserID)
		if err != nil {
			return nil, err
		}
		if req.Contribution.TokensConsumed < 0 {
			return nil, purchasedomain.ErrInvalidTokensConsumed
		}
	}

	now := time.Now().UTC()
	p := &purchasedomain.Purchase{
		ID:           s.genID.Generate(),
		UserID:       userID,
		TotalTokens:  req.TotalTokens,
		TotalPayment: req.TotalPayment,
		MeterReading: req.MeterReading,
		PurchaseDate: req.PurchaseDate.UTC(),
		IsEmergency:  req.IsEmergency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var c *purchasedomain.Contribution
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, p); err != nil {
			return err
		}
		if req.Contribution == nil {
			return nil
		}
		c = &purchasedomain.Contribution{
			ID:                 s.genID.Generate(),
			PurchaseID:         p.ID,
			UserID:             contribUserID,
			ContributionAmount: req.Contribution.ContributionAmount,
			MeterReading:       req.Contribution.MeterReading,
			TokensConsumed:     req.Contribution.TokensConsumed,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return s.repo.InsertContribution(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	return s.toResponse(p, c), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*purchasedomain.Response, error) {
	purchaseID, err := purchasedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, purchasedomain.ErrInvalidID
	}

	p, err := s.repo.FindByID(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, purchasedomain.ErrNotFound
	}

	c, err := s.repo.FindContributionByPurchase(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}

	return s.toResponse(p, c), nil
}

func (s *Service) List(ctx context.Context, req purchasedomain.ListRequest) ([]purchasedomain.Response, error) {
	filter := purchasedomain.ListFilter{
		From:  req.From,
		To:    req.To,
		Limit: req.Limit,
	}
	if trimmed := strings.TrimSpace(req.UserID); trimmed != "" {
		userID, err := purchasedomain.ParseID(trimmed)
		if err != nil {
			return nil, purchasedomain.ErrInvalidUser
		}
		filter.UserID = userID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]purchasedomain.Response, 0, len(items))
	for i := range items {
		c, err := s.repo.FindContributionByPurchase(ctx, s.db, items[i].ID)
		if err != nil {
			return nil, err
		}
		resp = append(resp, *s.toResponse(&items[i], c))
	}
	return resp, nil
}

// Delete removes a purchase and the contribution it owns in one
// transaction, keeping the 1:1 ownership invariant.
func (s *Service) Delete(ctx context.Context, id string) error {
	purchaseID, err := purchasedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return purchasedomain.ErrInvalidID
	}

	p, err := s.repo.FindByID(ctx, s.db, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return purchasedomain.ErrNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteContributionByPurchase(ctx, tx, purchaseID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, purchaseID)
	})
}

func (s *Service) RecordContribution(ctx context.Context, req purchasedomain.ContributionRequest) (*purchasedomain.ContributionResponse, error) {
	purchaseID, userID, err := s.parseContributionIDs(req)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, purchasedomain.ErrNotFound
	}

	now := time.Now().UTC()
	c := &purchasedomain.Contribution{
		ID:                 s.genID.Generate(),
		PurchaseID:         purchaseID,
		UserID:             userID,
		ContributionAmount: req.ContributionAmount,
		MeterReading:       req.MeterReading,
		TokensConsumed:     req.TokensConsumed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindContributionByPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return purchasedomain.ErrContributionExists
		}
		return s.repo.InsertContribution(ctx, tx, c)
	})
	if err != nil {
		// ux_contributions_purchase catches the race the exists check
		// cannot see.
		if db.IsDuplicateKeyErr(err) {
			return nil, purchasedomain.ErrContributionExists
		}
		return nil, err
	}

	return s.toContributionResponse(c, p), nil
}

func (s *Service) UpdateContribution(ctx context.Context, req purchasedomain.ContributionRequest) (*purchasedomain.ContributionResponse, error) {
	purchaseID, userID, err := s.parseContributionIDs(req)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, purchasedomain.ErrNotFound
	}

	existing, err := s.repo.FindContributionByPurchase(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, purchasedomain.ErrContributionNotFound
	}

	existing.UserID = userID
	existing.ContributionAmount = req.ContributionAmount
	existing.MeterReading = req.MeterReading
	existing.TokensConsumed = req.TokensConsumed
	existing.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateContribution(ctx, s.db, existing); err != nil {
		return nil, err
	}

	return s.toContributionResponse(existing, p), nil
}

func (s *Service) parseContributionIDs(req purchasedomain.ContributionRequest) (snowflake.ID, snowflake.ID, error) {
	purchaseID, err := purchasedomain.ParseID(strings.TrimSpace(req.PurchaseID))
	if err != nil {
		return 0, 0, purchasedomain.ErrInvalidID
	}
	userID, err := parseUserID(req.UserID)
	if err != nil {
		return 0, 0, err
	}
	if req.TokensConsumed < 0 {
		return 0, 0, purchasedomain.ErrInvalidTokensConsumed
	}
	return purchaseID, userID, nil
}

func parseUserID(value string) (snowflake.ID, error) {
	userID, err := purchasedomain.ParseID(strings.TrimSpace(value))
	if err != nil || userID == 0 {
		return 0, purchasedomain.ErrInvalidUser
	}
	return userID, nil
}

func (s *Service) toResponse(p *purchasedomain.Purchase, c *purchasedomain.Contribution) *purchasedomain.Response {
	resp := &purchasedomain.Response{
		ID:           p.ID.String(),
		UserID:       p.UserID.String(),
		TotalTokens:  p.TotalTokens,
		TotalPayment: p.TotalPayment,
		CostPerUnit:  costing.CostPerUnit(p.TotalPayment, p.TotalTokens),
		MeterReading: p.MeterReading,
		PurchaseDate: p.PurchaseDate,
		IsEmergency:  p.IsEmergency,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if c != nil {
		resp.Contribution = s.toContributionResponse(c, p)
	}
	return resp
}

func (s *Service) toContributionResponse(c *purchasedomain.Contribution, p *purchasedomain.Purchase) *purchasedomain.ContributionResponse {
	return &purchasedomain.ContributionResponse{
		ID:                 c.ID.String(),
		PurchaseID:         c.PurchaseID.String(),
		UserID:             c.UserID.String(),
		ContributionAmount: c.ContributionAmount,
		MeterReading:       c.MeterReading,
		TokensConsumed:     c.TokensConsumed,
		TrueCost:           costing.TrueCost(c.TokensConsumed, p.TotalTokens, p.TotalPayment),
	}
}
