package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/openutility/wattshare/internal/balance/domain"
	"github.com/openutility/wattshare/internal/costing"
	obsmetrics "github.com/openutility/wattshare/internal/observability/metrics"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       purchasedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       purchasedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) balancedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("balance.service"),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// ComputeBalance re-reads the member's whole contribution history and
// replays it in purchase-date order. Record creation timestamps are
// ignored on purpose: a backup restore may rewrite them, purchase dates
// survive.
func (s *Service) ComputeBalance(ctx context.Context, userID string) (*balancedomain.Balance, error) {
	uid, err := purchasedomain.ParseID(strings.TrimSpace(userID))
	if err != nil || uid == 0 {
		return nil, balancedomain.ErrInvalidUser
	}

	contributions, err := s.repo.ListContributionsByUser(ctx, s.db, uid)
	if err != nil {
		return nil, err
	}

	result := &balancedomain.Balance{
		UserID: uid.String(),
		Lines:  make([]balancedomain.Line, 0, len(contributions)),
	}
	if len(contributions) == 0 {
		return result, nil
	}

	purchases, err := s.repo.List(ctx, s.db, purchasedomain.ListFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*purchasedomain.Purchase, len(purchases))
	for i := range purchases {
		byID[purchases[i].ID] = &purchases[i]
	}

	// The earliest purchase is resolved once per run, across ALL
	// purchases, not just this member's.
	earliest, err := s.repo.FindEarliest(ctx, s.db)
	if err != nil {
		return nil, err
	}

	ordered := make([]*purchasedomain.Contribution, 0, len(contributions))
	for i := range contributions {
		c := &contributions[i]
		if _, ok := byID[c.PurchaseID]; !ok {
			return nil, &balancedomain.BrokenReferenceError{
				ContributionID: c.ID,
				PurchaseID:     c.PurchaseID,
			}
		}
		ordered = append(ordered, c)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := byID[ordered[i].PurchaseID], byID[ordered[j].PurchaseID]
		if !pi.PurchaseDate.Equal(pj.PurchaseDate) {
			return pi.PurchaseDate.Before(pj.PurchaseDate)
		}
		return pi.ID < pj.ID
	})

	var running float64
	for _, c := range ordered {
		p := byID[c.PurchaseID]

		// The globally first purchase has no predecessor to measure
		// consumption-before-replenishment against, so its contribution
		// carries no fair share.
		first := earliest != nil && p.ID == earliest.ID
		effective := c.TokensConsumed
		if first {
			effective = 0
		}

		fairShare := costing.TrueCost(effective, p.TotalTokens, p.TotalPayment)
		change := c.ContributionAmount - fairShare
		running += change

		result.Lines = append(result.Lines, balancedomain.Line{
			ContributionID:     c.ID.String(),
			PurchaseID:         p.ID.String(),
			PurchaseDate:       p.PurchaseDate,
			TokensConsumed:     c.TokensConsumed,
			EffectiveTokens:    effective,
			FirstPurchase:      first,
			FairShare:          fairShare,
			ContributionAmount: c.ContributionAmount,
			BalanceChange:      change,
			RunningBalance:     running,
		})
	}

	result.RunningBalance = running
	s.obsMetrics.RecordBalanceRecompute(ctx)
	return result, nil
}
