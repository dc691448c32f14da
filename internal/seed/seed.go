package seed

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openutility/wattshare/internal/config"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config
	Repo   purchasedomain.Repository
}

// Run loads a small demo ledger into an empty database. It only fires
// when SEED_DEMO_DATA is set, so production stores are never touched.
func Run(p Params) error {
	if !p.Config.SeedDemoData {
		return nil
	}

	ctx := context.Background()
	count, err := p.Repo.CountAll(ctx, p.DB)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log := p.Log.Named("seed")
	user := p.GenID.Generate()
	now := time.Now().UTC()

	purchases := []struct {
		tokens, payment, contribution, consumed float64
		date                                    time.Time
		emergency                               bool
	}{
		{100, 20, 10, 40, date(2024, 1, 1), false},
		{200, 50, 18, 80, date(2024, 2, 1), false},
		{50, 20, 8, 25, date(2024, 2, 20), true},
		{150, 40, 20, 60, date(2024, 3, 10), false},
	}

	meter := p.Config.InitialMeterReading
	for _, row := range purchases {
		purchaseID := p.GenID.Generate()
		err := p.Repo.Insert(ctx, p.DB, &purchasedomain.Purchase{
			ID:           purchaseID,
			UserID:       user,
			TotalTokens:  row.tokens,
			TotalPayment: row.payment,
			MeterReading: meter,
			PurchaseDate: row.date,
			IsEmergency:  row.emergency,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		err = p.Repo.InsertContribution(ctx, p.DB, &purchasedomain.Contribution{
			ID:                 p.GenID.Generate(),
			PurchaseID:         purchaseID,
			UserID:             user,
			ContributionAmount: row.contribution,
			MeterReading:       meter,
			TokensConsumed:     row.consumed,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}

		meter += row.tokens
		err = p.DB.Create(&readingdomain.MeterReading{
			ID:          p.GenID.Generate(),
			UserID:      user,
			Reading:     meter - row.consumed,
			ReadingDate: row.date.AddDate(0, 0, 7),
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error
		if err != nil {
			return err
		}
	}

	log.Info("demo ledger seeded",
		zap.String("user_id", user.String()),
		zap.Int("purchases", len(purchases)),
	)
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)
