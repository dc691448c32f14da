package migration

import (
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run migrates the ledger schema on startup.
func Run(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&purchasedomain.Purchase{},
		&purchasedomain.Contribution{},
		&readingdomain.MeterReading{},
		&receiptdomain.Receipt{},
	)
	if err != nil {
		return err
	}
	log.Info("database schema migrated")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
