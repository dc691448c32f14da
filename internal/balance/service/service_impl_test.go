package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/openutility/wattshare/internal/balance/domain"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	purchaserepo "github.com/openutility/wattshare/internal/purchase/repository"
	"github.com/openutility/wattshare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  balancedomain.Service
	db   *gorm.DB
	node *snowflake.Node
	repo purchasedomain.Repository
	user snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&purchasedomain.Purchase{},
		&purchasedomain.Contribution{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := purchaserepo.Provide()
	svc := New(Params{
		DB:   conn,
		Log:  zap.NewNop(),
		Repo: repo,
	})

	return &fixture{
		svc:  svc,
		db:   conn,
		node: node,
		repo: repo,
		user: node.Generate(),
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) addPurchase(t *testing.T, tokens, payment float64, when time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	err := f.repo.Insert(context.Background(), f.db, &purchasedomain.Purchase{
		ID:           id,
		UserID:       f.user,
		TotalTokens:  tokens,
		TotalPayment: payment,
		PurchaseDate: when,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) addContribution(t *testing.T, purchaseID, userID snowflake.ID, amount, tokensConsumed float64) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	err := f.repo.InsertContribution(context.Background(), f.db, &purchasedomain.Contribution{
		ID:                 id,
		PurchaseID:         purchaseID,
		UserID:             userID,
		ContributionAmount: amount,
		TokensConsumed:     tokensConsumed,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func TestComputeBalance_FirstPurchaseCarriesNoFairShare(t *testing.T) {
	f := newFixture(t)

	p := f.addPurchase(t, 100, 50, date(2024, 1, 1))
	f.addContribution(t, p, f.user, 10, 40)

	res, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)

	line := res.Lines[0]
	assert.True(t, line.FirstPurchase)
	assert.Equal(t, 0.0, line.EffectiveTokens)
	assert.InDelta(t, 0, line.FairShare, 0.01)
	assert.InDelta(t, 10, line.BalanceChange, 0.01)
	assert.InDelta(t, 10, res.RunningBalance, 0.01)
}

func TestComputeBalance_FairShareIsProportional(t *testing.T) {
	f := newFixture(t)

	first := f.addPurchase(t, 100, 50, date(2024, 1, 1))
	f.addContribution(t, first, f.user, 0, 0)

	second := f.addPurchase(t, 200, 50, date(2024, 2, 1))
	f.addContribution(t, second, f.user, 18, 80)

	res, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)

	// 80/200 * 50.00 = 20.00 fair share against an 18.00 contribution.
	line := res.Lines[1]
	assert.False(t, line.FirstPurchase)
	assert.InDelta(t, 20, line.FairShare, 0.01)
	assert.InDelta(t, -2, line.BalanceChange, 0.01)
	assert.InDelta(t, -2, res.RunningBalance, 0.01)
}

func TestComputeBalance_OrdersByPurchaseDateNotInsertOrder(t *testing.T) {
	f := newFixture(t)

	// Inserted newest first; replay must still run oldest first.
	later := f.addPurchase(t, 100, 100, date(2024, 3, 1))
	f.addContribution(t, later, f.user, 30, 20)
	earlier := f.addPurchase(t, 100, 100, date(2024, 1, 1))
	f.addContribution(t, earlier, f.user, 5, 50)

	res, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)

	assert.Equal(t, earlier.String(), res.Lines[0].PurchaseID)
	assert.True(t, res.Lines[0].FirstPurchase)
	assert.Equal(t, later.String(), res.Lines[1].PurchaseID)

	// Line 1: earliest purchase, fair share 0, change +5.00.
	// Line 2: 20/100 * 100.00 = 20.00 fair share, change +10.00.
	assert.InDelta(t, 5, res.Lines[0].RunningBalance, 0.01)
	assert.InDelta(t, 15, res.RunningBalance, 0.01)
}

func TestComputeBalance_EarliestPurchaseIsGlobal(t *testing.T) {
	f := newFixture(t)
	other := f.node.Generate()

	// The globally earliest purchase belongs to someone else, so this
	// member's oldest contribution still pays a fair share.
	first := f.addPurchase(t, 100, 50, date(2024, 1, 1))
	f.addContribution(t, first, other, 25, 10)

	second := f.addPurchase(t, 100, 50, date(2024, 2, 1))
	f.addContribution(t, second, f.user, 10, 40)

	res, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.False(t, res.Lines[0].FirstPurchase)
	assert.InDelta(t, 20, res.Lines[0].FairShare, 0.01)
	assert.InDelta(t, -10, res.RunningBalance, 0.01)
}

func TestComputeBalance_EmptyHistory(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.Equal(t, 0.0, res.RunningBalance)
}

func TestComputeBalance_BrokenReference(t *testing.T) {
	f := newFixture(t)

	p := f.addPurchase(t, 100, 50, date(2024, 1, 1))
	f.addContribution(t, p, f.user, 10, 40)
	require.NoError(t, f.repo.Delete(context.Background(), f.db, p))

	_, err := f.svc.ComputeBalance(context.Background(), f.user.String())
	var broken *balancedomain.BrokenReferenceError
	require.ErrorAs(t, err, &broken)
	assert.Equal(t, p, broken.PurchaseID)
}

func TestComputeBalance_InvalidUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ComputeBalance(context.Background(), "garbage")
	assert.ErrorIs(t, err, balancedomain.ErrInvalidUser)
}
