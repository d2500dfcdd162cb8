package service

import (
	"sync"
	"testing"
	"time"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAccountService_GetOrCreate(t *testing.T) {
	env, ctx := newTestEnv(t)

	a, err := env.accounts.GetOrCreate(ctx, env.repo.DB(ctx), 7)
	assert.NoError(t, err)
	assert.Equal(t, uint64(7), a.OwnerID)
	assert.True(t, a.Balance.IsZero())
	assert.Equal(t, "USD", a.Currency)

	again, err := env.accounts.GetOrCreate(ctx, env.repo.DB(ctx), 7)
	assert.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = env.accounts.GetOrCreate(ctx, env.repo.DB(ctx), 0)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindNotFound))
}

func TestAccountService_CreditDebit(t *testing.T) {
	env, ctx := newTestEnv(t)
	a := env.seedAccount(t, 1, 0)

	err := env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.accounts.Credit(ctx, tx, a.ID, decimal.NewFromInt(100))
		return err
	})
	assert.NoError(t, err)

	err = env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.accounts.Debit(ctx, tx, a.ID, decimal.NewFromInt(30))
		return err
	})
	assert.NoError(t, err)

	assert.Equal(t, "70", env.accountByOwner(t, 1).Balance.StringFixed(0))

	// invalid amounts never touch the row
	_, err = env.accounts.Credit(ctx, env.repo.DB(ctx), a.ID, decimal.Zero)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidAmount))
	_, err = env.accounts.Debit(ctx, env.repo.DB(ctx), a.ID, decimal.NewFromInt(-5))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidAmount))

	// overdraft guard
	_, err = env.accounts.Debit(ctx, env.repo.DB(ctx), a.ID, decimal.NewFromInt(1000))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInsufficientFunds))
	assert.Equal(t, "70", env.accountByOwner(t, 1).Balance.StringFixed(0))

	_, err = env.accounts.Debit(ctx, env.repo.DB(ctx), 999, decimal.NewFromInt(1))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindNotFound))
}

// N debits race a balance that only covers some of them: however the race
// lands, the committed balance never goes negative.
func TestAccountService_ConcurrentDebits(t *testing.T) {
	env, ctx := newTestEnv(t)
	a := env.seedAccount(t, 1, 100)

	var wg sync.WaitGroup
	successes := 0
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.db.Transaction(func(tx *gorm.DB) error {
				_, err := env.accounts.Debit(ctx, tx, a.ID, decimal.NewFromInt(40))
				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final := env.accountByOwner(t, 1)
	assert.False(t, final.Balance.IsNegative())
	assert.LessOrEqual(t, successes, 2) // floor(100/40)
	assert.Equal(t, decimal.NewFromInt(100-int64(successes)*40).String(), final.Balance.String())
}

func TestAccountService_BalanceAndHistory(t *testing.T) {
	env, ctx := newTestEnv(t)
	a := env.seedAccount(t, 3, 250)

	// cache mock has no data, so this exercises the store fallback
	bal, err := env.accounts.Balance(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, "250", bal.StringFixed(0))

	_, err = env.accounts.Balance(ctx, 999)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindNotFound))

	env.db.Create(&model.LedgerEntry{
		AccountID: a.ID, Amount: decimal.NewFromInt(250), Direction: model.DirectionCredit,
		Status: model.EntryStatusCompleted, ReferenceType: model.RefPayment, ReferenceID: 1,
		BalanceAfter: decimal.NewFromInt(250),
	})
	entries, err := env.accounts.History(ctx, a.ID, 10, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}
