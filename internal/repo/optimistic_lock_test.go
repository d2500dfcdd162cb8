package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/pranjitbis/freelancer-ledger/internal/logger"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestOptimisticLock_ConcurrentBalanceUpdate(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file:repolock?mode=memory&cache=shared"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Account{})

	// seed account
	db.Create(&model.Account{ID: 1, OwnerID: 1, Balance: decimal.NewFromInt(100), Currency: "USD"})

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))

	wg := sync.WaitGroup{}
	success := 0

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				a, err := r.GetAccountForUpdate(context.Background(), tx, 1)
				if err != nil {
					return err
				}
				return r.UpdateAccountBalance(context.Background(), tx, 1,
					a.Balance.Add(decimal.NewFromInt(10)), a.Version)
			})
		}()
	}
	wg.Wait()

	var final model.Account
	_ = db.First(&final, 1).Error

	if final.Balance.Equal(decimal.NewFromInt(110)) {
		success = 1
	}
	assert.Equal(t, 1, success, "only one goroutine should succeed with optimistic lock")
}

func TestGuardedTransitions(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:repotrans?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.PayoutRequest{}, &model.LedgerEntry{}))

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	p := &model.PayoutRequest{AccountID: 1, BankDetailID: 1, Amount: decimal.NewFromInt(50), Status: model.PayoutPending}
	assert.NoError(t, db.Create(p).Error)

	moved, err := r.TransitionPayout(ctx, db, p.ID, model.PayoutPending, model.PayoutRejected)
	assert.NoError(t, err)
	assert.True(t, moved)

	// the from-status guard makes a second transition a no-op
	moved, err = r.TransitionPayout(ctx, db, p.ID, model.PayoutPending, model.PayoutRejected)
	assert.NoError(t, err)
	assert.False(t, moved)

	e := &model.LedgerEntry{
		AccountID: 1, Amount: decimal.NewFromInt(50), Direction: model.DirectionDebit,
		Status: model.EntryStatusPending, ReferenceType: model.RefPayout, ReferenceID: p.ID,
		BalanceAfter: decimal.Zero,
	}
	assert.NoError(t, db.Create(e).Error)
	assert.NoError(t, r.SettleReservedEntry(ctx, db, model.RefPayout, p.ID, model.EntryStatusFailed))

	var reloaded model.LedgerEntry
	assert.NoError(t, db.First(&reloaded, e.ID).Error)
	assert.Equal(t, model.EntryStatusFailed, reloaded.Status)

	// already settled entries are untouched
	assert.NoError(t, r.SettleReservedEntry(ctx, db, model.RefPayout, p.ID, model.EntryStatusCompleted))
	assert.NoError(t, db.First(&reloaded, e.ID).Error)
	assert.Equal(t, model.EntryStatusFailed, reloaded.Status)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
