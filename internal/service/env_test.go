package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/pranjitbis/freelancer-ledger/internal/logger"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	repo     *repo.Repository
	accounts *AccountService
	payments *PaymentService
	payouts  *PayoutService
	refunds  *RefundService
}

// newTestEnv wires the full service stack over an in-memory sqlite store.
// Redis is mocked with no expectations: cache traffic is best-effort and the
// services shrug the resulting errors off, which is exactly what we want
// exercised. The notifier is the real outbox one so tests can assert on
// event_outbox rows.
func newTestEnv(t *testing.T) (*testEnv, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Account{}, &model.LedgerEntry{}, &model.BankDetail{},
		&model.PaymentRequest{}, &model.PayoutRequest{}, &model.RefundRequest{},
		&model.OutboxEvent{},
	))

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	notifier := NewOutboxNotifier(repository, log)
	accounts := NewAccountService(repository, "USD", log)
	recorder := NewRecorder(repository)

	env := &testEnv{
		db:       db,
		repo:     repository,
		accounts: accounts,
		payments: NewPaymentService(repository, accounts, recorder, notifier, log),
		payouts:  NewPayoutService(repository, accounts, recorder, notifier, decimal.NewFromInt(10), log),
		refunds:  NewRefundService(repository, accounts, recorder, notifier, log),
	}
	return env, context.Background()
}

func (e *testEnv) seedAccount(t *testing.T, ownerID uint64, balance int64) *model.Account {
	a := &model.Account{OwnerID: ownerID, Balance: decimal.NewFromInt(balance), Currency: "USD"}
	assert.NoError(t, e.db.Create(a).Error)
	return a
}

func (e *testEnv) accountByOwner(t *testing.T, ownerID uint64) *model.Account {
	var a model.Account
	assert.NoError(t, e.db.Where("owner_id = ?", ownerID).First(&a).Error)
	return &a
}

func (e *testEnv) entriesFor(t *testing.T, refType string, refID uint64) []model.LedgerEntry {
	var entries []model.LedgerEntry
	assert.NoError(t, e.db.Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("id").Find(&entries).Error)
	return entries
}

func (e *testEnv) outboxEvents(t *testing.T, eventType string) []model.OutboxEvent {
	var evts []model.OutboxEvent
	assert.NoError(t, e.db.Where("event_type = ?", eventType).Find(&evts).Error)
	return evts
}
