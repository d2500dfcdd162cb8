package service

import (
	"testing"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func seedBank(t *testing.T, env *testEnv, ownerID uint64, verified bool) *model.BankDetail {
	b := &model.BankDetail{OwnerID: ownerID, Verified: verified, Label: "checking"}
	assert.NoError(t, env.db.Create(b).Error)
	return b
}

func TestPayoutCreate_ReservesFunds(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.seedAccount(t, 5, 1000)
	bank := seedBank(t, env, 5, true)

	p, err := env.payouts.Create(ctx, 5, bank.ID, decimal.NewFromInt(300))
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutPending, p.Status)

	// debit-now policy: balance drops before any admin decision
	assert.Equal(t, "700", env.accountByOwner(t, 5).Balance.StringFixed(0))

	entries := env.entriesFor(t, model.RefPayout, p.ID)
	assert.Len(t, entries, 1)
	assert.Equal(t, model.DirectionDebit, entries[0].Direction)
	assert.Equal(t, model.EntryStatusPending, entries[0].Status)

	assert.Len(t, env.outboxEvents(t, "payout.created"), 1)
}

func TestPayoutCreate_Guards(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.seedAccount(t, 5, 1000)
	verified := seedBank(t, env, 5, true)
	unverified := seedBank(t, env, 5, false)

	_, err := env.payouts.Create(ctx, 5, unverified.ID, decimal.NewFromInt(100))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindBankNotVerified))

	_, err = env.payouts.Create(ctx, 5, verified.ID, decimal.NewFromInt(5))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindBelowMinimum))

	_, err = env.payouts.Create(ctx, 5, verified.ID, decimal.NewFromInt(-20))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidAmount))

	_, err = env.payouts.Create(ctx, 5, verified.ID, decimal.NewFromInt(5000))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInsufficientFunds))

	_, err = env.payouts.Create(ctx, 5, 999, decimal.NewFromInt(100))
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindNotFound))

	// no money moved by any of the failures
	assert.Equal(t, "1000", env.accountByOwner(t, 5).Balance.StringFixed(0))
}

func TestPayoutReject_CompensatesExactlyOnce(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.seedAccount(t, 5, 1000)
	bank := seedBank(t, env, 5, true)
	p, err := env.payouts.Create(ctx, 5, bank.ID, decimal.NewFromInt(300))
	assert.NoError(t, err)

	rejected, err := env.payouts.Resolve(ctx, p.ID, DecisionRejected)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutRejected, rejected.Status)
	assert.Equal(t, "1000", env.accountByOwner(t, 5).Balance.StringFixed(0))

	entries := env.entriesFor(t, model.RefPayout, p.ID)
	assert.Len(t, entries, 1)
	assert.Equal(t, model.EntryStatusFailed, entries[0].Status)

	// second rejection must not re-credit again
	_, err = env.payouts.Resolve(ctx, p.ID, DecisionRejected)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidState))
	assert.Equal(t, "1000", env.accountByOwner(t, 5).Balance.StringFixed(0))
}

func TestPayoutApprove_ThenPaid(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.seedAccount(t, 5, 1000)
	bank := seedBank(t, env, 5, true)
	p, err := env.payouts.Create(ctx, 5, bank.ID, decimal.NewFromInt(300))
	assert.NoError(t, err)

	approved, err := env.payouts.Resolve(ctx, p.ID, DecisionApproved)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutApproved, approved.Status)
	// reservation stays spent
	assert.Equal(t, "700", env.accountByOwner(t, 5).Balance.StringFixed(0))

	entries := env.entriesFor(t, model.RefPayout, p.ID)
	assert.Len(t, entries, 1)
	assert.Equal(t, model.EntryStatusCompleted, entries[0].Status)

	// approval is terminal for the decision edge
	_, err = env.payouts.Resolve(ctx, p.ID, DecisionRejected)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidState))

	paid, err := env.payouts.MarkPaid(ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.PayoutPaid, paid.Status)

	_, err = env.payouts.MarkPaid(ctx, p.ID)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidState))
}

func TestPayoutResolve_UnknownDecision(t *testing.T) {
	env, ctx := newTestEnv(t)
	_, err := env.payouts.Resolve(ctx, 1, "maybe")
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindInvalidState))

	_, err = env.payouts.Resolve(ctx, 404, DecisionApproved)
	assert.True(t, ledgererr.IsKind(err, ledgererr.KindNotFound))
}
