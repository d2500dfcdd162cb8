package service

import (
	"context"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recorder appends immutable ledger entries. Always called inside the same
// transaction as the balance mutation it documents, so a balance change with
// no entry (or the reverse) cannot be committed.
type Recorder struct {
	repo repo.RepositoryInterface
}

func NewRecorder(r repo.RepositoryInterface) *Recorder {
	return &Recorder{repo: r}
}

// Record appends one entry, snapshotting the balance the same transaction
// just wrote on the account.
func (rec *Recorder) Record(ctx context.Context, tx *gorm.DB, account *model.Account, amount decimal.Decimal,
	direction, refType string, refID uint64, description, status string) (*model.LedgerEntry, error) {

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ledgererr.New(ledgererr.KindInvalidAmount, "entry amount must be positive, got %s", amount)
	}
	e := &model.LedgerEntry{
		AccountID:     account.ID,
		Amount:        amount,
		Direction:     direction,
		Status:        status,
		Description:   description,
		ReferenceType: refType,
		ReferenceID:   refID,
		BalanceAfter:  account.Balance,
	}
	if err := rec.repo.CreateLedgerEntry(ctx, tx, e); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "append ledger entry for account %d", account.ID)
	}
	return e, nil
}
