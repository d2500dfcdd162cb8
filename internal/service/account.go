package service

import (
	"context"
	"errors"
	"time"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService owns balance mutation. Credit and Debit run inside the
// caller's transaction so a debit and its paired credit commit or roll back
// together; they never commit on their own.
type AccountService struct {
	repo     repo.RepositoryInterface
	currency string
	log      *zap.SugaredLogger
}

func NewAccountService(r repo.RepositoryInterface, currency string, logger *zap.SugaredLogger) *AccountService {
	return &AccountService{repo: r, currency: currency, log: logger}
}

// GetOrCreate returns the owner's account, creating a zero-balance one on
// first money movement. The returned row is locked for the duration of tx.
func (s *AccountService) GetOrCreate(ctx context.Context, tx *gorm.DB, ownerID uint64) (*model.Account, error) {
	if ownerID == 0 {
		return nil, ledgererr.New(ledgererr.KindNotFound, "account owner not found")
	}
	a, err := s.repo.GetAccountByOwnerForUpdate(ctx, tx, ownerID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "load account for owner %d", ownerID)
	}
	a = &model.Account{OwnerID: ownerID, Balance: decimal.Zero, Currency: s.currency}
	if err := s.repo.CreateAccount(ctx, tx, a); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "create account for owner %d", ownerID)
	}
	return a, nil
}

// Credit increments the account balance by amount.
func (s *AccountService) Credit(ctx context.Context, tx *gorm.DB, accountID uint64, amount decimal.Decimal) (*model.Account, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ledgererr.New(ledgererr.KindInvalidAmount, "credit amount must be positive, got %s", amount)
	}
	a, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, a, a.Balance.Add(amount))
}

// Debit decrements the account balance by amount. The overdraft guard is the
// committed-state invariant: balance never goes observably negative.
func (s *AccountService) Debit(ctx context.Context, tx *gorm.DB, accountID uint64, amount decimal.Decimal) (*model.Account, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ledgererr.New(ledgererr.KindInvalidAmount, "debit amount must be positive, got %s", amount)
	}
	a, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Balance.LessThan(amount) {
		return nil, ledgererr.New(ledgererr.KindInsufficientFunds,
			"account %d balance %s is less than %s", accountID, a.Balance, amount)
	}
	return s.apply(ctx, tx, a, a.Balance.Sub(amount))
}

func (s *AccountService) lockAccount(ctx context.Context, tx *gorm.DB, accountID uint64) (*model.Account, error) {
	a, err := s.repo.GetAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgererr.New(ledgererr.KindNotFound, "account %d not found", accountID)
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "load account %d", accountID)
	}
	return a, nil
}

func (s *AccountService) apply(ctx context.Context, tx *gorm.DB, a *model.Account, newBalance decimal.Decimal) (*model.Account, error) {
	if err := s.repo.UpdateAccountBalance(ctx, tx, a.ID, newBalance, a.Version); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "update account %d balance", a.ID)
	}
	a.Balance = newBalance
	a.Version++
	return a, nil
}

// Balance serves reads through the cache, falling back to the store.
func (s *AccountService) Balance(ctx context.Context, accountID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, accountID); err == nil {
		return bal, nil
	}
	var a model.Account
	if err := s.repo.DB(ctx).Where("id = ?", accountID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ledgererr.New(ledgererr.KindNotFound, "account %d not found", accountID)
		}
		return decimal.Zero, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "load account %d", accountID)
	}
	if err := s.repo.CacheBalance(ctx, accountID, a.Balance); err != nil {
		s.log.Warnf("cache balance account=%d: %v", accountID, err)
	}
	return a.Balance, nil
}

// History fetches recent ledger entries for one account.
func (s *AccountService) History(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.LedgerEntry, error) {
	entries, err := s.repo.ListEntries(ctx, accountID, limit, since)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "list entries for account %d", accountID)
	}
	return entries, nil
}

// cacheBalance is the post-commit write-through the workflows share.
func (s *AccountService) cacheBalance(ctx context.Context, a *model.Account) {
	if a == nil {
		return
	}
	if err := s.repo.CacheBalance(ctx, a.ID, a.Balance); err != nil {
		s.log.Warnf("cache balance account=%d: %v", a.ID, err)
	}
}
