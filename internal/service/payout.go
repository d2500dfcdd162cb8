package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Payout resolution decisions.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// PayoutService handles freelancer withdrawals. Funds are reserved at
// request time: the wallet is debited when the request is created, so the
// visible balance never includes money awaiting admin review.
type PayoutService struct {
	repo      repo.RepositoryInterface
	accounts  *AccountService
	recorder  *Recorder
	notifier  Notifier
	minPayout decimal.Decimal
	log       *zap.SugaredLogger
}

func NewPayoutService(r repo.RepositoryInterface, accounts *AccountService, rec *Recorder, n Notifier,
	minPayout decimal.Decimal, logger *zap.SugaredLogger) *PayoutService {
	return &PayoutService{repo: r, accounts: accounts, recorder: rec, notifier: n, minPayout: minPayout, log: logger}
}

// Create reserves funds and opens a pending payout request.
func (s *PayoutService) Create(ctx context.Context, ownerID, bankDetailID uint64, amount decimal.Decimal) (*model.PayoutRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ledgererr.New(ledgererr.KindInvalidAmount, "payout amount must be positive, got %s", amount)
	}
	if amount.LessThan(s.minPayout) {
		return nil, ledgererr.New(ledgererr.KindBelowMinimum, "payout amount %s is below the %s minimum", amount, s.minPayout)
	}
	bank, err := s.repo.GetBankDetail(ctx, bankDetailID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgererr.New(ledgererr.KindNotFound, "bank detail %d not found", bankDetailID)
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "load bank detail %d", bankDetailID)
	}
	if !bank.Verified {
		return nil, ledgererr.New(ledgererr.KindBankNotVerified, "bank detail %d is not verified", bankDetailID)
	}

	var (
		created *model.PayoutRequest
		acct    *model.Account
	)
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.accounts.GetOrCreate(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		a, err = s.accounts.Debit(ctx, tx, a.ID, amount)
		if err != nil {
			return err
		}
		p := &model.PayoutRequest{
			AccountID:    a.ID,
			BankDetailID: bankDetailID,
			Amount:       amount,
			Status:       model.PayoutPending,
		}
		if err := s.repo.CreatePayoutRequest(ctx, tx, p); err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "create payout request")
		}
		if _, err := s.recorder.Record(ctx, tx, a, amount, model.DirectionDebit,
			model.RefPayout, p.ID,
			fmt.Sprintf("payout to bank detail %d", bankDetailID), model.EntryStatusPending); err != nil {
			return err
		}
		created, acct = p, a
		return nil
	})
	if err != nil {
		if ledgererr.KindOf(err) != "" {
			return nil, err
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "create payout for owner %d", ownerID)
	}

	s.accounts.cacheBalance(ctx, acct)
	notifyBestEffort(ctx, s.notifier, s.log, ownerID, "payout.created", map[string]interface{}{
		"payout_request_id": created.ID, "amount": amount,
	})
	return created, nil
}

// Resolve applies an admin decision to a pending payout. Rejection credits
// the reserved amount back exactly once: the pending->rejected transition is
// the guard, a second call finds the request already resolved.
func (s *PayoutService) Resolve(ctx context.Context, payoutID uint64, decision string) (*model.PayoutRequest, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, ledgererr.New(ledgererr.KindInvalidState, "unknown payout decision %q", decision)
	}

	var (
		resolved *model.PayoutRequest
		acct     *model.Account
	)
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetPayoutRequestForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledgererr.New(ledgererr.KindNotFound, "payout request %d not found", payoutID)
			}
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock payout request %d", payoutID)
		}
		target := model.PayoutApproved
		if decision == DecisionRejected {
			target = model.PayoutRejected
		}
		moved, err := s.repo.TransitionPayout(ctx, tx, payoutID, model.PayoutPending, target)
		if err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "resolve payout request %d", payoutID)
		}
		if !moved {
			return ledgererr.New(ledgererr.KindInvalidState, "payout request %d is %s", payoutID, p.Status)
		}
		if decision == DecisionApproved {
			// funds considered sent; the reservation entry becomes final
			if err := s.repo.SettleReservedEntry(ctx, tx, model.RefPayout, payoutID, model.EntryStatusCompleted); err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "complete payout entry %d", payoutID)
			}
		} else {
			a, err := s.accounts.Credit(ctx, tx, p.AccountID, p.Amount)
			if err != nil {
				return err
			}
			if err := s.repo.SettleReservedEntry(ctx, tx, model.RefPayout, payoutID, model.EntryStatusFailed); err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "fail payout entry %d", payoutID)
			}
			acct = a
		}
		p.Status = target
		resolved = p
		return nil
	})
	if err != nil {
		if ledgererr.KindOf(err) != "" {
			return nil, err
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "resolve payout request %d", payoutID)
	}

	s.accounts.cacheBalance(ctx, acct)
	notifyBestEffort(ctx, s.notifier, s.log, resolved.AccountID, "payout."+decision, map[string]interface{}{
		"payout_request_id": payoutID, "amount": resolved.Amount,
	})
	return resolved, nil
}

// MarkPaid reconciles an approved payout after the external bank transfer
// went out. No balance effect; the debit happened at creation.
func (s *PayoutService) MarkPaid(ctx context.Context, payoutID uint64) (*model.PayoutRequest, error) {
	var p *model.PayoutRequest
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.GetPayoutRequestForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledgererr.New(ledgererr.KindNotFound, "payout request %d not found", payoutID)
			}
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock payout request %d", payoutID)
		}
		moved, err := s.repo.TransitionPayout(ctx, tx, payoutID, model.PayoutApproved, model.PayoutPaid)
		if err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "mark payout request %d paid", payoutID)
		}
		if !moved {
			return ledgererr.New(ledgererr.KindInvalidState, "payout request %d is %s", payoutID, locked.Status)
		}
		locked.Status = model.PayoutPaid
		p = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	notifyBestEffort(ctx, s.notifier, s.log, p.AccountID, "payout.paid", map[string]interface{}{
		"payout_request_id": payoutID, "amount": p.Amount,
	})
	return p, nil
}
