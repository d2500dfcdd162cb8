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

// DecisionProcessed actually moves money; approved and rejected are pure
// state changes.
const DecisionProcessed = "processed"

// RefundService reverses completed settlements, partially or fully. The cap
// invariant: processed refunds for one payment never sum past its amount.
type RefundService struct {
	repo     repo.RepositoryInterface
	accounts *AccountService
	recorder *Recorder
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewRefundService(r repo.RepositoryInterface, accounts *AccountService, rec *Recorder, n Notifier, logger *zap.SugaredLogger) *RefundService {
	return &RefundService{repo: r, accounts: accounts, recorder: rec, notifier: n, log: logger}
}

// Create opens a pending refund request against a completed payment.
func (s *RefundService) Create(ctx context.Context, paymentRequestID uint64, amount decimal.Decimal, reason string) (*model.RefundRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ledgererr.New(ledgererr.KindInvalidAmount, "refund amount must be positive, got %s", amount)
	}
	var created *model.RefundRequest
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		pr, err := s.repo.GetPaymentRequestForUpdate(ctx, tx, paymentRequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledgererr.New(ledgererr.KindNotFound, "payment request %d not found", paymentRequestID)
			}
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock payment request %d", paymentRequestID)
		}
		if pr.Status != model.PaymentCompleted {
			return ledgererr.New(ledgererr.KindInvalidState, "payment request %d is %s, only completed payments can be refunded", paymentRequestID, pr.Status)
		}
		if err := s.checkCap(ctx, tx, pr, amount); err != nil {
			return err
		}
		rr := &model.RefundRequest{
			PaymentRequestID: paymentRequestID,
			Amount:           amount,
			Status:           model.RefundPending,
			Reason:           reason,
		}
		if err := s.repo.CreateRefundRequest(ctx, tx, rr); err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "create refund request")
		}
		created = rr
		return nil
	})
	if err != nil {
		if ledgererr.KindOf(err) != "" {
			return nil, err
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "create refund for payment %d", paymentRequestID)
	}
	return created, nil
}

// Resolve applies an admin decision. processed requires a prior approved and
// performs the compensating transfer; insufficient freelancer funds leave the
// request approved for retry.
func (s *RefundService) Resolve(ctx context.Context, refundID uint64, decision string) (*model.RefundRequest, error) {
	switch decision {
	case DecisionApproved, DecisionRejected, DecisionProcessed:
	default:
		return nil, ledgererr.New(ledgererr.KindInvalidState, "unknown refund decision %q", decision)
	}

	var (
		resolved             *model.RefundRequest
		clientAcct, freeAcct *model.Account
		conversationID       uint64
	)
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		rr, err := s.repo.GetRefundRequestForUpdate(ctx, tx, refundID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledgererr.New(ledgererr.KindNotFound, "refund request %d not found", refundID)
			}
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock refund request %d", refundID)
		}

		switch decision {
		case DecisionApproved:
			moved, err := s.repo.TransitionRefund(ctx, tx, refundID, model.RefundPending, model.RefundApproved)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "approve refund request %d", refundID)
			}
			if !moved {
				return ledgererr.New(ledgererr.KindInvalidState, "refund request %d is %s", refundID, rr.Status)
			}
			rr.Status = model.RefundApproved

		case DecisionRejected:
			if rr.Status != model.RefundPending && rr.Status != model.RefundApproved {
				return ledgererr.New(ledgererr.KindInvalidState, "refund request %d is %s", refundID, rr.Status)
			}
			moved, err := s.repo.TransitionRefund(ctx, tx, refundID, rr.Status, model.RefundRejected)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "reject refund request %d", refundID)
			}
			if !moved {
				return ledgererr.New(ledgererr.KindInvalidState, "refund request %d changed state during rejection", refundID)
			}
			rr.Status = model.RefundRejected

		case DecisionProcessed:
			if rr.Status != model.RefundApproved {
				return ledgererr.New(ledgererr.KindInvalidState, "refund request %d is %s, only approved refunds can be processed", refundID, rr.Status)
			}
			pr, err := s.repo.GetPaymentRequestForUpdate(ctx, tx, rr.PaymentRequestID)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock payment request %d", rr.PaymentRequestID)
			}
			if err := s.checkCap(ctx, tx, pr, rr.Amount); err != nil {
				return err
			}
			ca, fa, err := s.lockParties(ctx, tx, pr.ClientID, pr.FreelancerID)
			if err != nil {
				return err
			}
			fa, err = s.accounts.Debit(ctx, tx, fa.ID, rr.Amount)
			if err != nil {
				return err
			}
			if _, err := s.recorder.Record(ctx, tx, fa, rr.Amount, model.DirectionDebit,
				model.RefRefund, refundID,
				fmt.Sprintf("refund of payment %d to client %d", pr.ID, pr.ClientID), model.EntryStatusCompleted); err != nil {
				return err
			}
			ca, err = s.accounts.Credit(ctx, tx, ca.ID, rr.Amount)
			if err != nil {
				return err
			}
			if _, err := s.recorder.Record(ctx, tx, ca, rr.Amount, model.DirectionCredit,
				model.RefRefund, refundID,
				fmt.Sprintf("refund of payment %d from freelancer %d", pr.ID, pr.FreelancerID), model.EntryStatusCompleted); err != nil {
				return err
			}
			moved, err := s.repo.TransitionRefund(ctx, tx, refundID, model.RefundApproved, model.RefundProcessed)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "process refund request %d", refundID)
			}
			if !moved {
				return ledgererr.New(ledgererr.KindInvalidState, "refund request %d left approved during processing", refundID)
			}
			rr.Status = model.RefundProcessed
			clientAcct, freeAcct = ca, fa
			conversationID = pr.ConversationID
		}
		resolved = rr
		return nil
	})
	if err != nil {
		if ledgererr.KindOf(err) != "" {
			return nil, err
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "resolve refund request %d", refundID)
	}

	if decision == DecisionProcessed {
		s.accounts.cacheBalance(ctx, clientAcct)
		s.accounts.cacheBalance(ctx, freeAcct)
		notifyBestEffort(ctx, s.notifier, s.log, conversationID, "refund.processed", map[string]interface{}{
			"refund_request_id": refundID, "amount": resolved.Amount,
		})
	}
	return resolved, nil
}

// checkCap enforces the refund ceiling against the already-processed total.
func (s *RefundService) checkCap(ctx context.Context, tx *gorm.DB, pr *model.PaymentRequest, amount decimal.Decimal) error {
	processed, err := s.repo.SumProcessedRefunds(ctx, tx, pr.ID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "sum refunds for payment %d", pr.ID)
	}
	if processed.Add(amount).GreaterThan(pr.Amount) {
		return ledgererr.New(ledgererr.KindAmountExceedsPayment,
			"refund %s plus %s already processed exceeds payment amount %s", amount, processed, pr.Amount)
	}
	return nil
}

// lockParties mirrors the settlement lock order so refunds and settlements
// on the same pair cannot deadlock.
func (s *RefundService) lockParties(ctx context.Context, tx *gorm.DB, clientOwner, freelancerOwner uint64) (*model.Account, *model.Account, error) {
	first, second := clientOwner, freelancerOwner
	if second < first {
		first, second = second, first
	}
	a1, err := s.accounts.GetOrCreate(ctx, tx, first)
	if err != nil {
		return nil, nil, err
	}
	a2, err := s.accounts.GetOrCreate(ctx, tx, second)
	if err != nil {
		return nil, nil, err
	}
	if a1.OwnerID == clientOwner {
		return a1, a2, nil
	}
	return a2, a1, nil
}
