package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pranjitbis/freelancer-ledger/internal/ledgererr"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService settles client->freelancer payments. This is the single
// settlement path; every entry point (client approval, admin replay) goes
// through Settle.
type PaymentService struct {
	repo     repo.RepositoryInterface
	accounts *AccountService
	recorder *Recorder
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewPaymentService(r repo.RepositoryInterface, accounts *AccountService, rec *Recorder, n Notifier, logger *zap.SugaredLogger) *PaymentService {
	return &PaymentService{repo: r, accounts: accounts, recorder: rec, notifier: n, log: logger}
}

// Settle approves and settles a payment request on behalf of the owning
// client. Safe to re-invoke: a request left at approved by an earlier
// insufficient-funds failure is retried, anything else is InvalidState.
func (s *PaymentService) Settle(ctx context.Context, paymentID, actorID uint64) (*model.PaymentRequest, error) {
	var pr model.PaymentRequest
	if err := s.repo.DB(ctx).Where("id = ?", paymentID).First(&pr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgererr.New(ledgererr.KindNotFound, "payment request %d not found", paymentID)
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "load payment request %d", paymentID)
	}
	if pr.ClientID != actorID {
		return nil, ledgererr.New(ledgererr.KindForbidden, "payment request %d does not belong to actor %d", paymentID, actorID)
	}
	switch pr.Status {
	case model.PaymentPending, model.PaymentApproved:
	default:
		return nil, ledgererr.New(ledgererr.KindInvalidState, "payment request %d is %s", paymentID, pr.Status)
	}

	if pr.Status == model.PaymentPending {
		moved, err := s.repo.TransitionPayment(ctx, s.repo.DB(ctx), paymentID, model.PaymentPending, model.PaymentApproved)
		if err != nil {
			return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "approve payment request %d", paymentID)
		}
		if moved {
			notifyBestEffort(ctx, s.notifier, s.log, pr.ConversationID, "payment.approved", map[string]interface{}{
				"payment_request_id": paymentID, "amount": pr.Amount, "currency": pr.Currency,
			})
		}
		// if not moved a concurrent call got there first; the locked
		// re-check below decides who settles
	}

	var clientAcct, freelancerAcct *model.Account
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.GetPaymentRequestForUpdate(ctx, tx, paymentID)
		if err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "lock payment request %d", paymentID)
		}
		if locked.Status != model.PaymentApproved {
			return ledgererr.New(ledgererr.KindInvalidState, "payment request %d is %s", paymentID, locked.Status)
		}

		ca, fa, err := s.lockParties(ctx, tx, locked.ClientID, locked.FreelancerID)
		if err != nil {
			return err
		}
		ca, err = s.accounts.Debit(ctx, tx, ca.ID, locked.Amount)
		if err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, ca, locked.Amount, model.DirectionDebit,
			model.RefPayment, paymentID,
			fmt.Sprintf("payment to freelancer %d", locked.FreelancerID), model.EntryStatusCompleted); err != nil {
			return err
		}
		fa, err = s.accounts.Credit(ctx, tx, fa.ID, locked.Amount)
		if err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, fa, locked.Amount, model.DirectionCredit,
			model.RefPayment, paymentID,
			fmt.Sprintf("payment from client %d", locked.ClientID), model.EntryStatusCompleted); err != nil {
			return err
		}
		moved, err := s.repo.TransitionPayment(ctx, tx, paymentID, model.PaymentApproved, model.PaymentCompleted)
		if err != nil {
			return ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "complete payment request %d", paymentID)
		}
		if !moved {
			return ledgererr.New(ledgererr.KindInvalidState, "payment request %d left approved during settlement", paymentID)
		}
		clientAcct, freelancerAcct = ca, fa
		return nil
	})
	if err != nil {
		switch ledgererr.KindOf(err) {
		case ledgererr.KindInsufficientFunds, ledgererr.KindInvalidState,
			ledgererr.KindNotFound, ledgererr.KindInvalidAmount:
			// expected; request stays approved for a clean retry
			return nil, err
		}
		// settlement died after leaving pending: flag for operators
		s.markFailed(ctx, paymentID)
		if ledgererr.KindOf(err) != "" {
			return nil, err
		}
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "settle payment request %d", paymentID)
	}

	s.accounts.cacheBalance(ctx, clientAcct)
	s.accounts.cacheBalance(ctx, freelancerAcct)
	notifyBestEffort(ctx, s.notifier, s.log, pr.ConversationID, "payment.completed", map[string]interface{}{
		"payment_request_id": paymentID, "amount": pr.Amount, "currency": pr.Currency,
		"client_id": pr.ClientID, "freelancer_id": pr.FreelancerID,
	})

	if err := s.repo.DB(ctx).Where("id = ?", paymentID).First(&pr).Error; err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStoreUnavailable, err, "reload payment request %d", paymentID)
	}
	return &pr, nil
}

// lockParties locks both accounts in owner-id order so two settlements
// touching the same pair cannot deadlock.
func (s *PaymentService) lockParties(ctx context.Context, tx *gorm.DB, clientOwner, freelancerOwner uint64) (*model.Account, *model.Account, error) {
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

func (s *PaymentService) markFailed(ctx context.Context, paymentID uint64) {
	moved, err := s.repo.TransitionPayment(ctx, s.repo.DB(ctx), paymentID, model.PaymentApproved, model.PaymentFailed)
	if err != nil {
		s.log.Errorf("mark payment request %d failed: %v", paymentID, err)
		return
	}
	if moved {
		s.log.Errorf("payment request %d marked failed after settlement error", paymentID)
	}
}
