package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when an optimistic balance update lost the
// race; the enclosing transaction rolls back and the caller may retry.
var ErrVersionConflict = errors.New("account version conflict")

// RepositoryInterface restricts the store surface the workflows see, so unit
// tests can substitute a narrower implementation.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountID uint64) (*model.Account, error)
	GetAccountByOwnerForUpdate(ctx context.Context, tx *gorm.DB, ownerID uint64) (*model.Account, error)
	CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error
	UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uint64, newBalance decimal.Decimal, oldVersion uint64) error

	CreateLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error
	SettleReservedEntry(ctx context.Context, tx *gorm.DB, refType string, refID uint64, toStatus string) error
	ListEntries(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.LedgerEntry, error)

	GetPaymentRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.PaymentRequest, error)
	TransitionPayment(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error)

	GetPayoutRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.PayoutRequest, error)
	CreatePayoutRequest(ctx context.Context, tx *gorm.DB, p *model.PayoutRequest) error
	TransitionPayout(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error)

	GetRefundRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.RefundRequest, error)
	CreateRefundRequest(ctx context.Context, tx *gorm.DB, r *model.RefundRequest) error
	TransitionRefund(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error)
	SumProcessedRefunds(ctx context.Context, tx *gorm.DB, paymentRequestID uint64) (decimal.Decimal, error)

	GetBankDetail(ctx context.Context, id uint64) (*model.BankDetail, error)

	CreateOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, accountID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, accountID uint64) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface over gorm, redis and kafka.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetAccountForUpdate locks the account row for the duration of tx.
func (r *Repository) GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountID uint64) (*model.Account, error) {
	var a model.Account
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByOwnerForUpdate locks the owner's account row.
func (r *Repository) GetAccountByOwnerForUpdate(ctx context.Context, tx *gorm.DB, ownerID uint64) (*model.Account, error) {
	var a model.Account
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a fresh zero-balance account.
func (r *Repository) CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error {
	return tx.WithContext(ctx).Create(a).Error
}

// UpdateAccountBalance applies the new balance with an optimistic version
// check on top of the row lock.
func (r *Repository) UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", accountID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateLedgerEntry appends an entry; entries are never updated in place.
func (r *Repository) CreateLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error {
	return tx.WithContext(ctx).Create(e).Error
}

// SettleReservedEntry moves a pending reservation entry to completed or
// failed. Guarded on status so a second resolution is a no-op.
func (r *Repository) SettleReservedEntry(ctx context.Context, tx *gorm.DB, refType string, refID uint64, toStatus string) error {
	return tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("reference_type = ? AND reference_id = ? AND status = ?", refType, refID, model.EntryStatusPending).
		Update("status", toStatus).Error
}

// ListEntries fetches recent entries for one account.
func (r *Repository) ListEntries(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// GetPaymentRequestForUpdate locks the request row so concurrent settlements
// serialize on it.
func (r *Repository) GetPaymentRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.PaymentRequest, error) {
	var p model.PaymentRequest
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// TransitionPayment flips status from->to; false means the request was not
// in `from` anymore.
func (r *Repository) TransitionPayment(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{"status": to, "updated_at": now}
	if to == model.PaymentApproved {
		updates["approved_at"] = &now
	}
	res := tx.WithContext(ctx).
		Model(&model.PaymentRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetPayoutRequestForUpdate locks the payout row.
func (r *Repository) GetPayoutRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.PayoutRequest, error) {
	var p model.PayoutRequest
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayoutRequest inserts the request row.
func (r *Repository) CreatePayoutRequest(ctx context.Context, tx *gorm.DB, p *model.PayoutRequest) error {
	return tx.WithContext(ctx).Create(p).Error
}

// TransitionPayout flips status from->to, guarded. The guard is what makes
// payout rejection compensate exactly once.
func (r *Repository) TransitionPayout(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error) {
	now := time.Now()
	res := tx.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "resolved_at": &now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetRefundRequestForUpdate locks the refund row.
func (r *Repository) GetRefundRequestForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.RefundRequest, error) {
	var rr model.RefundRequest
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&rr).Error; err != nil {
		return nil, err
	}
	return &rr, nil
}

// CreateRefundRequest inserts the request row.
func (r *Repository) CreateRefundRequest(ctx context.Context, tx *gorm.DB, rr *model.RefundRequest) error {
	return tx.WithContext(ctx).Create(rr).Error
}

// TransitionRefund flips status from->to, guarded.
func (r *Repository) TransitionRefund(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error) {
	now := time.Now()
	res := tx.WithContext(ctx).
		Model(&model.RefundRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "resolved_at": &now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SumProcessedRefunds totals money already returned for one payment. Runs
// inside tx so the cap check sees a consistent view.
func (r *Repository) SumProcessedRefunds(ctx context.Context, tx *gorm.DB, paymentRequestID uint64) (decimal.Decimal, error) {
	var rows []model.RefundRequest
	err := tx.WithContext(ctx).
		Where("payment_request_id = ? AND status = ?", paymentRequestID, model.RefundProcessed).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total, nil
}

// GetBankDetail reads the payout destination.
func (r *Repository) GetBankDetail(ctx context.Context, id uint64) (*model.BankDetail, error) {
	var b model.BankDetail
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateOutboxEvent writes a notification row outside any financial
// transaction; the poller ships it to Kafka.
func (r *Repository) CreateOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.EventID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, accountID uint64, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", accountID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, accountID uint64) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", accountID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
