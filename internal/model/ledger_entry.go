package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a ledger entry relative to its account.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// LedgerEntry statuses. A completed entry is never edited, only compensated
// by a new entry; pending is used for payout reservations awaiting review.
const (
	EntryStatusPending   = "pending"
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
)

// Reference types tying an entry to the request that caused it.
const (
	RefPayment = "payment"
	RefPayout  = "payout"
	RefRefund  = "refund"
)

// LedgerEntry is one immutable record of a balance change. Every settlement
// writes exactly two: a debit on one account and a matching credit on the
// other, both created in the same transaction as the balance updates.
type LedgerEntry struct {
	ID            uint64          `gorm:"primaryKey"`
	AccountID     uint64          `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Direction     string          `gorm:"size:8;not null"`
	Status        string          `gorm:"size:16;not null;default:'completed'"`
	Description   string          `gorm:"type:text"`
	ReferenceType string          `gorm:"size:16;not null;index:idx_entry_ref"`
	ReferenceID   uint64          `gorm:"not null;index:idx_entry_ref"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }
