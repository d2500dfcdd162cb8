package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRequest statuses. The wallet is debited at creation, so pending
// already means "funds reserved"; rejection must re-credit exactly once.
const (
	PayoutPending  = "pending"
	PayoutApproved = "approved"
	PayoutRejected = "rejected"
	PayoutPaid     = "paid"
)

// PayoutRequest is a freelancer withdrawal to an external bank account.
type PayoutRequest struct {
	ID           uint64          `gorm:"primaryKey"`
	AccountID    uint64          `gorm:"not null;index"`
	BankDetailID uint64          `gorm:"not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status       string          `gorm:"size:16;not null;default:'pending';index"`
	ResolvedAt   *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (PayoutRequest) TableName() string { return "payout_request" }
