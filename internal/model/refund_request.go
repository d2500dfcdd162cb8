package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundRequest statuses. approved is an admin decision with no balance
// effect; processed is the edge that actually moves money.
const (
	RefundPending   = "pending"
	RefundApproved  = "approved"
	RefundRejected  = "rejected"
	RefundProcessed = "processed"
)

// RefundRequest reverses part or all of a completed PaymentRequest. The sum
// of processed refunds for one payment never exceeds the original amount.
type RefundRequest struct {
	ID               uint64          `gorm:"primaryKey"`
	PaymentRequestID uint64          `gorm:"not null;index"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status           string          `gorm:"size:16;not null;default:'pending';index"`
	Reason           string          `gorm:"type:text"`
	ResolvedAt       *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (RefundRequest) TableName() string { return "refund_request" }
