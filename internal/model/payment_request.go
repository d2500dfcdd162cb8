package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequest statuses. pending -> approved -> completed on the happy
// path; rejected is terminal; failed marks a settlement that died after
// approval so an operator can see it.
const (
	PaymentPending   = "pending"
	PaymentApproved  = "approved"
	PaymentCompleted = "completed"
	PaymentRejected  = "rejected"
	PaymentFailed    = "failed"
)

// PaymentRequest is a client-owed amount for project work. completed implies
// exactly one debit entry on the client account and one credit entry on the
// freelancer account, both referencing this request.
type PaymentRequest struct {
	ID             uint64          `gorm:"primaryKey"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency       string          `gorm:"size:8;not null;default:'USD'"`
	Status         string          `gorm:"size:16;not null;default:'pending';index"`
	ClientID       uint64          `gorm:"not null;index"`
	FreelancerID   uint64          `gorm:"not null;index"`
	ConversationID uint64          `gorm:"not null"`
	Description    string          `gorm:"type:text"`
	ApprovedAt     *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (PaymentRequest) TableName() string { return "payment_request" }
