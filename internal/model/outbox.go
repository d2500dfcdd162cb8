package model

import "time"

// OutboxEvent carries a notification (system message, realtime broadcast)
// destined for the chat layer. Written best-effort after a financial commit;
// cmd/poller ships unprocessed rows to Kafka.
type OutboxEvent struct {
	ID             uint64    `gorm:"primaryKey"`
	EventID        string    `gorm:"size:36;uniqueIndex;not null"`
	ConversationID uint64    `gorm:"not null;index"`
	EventType      string    `gorm:"size:64;not null"`
	Payload        string    `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	Processed      bool      `gorm:"not null;default:false"`
	ProcessedAt    *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }
