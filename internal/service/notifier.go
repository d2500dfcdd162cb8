package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pranjitbis/freelancer-ledger/internal/model"
	"github.com/pranjitbis/freelancer-ledger/internal/repo"
	"go.uber.org/zap"
)

// Notifier pushes a system message / realtime event toward the chat layer
// after a financial commit. Best-effort: callers log failures and move on,
// the committed transaction is never affected.
type Notifier interface {
	Notify(ctx context.Context, conversationID uint64, eventType string, payload interface{}) error
}

// OutboxNotifier persists events to the outbox table; cmd/poller publishes
// them to Kafka for the socket/chat consumers.
type OutboxNotifier struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewOutboxNotifier(r repo.RepositoryInterface, logger *zap.SugaredLogger) *OutboxNotifier {
	return &OutboxNotifier{repo: r, log: logger}
}

func (n *OutboxNotifier) Notify(ctx context.Context, conversationID uint64, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	evt := &model.OutboxEvent{
		EventID:        uuid.NewString(),
		ConversationID: conversationID,
		EventType:      eventType,
		Payload:        string(body),
	}
	return n.repo.CreateOutboxEvent(ctx, evt)
}

// notifyBestEffort is the shared fire-and-forget wrapper the workflows use.
func notifyBestEffort(ctx context.Context, n Notifier, log *zap.SugaredLogger, conversationID uint64, eventType string, payload interface{}) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, conversationID, eventType, payload); err != nil {
		log.Warnf("notify %s conversation=%d: %v", eventType, conversationID, err)
	}
}
