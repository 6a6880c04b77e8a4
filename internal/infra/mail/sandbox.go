package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/offmarket/offmarket/internal/domain"
	"go.uber.org/zap"
)

const defaultOutboxSize = 50

// Sandbox renders messages and keeps them in memory instead of delivering
// them.
type Sandbox struct {
	frontendURL string
	logger      *zap.Logger
	limit       int

	mu     sync.Mutex
	outbox []SentMessage
}

type SentMessage struct {
	ID string
	Message
}

func NewSandbox(frontendURL string, logger *zap.Logger) *Sandbox {
	return &Sandbox{frontendURL: frontendURL, logger: logger, limit: defaultOutboxSize}
}

func (s *Sandbox) SendPriceDropEmail(ctx context.Context, drop domain.PriceDrop) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSend, err)
	}
	rendered, err := Render(drop, s.frontendURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSend, err)
	}

	sent := SentMessage{ID: uuid.NewString() + "@offmarket.sandbox", Message: rendered}
	s.mu.Lock()
	s.outbox = append(s.outbox, sent)
	if len(s.outbox) > s.limit {
		s.outbox = s.outbox[len(s.outbox)-s.limit:]
	}
	s.mu.Unlock()

	s.logger.Info("sandbox email captured",
		zap.String("message_id", sent.ID),
		zap.String("to", rendered.To),
		zap.String("subject", rendered.Subject),
	)
	return sent.ID, nil
}

// Outbox returns the most recent captured messages, oldest first.
func (s *Sandbox) Outbox() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}
