package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gatewayd-labs/auth-gateway/internal/domain"
	"github.com/gatewayd-labs/auth-gateway/internal/events"
	"github.com/gatewayd-labs/auth-gateway/internal/repository"
)

// StartAuditWorker subscribes the audit sink to every authentication event.
// Events are delivered by the dispatcher's goroutine, never on the request path.
func StartAuditWorker(dispatcher events.Dispatcher, repo repository.AuthEventRepository, logger *zap.Logger) {
	if dispatcher == nil || repo == nil {
		return
	}
	handler := auditHandler(repo, logger)
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, handler)
	}
}

func auditHandler(repo repository.AuthEventRepository, logger *zap.Logger) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		record := toAuthEvent(event)
		if err := repo.Create(ctx, record); err != nil {
			return fmt.Errorf("store auth event %s: %w", event.ID, err)
		}
		logger.Debug("auth event stored",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
		return nil
	}
}

func toAuthEvent(event events.Event) *domain.AuthEvent {
	return &domain.AuthEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Subject:    optional(event.Subject),
		Outcome:    optional(event.Outcome),
		Path:       event.Path,
		RemoteAddr: optional(event.RemoteAddr),
		OccurredAt: event.Timestamp,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
