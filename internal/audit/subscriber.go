package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type Writer interface {
	Append(ctx context.Context, entry *auditDatamodel.Entry) error
}

type Subscriber struct {
	writer Writer
	logger *slog.Logger
}

func NewSubscriber(writer Writer, logger *slog.Logger) *Subscriber {
	return &Subscriber{writer: writer, logger: logger}
}

func (s *Subscriber) HandleDomainEvent(ctx context.Context, event events.Event) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		s.logger.Error("invalid event type for audit handler", "event_type", event.EventType())
		return fmt.Errorf("expected DomainEvent, got %T", event)
	}

	details, err := json.Marshal(domainEvent.Data)
	if err != nil {
		return fmt.Errorf("encode audit details for %s: %w", domainEvent.EventID(), err)
	}

	entry := &auditDatamodel.Entry{
		ActorID:    domainEvent.ActorID,
		Action:     domainEvent.EventType(),
		TargetType: domainEvent.TargetType,
		TargetID:   domainEvent.TargetID,
		Details:    string(details),
		CreatedAt:  domainEvent.OccurredAt(),
	}
	if err := s.writer.Append(ctx, entry); err != nil {
		s.logger.Error("failed to write audit entry",
			"error", err,
			"event_type", domainEvent.EventType(),
			"event_id", domainEvent.EventID())
		return fmt.Errorf("append audit entry: %w", err)
	}

	s.logger.Debug("audit entry recorded",
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"target", entry.TargetType+":"+entry.TargetID)
	return nil
}

func (s *Subscriber) RegisterEventHandlers(eventBus *events.EventBus) {
	for _, eventType := range events.AllAuditable {
		eventBus.Subscribe(eventType, s.HandleDomainEvent)
	}
	s.logger.Info("audit event handlers registered", "handlers", events.AllAuditable)
}
