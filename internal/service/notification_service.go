package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/events"
)

// NotificationService surfaces engine events on the operations log stream.
// Partner-facing webhooks are delivered separately by the escalation path;
// this service is the internal visibility channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketRepaired, n.handleTicketRepaired)
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	n.logger.Warn("SLABreached",
		zap.Int64("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketEscalated",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("actor", string(event.Actor.Type)),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketRepaired(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketRepaired",
		zap.Int64("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}
