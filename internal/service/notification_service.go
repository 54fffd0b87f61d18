package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
)

const sendTimeout = 5 * time.Second

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	producer   events.Producer
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service. A nil producer keeps
// notifications in the log only.
func NewNotificationService(dispatcher events.Dispatcher, producer events.Producer, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		producer:   producer,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("external_key", event.ExternalKey),
		zap.Any("payload", event.Payload),
	}
	switch event.Type {
	case events.EventSLABreached:
		n.logger.Warn("sla breached", fields...)
	case events.EventSLAAtRisk:
		n.logger.Warn("sla at risk", fields...)
	default:
		n.logger.Info(string(event.Type), fields...)
	}

	if n.producer == nil {
		n.metrics.RecordNotification(string(event.Type), "logged")
		return nil
	}
	if err := n.publishToKafka(ctx, event); err != nil {
		n.metrics.RecordNotification(string(event.Type), "failed")
		n.logger.Error("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	n.metrics.RecordNotification(string(event.Type), "sent")
	return nil
}

func (n *NotificationService) publishToKafka(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return n.producer.Send(ctx, []byte(event.TicketID), value)
}
