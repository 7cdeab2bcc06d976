package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/events"
	"github.com/spec-kit/loyalty-scanner/internal/scanner"
)

const defaultWebhookTimeout = 3 * time.Second

// NotificationService publishes scan terminal events and handles them.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	merchantID string
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, merchantID string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		merchantID: merchantID,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventPayloadScanned, n.handlePayloadScanned)
	n.dispatcher.Subscribe(events.EventOperatorNotified, n.handleOperatorNotified)
}

// Notify implements scanner.Notifier.
func (n *NotificationService) Notify(kind scanner.NotifyKind, message string) {
	n.publish(events.EventOperatorNotified, events.OperatorNotifiedPayload{Kind: string(kind), Message: message})
}

// PayloadScanned records a classified scan.
func (n *NotificationService) PayloadScanned(sessionID string, kind domain.PayloadKind) {
	n.publish(events.EventPayloadScanned, events.PayloadScannedPayload{SessionID: sessionID, Kind: kind})
}

func (n *NotificationService) publish(eventType events.EventType, payload interface{}) {
	if n.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		MerchantID: n.merchantID,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
	if err := n.dispatcher.Publish(context.Background(), event); err != nil {
		n.logger.Warn("event not delivered", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func (n *NotificationService) handlePayloadScanned(ctx context.Context, event events.Event) error {
	n.logger.Info("PayloadScanned", zap.String("event_id", event.ID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleOperatorNotified(ctx context.Context, event events.Event) error {
	n.logger.Info("OperatorNotified", zap.String("event_id", event.ID), zap.Any("payload", event.Payload))
	return n.sendWebhook(event)
}

// sendWebhook posts the event as JSON when a webhook is configured. Any non-2xx
// answer is an error.
func (n *NotificationService) sendWebhook(event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	timeout := n.cfg.WebhookTimeout()
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	agent := fiber.Post(url).JSON(event).Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, errors.Join(errs...))
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("webhook %s: unexpected status %d", event.Type, code)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_id", event.ID),
		zap.String("merchant_id", event.MerchantID),
		zap.Int("status", code))
	return nil
}
