package notification

import (
	"context"
	"fmt"
	"io"
	"time"

	"food-delivery/internal/logger"
	"food-delivery/internal/messaging"
	"food-delivery/internal/metrics"
	"food-delivery/internal/models"
)

// Consumer is the part of messaging.Consumer the subscriber needs
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber prints order status notifications as they arrive
type Subscriber struct {
	consumer Consumer
	logger   *logger.Logger
	out      io.Writer
}

func NewSubscriber(consumer Consumer, log *logger.Logger, out io.Writer) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      out,
	}
}

// Start consumes notifications until ctx is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.handleNotification)

	s.logger.Info("graceful_shutdown", "Stopping notification subscriber", requestID, nil)
	if closeErr := s.consumer.Close(); closeErr != nil {
		s.logger.Error("consumer_close_failed", "Failed to close consumer", requestID, closeErr, nil)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("notification consumer failed: %w", err)
	}
	return nil
}

func (s *Subscriber) handleNotification(_ context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var update models.StatusUpdateMessage
	if err := messaging.ParseMessage(body, &update); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification message", requestID, err, nil)
		return err
	}

	fmt.Fprintln(s.out, formatNotification(&update))
	metrics.RecordNotification(update.NewStatus)

	s.logger.Info("notification_displayed", "Notification displayed to user", requestID, map[string]interface{}{
		"order_id":      update.OrderID,
		"restaurant_id": update.RestaurantID,
		"old_status":    update.OldStatus,
		"new_status":    update.NewStatus,
		"changed_by":    update.ChangedBy,
	})
	return nil
}

func formatNotification(update *models.StatusUpdateMessage) string {
	timestamp := update.Timestamp.Format(time.DateTime)

	switch update.NewStatus {
	case "confirmed":
		return fmt.Sprintf("[%s] Order %d was confirmed by the restaurant.", timestamp, update.OrderID)
	case "preparing":
		return fmt.Sprintf("[%s] Order %d is now being prepared by %s.", timestamp, update.OrderID, update.ChangedBy)
	case "out_for_delivery":
		return fmt.Sprintf("[%s] Order %d is on its way!", timestamp, update.OrderID)
	case "delivered":
		return fmt.Sprintf("[%s] Order %d has been delivered. Enjoy your meal!", timestamp, update.OrderID)
	case "cancelled":
		return fmt.Sprintf("[%s] Order %d has been cancelled.", timestamp, update.OrderID)
	default:
		return fmt.Sprintf("[%s] Order %d status changed from '%s' to '%s' by %s.",
			timestamp, update.OrderID, update.OldStatus, update.NewStatus, update.ChangedBy)
	}
}
