package restaurant

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"food-delivery/internal/logger"
	"food-delivery/internal/messaging"
	"food-delivery/internal/metrics"
	"food-delivery/internal/models"
)

// Consumer is the part of messaging.Consumer the printer needs
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// TicketPrinter turns new orders from the restaurant queue into kitchen tickets
type TicketPrinter struct {
	consumer Consumer
	logger   *logger.Logger
	out      io.Writer
}

func NewTicketPrinter(consumer Consumer, log *logger.Logger, out io.Writer) *TicketPrinter {
	return &TicketPrinter{
		consumer: consumer,
		logger:   log,
		out:      out,
	}
}

// Start consumes new orders until ctx is cancelled
func (p *TicketPrinter) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	p.logger.Info("service_started", "Restaurant ticket printer started", requestID, nil)

	err := p.consumer.StartConsuming(ctx, p.handleOrder)

	p.logger.Info("graceful_shutdown", "Stopping restaurant ticket printer", requestID, nil)
	if closeErr := p.consumer.Close(); closeErr != nil {
		p.logger.Error("consumer_close_failed", "Failed to close consumer", requestID, closeErr, nil)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("restaurant order consumer failed: %w", err)
	}
	return nil
}

func (p *TicketPrinter) handleOrder(_ context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var order models.OrderCreatedMessage
	if err := messaging.ParseMessage(body, &order); err != nil {
		p.logger.Error("message_parsing_failed", "Failed to parse order message", requestID, err, nil)
		return err
	}
	if order.OrderID <= 0 || len(order.Items) == 0 {
		err := fmt.Errorf("%w: order %d has no lines", messaging.ErrMalformedMessage, order.OrderID)
		p.logger.Error("message_parsing_failed", "Order message is incomplete", requestID, err, nil)
		return err
	}

	fmt.Fprint(p.out, formatTicket(&order))
	metrics.RecordTicket(order.RestaurantID)

	p.logger.Info("ticket_printed", fmt.Sprintf("Ticket printed for order %d", order.OrderID), requestID, map[string]interface{}{
		"order_id":      order.OrderID,
		"restaurant_id": order.RestaurantID,
		"lines":         len(order.Items),
		"total_price":   order.TotalPrice,
	})
	return nil
}

func formatTicket(order *models.OrderCreatedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Order %d for restaurant %d, total %s\n",
		order.CreatedAt.Format(time.DateTime), order.OrderID, order.RestaurantID, order.TotalPrice)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %d x %s  %s\n", item.Quantity, item.Name, item.LineTotal)
	}
	return b.String()
}
