package models

import (
	"fmt"
	"time"
)

// OrderCreatedMessage is published to the orders topic after an order is stored
type OrderCreatedMessage struct {
	OrderID      int64              `json:"order_id"`
	UserID       int64              `json:"user_id"`
	RestaurantID int64              `json:"restaurant_id"`
	Status       string             `json:"status"`
	TotalPrice   string             `json:"total_price"`
	Items        []OrderMessageItem `json:"items"`
	CreatedAt    time.Time          `json:"created_at"`
}

// OrderMessageItem is a line of an OrderCreatedMessage
type OrderMessageItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	LineTotal string  `json:"line_total"`
	OptionIDs []int64 `json:"option_ids,omitempty"`
}

// StatusUpdateMessage represents a status update notification
type StatusUpdateMessage struct {
	OrderID      int64     `json:"order_id"`
	RestaurantID int64     `json:"restaurant_id"`
	OldStatus    string    `json:"old_status"`
	NewStatus    string    `json:"new_status"`
	ChangedBy    string    `json:"changed_by"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewStatusUpdateMessage creates a StatusUpdateMessage stamped with the current time
func NewStatusUpdateMessage(orderID, restaurantID int64, oldStatus, newStatus, changedBy string) *StatusUpdateMessage {
	return &StatusUpdateMessage{
		OrderID:      orderID,
		RestaurantID: restaurantID,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
		ChangedBy:    changedBy,
		Timestamp:    time.Now().UTC(),
	}
}

// OrderCreatedRoutingKey routes new orders to the restaurant that has to accept them
func OrderCreatedRoutingKey(restaurantID int64) string {
	return fmt.Sprintf("order.created.%d", restaurantID)
}
