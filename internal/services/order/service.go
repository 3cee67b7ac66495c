package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"food-delivery/internal/logger"
	"food-delivery/internal/models"
	"food-delivery/internal/services/order/internal/builder"
	"food-delivery/internal/services/order/internal/domain"
	"food-delivery/internal/services/order/internal/lifecycle"
	"food-delivery/internal/services/order/internal/pricing"
	"food-delivery/internal/services/order/internal/validation"
)

//go:generate mockgen -source=service.go -destination=mocks_test.go -package=order

// CatalogStore reads restaurants, products and option groups
type CatalogStore interface {
	GetRestaurant(ctx context.Context, id int64) (*domain.Restaurant, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetOptionGroups(ctx context.Context, productID int64) ([]domain.OptionGroup, error)
	ListProducts(ctx context.Context, restaurantID int64) ([]domain.Product, error)
}

// OrderStore persists orders. SaveOrder and ReplaceItems must fail with
// CatalogChanged when a product moved past the version it was priced at.
type OrderStore interface {
	SaveOrder(ctx context.Context, order *domain.PricedOrder) (int64, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id, expectedVersion int64, from, to domain.OrderStatus, changedBy string) error
	ReplaceItems(ctx context.Context, id, expectedVersion int64, order *domain.PricedOrder) error
	History(ctx context.Context, id int64) ([]domain.StatusChange, error)
	Ping(ctx context.Context) error
}

// EventPublisher announces order events to other services
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, msg *models.OrderCreatedMessage) error
	PublishStatusUpdate(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// PlaceOrderRequest is a submitted cart
type PlaceOrderRequest struct {
	UserID       int64
	RestaurantID int64
	Lines        []domain.CartLine
}

// Service builds, stores and advances orders
type Service struct {
	catalog        CatalogStore
	orders         OrderStore
	events         EventPublisher
	logger         *logger.Logger
	catalogTimeout time.Duration
}

func NewService(catalog CatalogStore, orders OrderStore, events EventPublisher, log *logger.Logger, catalogTimeout time.Duration) *Service {
	return &Service{
		catalog:        catalog,
		orders:         orders,
		events:         events,
		logger:         log,
		catalogTimeout: catalogTimeout,
	}
}

// catalogErr maps a deadline hit on a catalog call to CatalogUnavailable
func catalogErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(domain.CodeCatalogUnavailable, "catalog did not answer in time", err)
	}
	return err
}

func (s *Service) restaurant(ctx context.Context, id int64) (*domain.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	r, err := s.catalog.GetRestaurant(ctx, id)
	return r, catalogErr(err)
}

// snapshot loads every product the cart refers to, with its option groups.
// Products that do not exist are left out; the builder reports them.
func (s *Service) snapshot(ctx context.Context, restaurant domain.Restaurant, lines []domain.CartLine) (*domain.CatalogSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	snap := domain.NewCatalogSnapshot(restaurant)
	for _, line := range lines {
		if _, seen := snap.Product(line.ProductID); seen {
			continue
		}

		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if domain.HasCode(err, domain.CodeProductNotFound) {
			continue
		}
		if err != nil {
			return nil, catalogErr(err)
		}

		groups, err := s.catalog.GetOptionGroups(ctx, product.ID)
		if err != nil {
			return nil, catalogErr(err)
		}
		product.OptionGroups = groups
		snap.Add(*product)
	}
	return snap, nil
}

// price builds the order against a fresh snapshot and hands it to persist.
// When persist reports CatalogChanged the snapshot is reloaded and the order
// rebuilt once; a second CatalogChanged goes back to the caller.
func (s *Service) price(ctx context.Context, requestID string, restaurant domain.Restaurant, userID int64, lines []domain.CartLine,
	persist func(*domain.PricedOrder) error) (*domain.PricedOrder, error) {
	const attempts = 2

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var snap *domain.CatalogSnapshot
		snap, err = s.snapshot(ctx, restaurant, lines)
		if err != nil {
			return nil, err
		}

		var priced *domain.PricedOrder
		priced, err = builder.Build(snap, userID, restaurant.ID, lines)
		if err != nil {
			return nil, err
		}

		err = persist(priced)
		if err == nil {
			return priced, nil
		}
		if !domain.HasCode(err, domain.CodeCatalogChanged) {
			return nil, err
		}

		s.logger.Warn("catalog_changed", "Catalog changed during pricing", requestID, map[string]interface{}{
			"attempt":       attempt,
			"restaurant_id": restaurant.ID,
		})
	}
	return nil, err
}

// PlaceOrder validates, prices and stores a cart as a new pending order
func (s *Service) PlaceOrder(ctx context.Context, req *PlaceOrderRequest, requestID string) (*domain.Order, error) {
	if err := validation.ValidateCart(req.Lines); err != nil {
		return nil, err
	}

	restaurant, err := s.restaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}

	var orderID int64
	priced, err := s.price(ctx, requestID, *restaurant, req.UserID, req.Lines, func(p *domain.PricedOrder) error {
		var saveErr error
		orderID, saveErr = s.orders.SaveOrder(ctx, p)
		return saveErr
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:           orderID,
		UserID:       priced.UserID,
		RestaurantID: priced.RestaurantID,
		Status:       priced.Status,
		TotalPrice:   priced.TotalPrice,
		Version:      1,
		Items:        priced.Items,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.logger.Info("order_created", fmt.Sprintf("Order %d placed", order.ID), requestID, map[string]interface{}{
		"order_id":      order.ID,
		"restaurant_id": order.RestaurantID,
		"total_price":   pricing.Format(order.TotalPrice),
		"lines":         len(order.Items),
	})

	if err := s.events.PublishOrderCreated(ctx, orderCreatedMessage(order)); err != nil {
		s.logger.Error("rabbitmq_publish_failed", "Failed to publish order created event", requestID, err, map[string]interface{}{
			"order_id": order.ID,
		})
	}

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

// History returns the status log of an order, oldest first
func (s *Service) History(ctx context.Context, id int64) ([]domain.StatusChange, error) {
	return s.orders.History(ctx, id)
}

// TransitionStatus moves an order to target if the lifecycle allows it. The
// write is conditional on the version read here, so of two racing requests
// at most one succeeds.
func (s *Service) TransitionStatus(ctx context.Context, id int64, target, changedBy, requestID string) (*domain.Order, error) {
	to, err := domain.ParseStatus(target)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(order.Status, to); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, order.Version, order.Status, to, changedBy); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = to
	order.Version++
	order.UpdatedAt = time.Now().UTC()

	s.logger.Info("order_status_changed", fmt.Sprintf("Order %d moved to %s", order.ID, to), requestID, map[string]interface{}{
		"order_id":   order.ID,
		"old_status": string(from),
		"new_status": string(to),
		"changed_by": changedBy,
	})

	msg := models.NewStatusUpdateMessage(order.ID, order.RestaurantID, string(from), string(to), changedBy)
	if err := s.events.PublishStatusUpdate(ctx, msg); err != nil {
		s.logger.Error("rabbitmq_publish_failed", "Failed to publish status update", requestID, err, map[string]interface{}{
			"order_id": order.ID,
		})
	}

	return order, nil
}

// ReviseOrder replaces the lines of a pending order and re-prices it
func (s *Service) ReviseOrder(ctx context.Context, id int64, lines []domain.CartLine, requestID string) (*domain.Order, error) {
	if err := validation.ValidateCart(lines); err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.EnsureModifiable(order.Status); err != nil {
		return nil, err
	}

	restaurant, err := s.restaurant(ctx, order.RestaurantID)
	if err != nil {
		return nil, err
	}

	_, err = s.price(ctx, requestID, *restaurant, order.UserID, lines, func(p *domain.PricedOrder) error {
		return s.orders.ReplaceItems(ctx, order.ID, order.Version, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_revised", fmt.Sprintf("Order %d lines replaced", order.ID), requestID, map[string]interface{}{
		"order_id": order.ID,
		"lines":    len(lines),
	})

	return s.orders.GetOrder(ctx, id)
}

// Menu returns a restaurant with its products and their option groups
func (s *Service) Menu(ctx context.Context, restaurantID int64) (*domain.Menu, error) {
	restaurant, err := s.restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	products, err := s.catalog.ListProducts(ctx, restaurantID)
	if err != nil {
		return nil, catalogErr(err)
	}
	return &domain.Menu{Restaurant: *restaurant, Products: products}, nil
}

// HealthCheck reports whether the order store answers
func (s *Service) HealthCheck(ctx context.Context) bool {
	if err := s.orders.Ping(ctx); err != nil {
		s.logger.Error("health_check_failed", "Database ping failed", "", err, nil)
		return false
	}
	return true
}

func orderCreatedMessage(order *domain.Order) *models.OrderCreatedMessage {
	items := make([]models.OrderMessageItem, 0, len(order.Items))
	for _, item := range order.Items {
		optionIDs := make([]int64, 0, len(item.Options))
		for _, o := range item.Options {
			optionIDs = append(optionIDs, o.OptionID)
		}
		items = append(items, models.OrderMessageItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			LineTotal: pricing.Format(item.LineTotal),
			OptionIDs: optionIDs,
		})
	}
	return &models.OrderCreatedMessage{
		OrderID:      order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		Status:       string(order.Status),
		TotalPrice:   pricing.Format(order.TotalPrice),
		Items:        items,
		CreatedAt:    order.CreatedAt,
	}
}
