package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"food-delivery/internal/models"
)

// OrderStatus is a row of the order_statuses reference table
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// Statuses lists every known status in lifecycle order
var Statuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// ParseStatus converts client input into an OrderStatus
func ParseStatus(s string) (OrderStatus, error) {
	for _, status := range Statuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", Validation(CodeInvalidStatus, "unknown order status", map[string]interface{}{
		"status": s,
	})
}

type Restaurant struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	OwnerID    int64           `json:"owner_id"`
	Categories []string        `json:"categories"`
	Address    *models.Address `json:"address,omitempty"`
}

// Product is a catalog entry. Version changes whenever the product or any of
// its option groups or options change.
type Product struct {
	ID           int64           `json:"id"`
	RestaurantID int64           `json:"restaurant_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Version      int64           `json:"version"`
	OptionGroups []OptionGroup   `json:"option_groups"`
}

type OptionGroup struct {
	ID           int64    `json:"id"`
	ProductID    int64    `json:"product_id"`
	Name         string   `json:"name"`
	IsRequired   bool     `json:"is_required"`
	MinSelection int      `json:"min_selection"`
	MaxSelection int      `json:"max_selection"`
	Options      []Option `json:"options"`
}

// Unbounded reports whether the group has no upper selection limit.
func (g OptionGroup) Unbounded() bool {
	return g.MaxSelection == 0
}

type Option struct {
	ID            int64           `json:"id"`
	OptionGroupID int64           `json:"option_group_id"`
	Name          string          `json:"name"`
	ExtraPrice    decimal.Decimal `json:"extra_price"`
}

// CatalogSnapshot is the catalog state an order is built against
type CatalogSnapshot struct {
	Restaurant Restaurant
	Products   map[int64]Product
}

func NewCatalogSnapshot(restaurant Restaurant) *CatalogSnapshot {
	return &CatalogSnapshot{
		Restaurant: restaurant,
		Products:   make(map[int64]Product),
	}
}

func (s *CatalogSnapshot) Add(p Product) {
	s.Products[p.ID] = p
}

func (s *CatalogSnapshot) Product(id int64) (Product, bool) {
	p, ok := s.Products[id]
	return p, ok
}

// CartLine is one line of a submitted cart
type CartLine struct {
	ProductID         int64
	Quantity          int
	SelectedOptionIDs []int64
	OptionGroups      []GroupSelection
}

// GroupSelection is an explicit per-group selection
type GroupSelection struct {
	OptionGroupID int64
	OptionIDs     []int64
}

// PricedOrder is a fully priced order that has not been stored yet
type PricedOrder struct {
	UserID       int64
	RestaurantID int64
	Status       OrderStatus
	Items        []OrderItem
	TotalPrice   decimal.Decimal
}

// ProductVersions returns the catalog version each referenced product was priced at
func (p *PricedOrder) ProductVersions() map[int64]int64 {
	versions := make(map[int64]int64, len(p.Items))
	for _, item := range p.Items {
		versions[item.ProductID] = item.ProductVersion
	}
	return versions
}

// Order is a stored order
type Order struct {
	ID           int64
	UserID       int64
	RestaurantID int64
	Status       OrderStatus
	TotalPrice   decimal.Decimal
	Version      int64
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID             int64
	ProductID      int64
	ProductName    string
	ProductVersion int64
	Quantity       int
	BasePrice      decimal.Decimal
	LineTotal      decimal.Decimal
	Options        []OrderItemOption
}

// OrderItemOption keeps the extra price the option had when the order was priced
type OrderItemOption struct {
	OptionID      int64
	OptionGroupID int64
	Name          string
	ExtraPrice    decimal.Decimal
}

// StatusChange is an entry of the order status log
type StatusChange struct {
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
	Notes     *string
}

// Menu is a restaurant with its orderable products
type Menu struct {
	Restaurant Restaurant `json:"restaurant"`
	Products   []Product  `json:"products"`
}
