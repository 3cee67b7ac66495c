// Package builder turns a cart into a priced order against a catalog snapshot.
// It performs no I/O: everything it reads comes from the snapshot argument.
package builder

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"food-delivery/internal/services/order/internal/domain"
	"food-delivery/internal/services/order/internal/lifecycle"
	"food-delivery/internal/services/order/internal/pricing"
	"food-delivery/internal/services/order/internal/validation"
)

// Build validates and prices every cart line. Any failing line fails the
// whole build and no partial order is returned.
func Build(snapshot *domain.CatalogSnapshot, userID, restaurantID int64, lines []domain.CartLine) (*domain.PricedOrder, error) {
	if err := validation.ValidateCart(lines); err != nil {
		return nil, err
	}

	if snapshot == nil || snapshot.Restaurant.ID != restaurantID {
		return nil, domain.NotFound(domain.CodeRestaurantNotFound, "restaurant not found", map[string]interface{}{
			"restaurant_id": restaurantID,
		})
	}

	items := make([]domain.OrderItem, 0, len(lines))
	lineTotals := make([]decimal.Decimal, 0, len(lines))

	for i, line := range lines {
		item, err := buildLine(snapshot, restaurantID, line)
		if err != nil {
			if de, ok := domain.AsError(err); ok {
				return nil, de.WithDetail("line", i)
			}
			return nil, err
		}
		items = append(items, item)
		lineTotals = append(lineTotals, item.LineTotal)
	}

	return &domain.PricedOrder{
		UserID:       userID,
		RestaurantID: restaurantID,
		Status:       lifecycle.Initial,
		Items:        items,
		TotalPrice:   pricing.PriceOrder(lineTotals),
	}, nil
}

func buildLine(snapshot *domain.CatalogSnapshot, restaurantID int64, line domain.CartLine) (domain.OrderItem, error) {
	product, ok := snapshot.Product(line.ProductID)
	if !ok {
		return domain.OrderItem{}, domain.NotFound(domain.CodeProductNotFound, "product not found", map[string]interface{}{
			"product_id": line.ProductID,
		})
	}

	if product.RestaurantID != restaurantID {
		return domain.OrderItem{}, domain.Consistency(domain.CodeCrossRestaurantProduct,
			"product belongs to another restaurant", map[string]interface{}{
				"product_id":            product.ID,
				"product_restaurant_id": product.RestaurantID,
				"order_restaurant_id":   restaurantID,
			})
	}

	if err := pricing.CheckAmount(product.BasePrice, map[string]interface{}{"product_id": product.ID}); err != nil {
		return domain.OrderItem{}, err
	}

	selection, err := resolveSelection(product, line)
	if err != nil {
		return domain.OrderItem{}, err
	}

	if err := validation.ValidateSelection(product, product.OptionGroups, selection); err != nil {
		return domain.OrderItem{}, err
	}

	options, extras, err := selectedOptions(product, selection)
	if err != nil {
		return domain.OrderItem{}, err
	}

	lineTotal, err := pricing.PriceLine(product.BasePrice, extras, line.Quantity)
	if err != nil {
		return domain.OrderItem{}, err
	}

	return domain.OrderItem{
		ProductID:      product.ID,
		ProductName:    product.Name,
		ProductVersion: product.Version,
		Quantity:       line.Quantity,
		BasePrice:      product.BasePrice,
		LineTotal:      lineTotal,
		Options:        options,
	}, nil
}

// resolveSelection groups the line's options by option group. Flat option
// ids are looked up among the product's own groups; explicit group
// selections are passed through untouched.
func resolveSelection(product domain.Product, line domain.CartLine) (validation.Selection, error) {
	owner := make(map[int64]int64)
	for _, g := range product.OptionGroups {
		for _, o := range g.Options {
			owner[o.ID] = g.ID
		}
	}

	selection := make(validation.Selection)
	for _, id := range line.SelectedOptionIDs {
		groupID, ok := owner[id]
		if !ok {
			return nil, domain.Validation(domain.CodeOptionNotInGroup,
				"option does not belong to any option group of the product", map[string]interface{}{
					"product_id": product.ID,
					"option_id":  id,
				})
		}
		selection[groupID] = append(selection[groupID], id)
	}

	for _, g := range line.OptionGroups {
		selection[g.OptionGroupID] = append(selection[g.OptionGroupID], g.OptionIDs...)
	}
	return selection, nil
}

// selectedOptions returns the chosen options ordered by group id then option
// id, with their extra prices snapshotted.
func selectedOptions(product domain.Product, selection validation.Selection) ([]domain.OrderItemOption, []decimal.Decimal, error) {
	var options []domain.OrderItemOption
	var extras []decimal.Decimal

	for _, g := range product.OptionGroups {
		chosen := selection[g.ID]
		if len(chosen) == 0 {
			continue
		}
		for _, o := range g.Options {
			if !slices.Contains(chosen, o.ID) {
				continue
			}
			if err := pricing.CheckAmount(o.ExtraPrice, map[string]interface{}{
				"product_id":      product.ID,
				"option_group_id": g.ID,
				"option_id":       o.ID,
			}); err != nil {
				return nil, nil, err
			}
			options = append(options, domain.OrderItemOption{
				OptionID:      o.ID,
				OptionGroupID: g.ID,
				Name:          o.Name,
				ExtraPrice:    o.ExtraPrice,
			})
			extras = append(extras, o.ExtraPrice)
		}
	}

	slices.SortFunc(options, func(a, b domain.OrderItemOption) int {
		if c := cmp.Compare(a.OptionGroupID, b.OptionGroupID); c != 0 {
			return c
		}
		return cmp.Compare(a.OptionID, b.OptionID)
	})
	return options, extras, nil
}
