package builder

import (
	"testing"

	"github.com/shopspring/decimal"

	"food-delivery/internal/services/order/internal/domain"
)

const (
	restaurantID = int64(1)
	userID       = int64(500)

	burgerID = int64(1)
	pizzaID  = int64(2)
	otherID  = int64(3)

	sizeGroup   = int64(10)
	extrasGroup = int64(20)
	crustGroup  = int64(30)

	small  = int64(101)
	large  = int64(102)
	bacon  = int64(201)
	cheese = int64(202)
	thin   = int64(301)
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snapshot() *domain.CatalogSnapshot {
	s := domain.NewCatalogSnapshot(domain.Restaurant{ID: restaurantID, Name: "Bob's"})
	s.Add(domain.Product{
		ID: burgerID, RestaurantID: restaurantID, Name: "Burger", BasePrice: money("20.00"), Version: 3,
		OptionGroups: []domain.OptionGroup{
			{
				ID: sizeGroup, ProductID: burgerID, Name: "Size", IsRequired: true, MinSelection: 1, MaxSelection: 1,
				Options: []domain.Option{
					{ID: small, OptionGroupID: sizeGroup, Name: "Small", ExtraPrice: money("0.00")},
					{ID: large, OptionGroupID: sizeGroup, Name: "Large", ExtraPrice: money("5.00")},
				},
			},
			{
				ID: extrasGroup, ProductID: burgerID, Name: "Extras", MaxSelection: 3,
				Options: []domain.Option{
					{ID: bacon, OptionGroupID: extrasGroup, Name: "Bacon", ExtraPrice: money("3.00")},
					{ID: cheese, OptionGroupID: extrasGroup, Name: "Cheese", ExtraPrice: money("2.00")},
				},
			},
		},
	})
	s.Add(domain.Product{
		ID: pizzaID, RestaurantID: restaurantID, Name: "Pizza", BasePrice: money("35.50"), Version: 1,
		OptionGroups: []domain.OptionGroup{{
			ID: crustGroup, ProductID: pizzaID, Name: "Crust",
			Options: []domain.Option{{ID: thin, OptionGroupID: crustGroup, Name: "Thin", ExtraPrice: money("1.25")}},
		}},
	})
	s.Add(domain.Product{ID: otherID, RestaurantID: 2, Name: "Sushi", BasePrice: money("40.00"), Version: 1})
	return s
}

func TestBuildBurgerExample(t *testing.T) {
	order, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 2, SelectedOptionIDs: []int64{large, bacon, cheese}},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.LineTotal.StringFixed(2) != "60.00" {
		t.Fatalf("expected line total 60.00, got %s", item.LineTotal.StringFixed(2))
	}
	if !order.TotalPrice.Equal(money("60.00")) {
		t.Fatalf("expected order total 60.00, got %s", order.TotalPrice)
	}
	if order.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if order.UserID != userID || order.RestaurantID != restaurantID {
		t.Fatalf("unexpected owner fields %+v", order)
	}
	if item.ProductVersion != 3 {
		t.Fatalf("expected product version 3 to be recorded, got %d", item.ProductVersion)
	}
	if len(item.Options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(item.Options))
	}
	if item.Options[0].OptionID != large || item.Options[1].OptionID != bacon || item.Options[2].OptionID != cheese {
		t.Fatalf("expected options ordered by group then id, got %+v", item.Options)
	}
	if !item.Options[0].ExtraPrice.Equal(money("5.00")) {
		t.Fatalf("expected Large extra price snapshot 5.00, got %s", item.Options[0].ExtraPrice)
	}
}

func TestBuildMultipleLines(t *testing.T) {
	order, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{small}},
		{ProductID: pizzaID, Quantity: 3, SelectedOptionIDs: []int64{thin}},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// 20.00 + (35.50 + 1.25) * 3
	if order.TotalPrice.StringFixed(2) != "130.25" {
		t.Fatalf("expected 130.25, got %s", order.TotalPrice.StringFixed(2))
	}
}

func TestBuildMissingRequiredGroup(t *testing.T) {
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{bacon, cheese}},
	})

	de, ok := domain.AsError(err)
	if !ok || de.Code != domain.CodeMissingRequiredGroup {
		t.Fatalf("expected MissingRequiredGroup, got %v", err)
	}
	if de.Details["option_group_name"] != "Size" {
		t.Fatalf("expected Size group in details, got %v", de.Details)
	}
}

func TestBuildAlwaysRejectsEmptyRequiredGroup(t *testing.T) {
	selections := [][]int64{nil, {bacon}, {cheese}, {bacon, cheese}}
	for _, quantity := range []int{1, 5, 99} {
		for _, selected := range selections {
			_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
				{ProductID: burgerID, Quantity: quantity, SelectedOptionIDs: selected},
			})
			if !domain.HasCode(err, domain.CodeMissingRequiredGroup) {
				t.Fatalf("quantity %d selection %v: expected MissingRequiredGroup, got %v", quantity, selected, err)
			}
		}
	}
}

func TestBuildOptionFromAnotherProduct(t *testing.T) {
	// thin crust belongs to the pizza, ordered on the burger
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{small, thin}},
	})

	de, ok := domain.AsError(err)
	if !ok || de.Code != domain.CodeOptionNotInGroup {
		t.Fatalf("expected OptionNotInGroup, got %v", err)
	}
	if de.Details["option_id"] != thin || de.Details["product_id"] != burgerID {
		t.Fatalf("expected offending option and product in details, got %v", de.Details)
	}
}

func TestBuildGroupFromAnotherProduct(t *testing.T) {
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{{
		ProductID:         burgerID,
		Quantity:          1,
		SelectedOptionIDs: []int64{small},
		OptionGroups:      []domain.GroupSelection{{OptionGroupID: crustGroup, OptionIDs: []int64{thin}}},
	}})
	if !domain.HasCode(err, domain.CodeUnknownOptionGroup) {
		t.Fatalf("expected UnknownOptionGroup, got %v", err)
	}
}

func TestBuildExplicitGroupedSelection(t *testing.T) {
	order, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{{
		ProductID: burgerID,
		Quantity:  1,
		OptionGroups: []domain.GroupSelection{
			{OptionGroupID: sizeGroup, OptionIDs: []int64{large}},
			{OptionGroupID: extrasGroup, OptionIDs: []int64{cheese}},
		},
	}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !order.TotalPrice.Equal(money("27.00")) {
		t.Fatalf("expected 27.00, got %s", order.TotalPrice)
	}
}

func TestBuildGroupedOptionInWrongGroup(t *testing.T) {
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{{
		ProductID:    burgerID,
		Quantity:     1,
		OptionGroups: []domain.GroupSelection{{OptionGroupID: sizeGroup, OptionIDs: []int64{bacon}}},
	}})
	if !domain.HasCode(err, domain.CodeOptionNotInGroup) {
		t.Fatalf("expected OptionNotInGroup, got %v", err)
	}
}

func TestBuildCrossRestaurantProduct(t *testing.T) {
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: otherID, Quantity: 1},
	})
	if !domain.IsKind(err, domain.KindConsistencyViolation) || !domain.HasCode(err, domain.CodeCrossRestaurantProduct) {
		t.Fatalf("expected CrossRestaurantProduct consistency violation, got %v", err)
	}
}

func TestBuildProductNotFound(t *testing.T) {
	_, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{small}},
		{ProductID: 404, Quantity: 1},
	})

	de, ok := domain.AsError(err)
	if !ok || de.Code != domain.CodeProductNotFound || de.Kind != domain.KindNotFound {
		t.Fatalf("expected ProductNotFound, got %v", err)
	}
	if de.Details["line"] != 1 {
		t.Fatalf("expected failing line index 1, got %v", de.Details["line"])
	}
}

func TestBuildIsAllOrNothing(t *testing.T) {
	order, err := Build(snapshot(), userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{large}},
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{bacon}},
	})
	if err == nil {
		t.Fatal("expected second line to fail")
	}
	if order != nil {
		t.Fatalf("expected no partial order, got %+v", order)
	}
}

func TestBuildEmptyCart(t *testing.T) {
	if _, err := Build(snapshot(), userID, restaurantID, nil); !domain.HasCode(err, domain.CodeEmptyCart) {
		t.Fatalf("expected EmptyCart, got %v", err)
	}
}

func TestBuildRejectsForeignSnapshot(t *testing.T) {
	_, err := Build(snapshot(), userID, 2, []domain.CartLine{{ProductID: otherID, Quantity: 1}})
	if !domain.HasCode(err, domain.CodeRestaurantNotFound) {
		t.Fatalf("expected RestaurantNotFound for a snapshot of another restaurant, got %v", err)
	}
}

func TestBuildMalformedCatalog(t *testing.T) {
	s := snapshot()
	p, _ := s.Product(pizzaID)
	p.OptionGroups[0].MinSelection = 2
	p.OptionGroups[0].MaxSelection = 1
	s.Add(p)

	_, err := Build(s, userID, restaurantID, []domain.CartLine{{ProductID: pizzaID, Quantity: 1}})
	if !domain.HasCode(err, domain.CodeMalformedOptionGroup) {
		t.Fatalf("expected MalformedOptionGroup, got %v", err)
	}
}

func TestBuildInvalidCatalogPrice(t *testing.T) {
	s := snapshot()
	p, _ := s.Product(pizzaID)
	p.BasePrice = money("10.999")
	s.Add(p)

	_, err := Build(s, userID, restaurantID, []domain.CartLine{{ProductID: pizzaID, Quantity: 1}})
	if !domain.HasCode(err, domain.CodeInvalidPrice) {
		t.Fatalf("expected InvalidPrice, got %v", err)
	}
}

func TestBuildSnapshotsPrices(t *testing.T) {
	s := snapshot()
	order, err := Build(s, userID, restaurantID, []domain.CartLine{
		{ProductID: burgerID, Quantity: 1, SelectedOptionIDs: []int64{large}},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	p, _ := s.Product(burgerID)
	p.BasePrice = money("99.00")
	p.OptionGroups[0].Options[1].ExtraPrice = money("50.00")
	s.Add(p)

	item := order.Items[0]
	if !item.BasePrice.Equal(money("20.00")) || !item.Options[0].ExtraPrice.Equal(money("5.00")) {
		t.Fatalf("built order changed with the catalog: %+v", item)
	}
}
