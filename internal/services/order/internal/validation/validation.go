package validation

import (
	"fmt"

	"food-delivery/internal/services/order/internal/domain"
)

// Cart limits. They are business rules of the storefront, not storage
// limits, and are reported as such when a cart breaks them.
const (
	MaxCartLines = 20
	MinQuantity  = 1
	MaxQuantity  = 99
)

func fieldError(code domain.Code, field, message string) *domain.Error {
	return domain.Validation(code, message, map[string]interface{}{
		"field": field,
	})
}

// ValidateCart checks the shape of a cart before any catalog lookup
func ValidateCart(lines []domain.CartLine) error {
	if len(lines) == 0 {
		return fieldError(domain.CodeEmptyCart, "lines", "cart cannot be empty")
	}

	if len(lines) > MaxCartLines {
		return fieldError(domain.CodeTooManyLines, "lines",
			fmt.Sprintf("a maximum of %d lines is allowed", MaxCartLines))
	}

	for i, line := range lines {
		if err := validateLine(line, i); err != nil {
			return err
		}
	}
	return nil
}

func validateLine(line domain.CartLine, index int) error {
	if line.ProductID <= 0 {
		return fieldError(domain.CodeInvalidRequest, fmt.Sprintf("lines[%d].product_id", index),
			"product id must be positive")
	}

	if err := ValidateQuantity(line.Quantity); err != nil {
		return err.WithDetail("field", fmt.Sprintf("lines[%d].quantity", index))
	}

	seen := make(map[int64]bool, len(line.SelectedOptionIDs))
	for _, id := range line.SelectedOptionIDs {
		if seen[id] {
			return domain.Validation(domain.CodeDuplicateOption, "option selected more than once", map[string]interface{}{
				"field":     fmt.Sprintf("lines[%d].selected_option_ids", index),
				"option_id": id,
			})
		}
		seen[id] = true
	}

	for _, group := range line.OptionGroups {
		for _, id := range group.OptionIDs {
			if seen[id] {
				return domain.Validation(domain.CodeDuplicateOption, "option selected more than once", map[string]interface{}{
					"field":     fmt.Sprintf("lines[%d].option_groups", index),
					"option_id": id,
				})
			}
			seen[id] = true
		}
	}
	return nil
}

// ValidateQuantity rejects quantities outside 1..99
func ValidateQuantity(quantity int) *domain.Error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return domain.Validation(domain.CodeInvalidQuantity,
			fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity),
			map[string]interface{}{
				"quantity":     quantity,
				"min_quantity": MinQuantity,
				"max_quantity": MaxQuantity,
				"limit":        "business",
			})
	}
	return nil
}
