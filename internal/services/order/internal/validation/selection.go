package validation

import (
	"cmp"
	"fmt"
	"slices"

	"food-delivery/internal/services/order/internal/domain"
)

// Selection maps an option group id to the option ids chosen in it
type Selection map[int64][]int64

// ValidateSelection checks a selection against the option groups of a product.
//
// Groups in the selection that are not attached to the product are reported
// first (lowest id wins). Then every attached group is checked in ascending id
// order, an omitted group counting as an empty selection: definition sanity,
// membership of each chosen option, required, minimum, maximum. The first
// failure is returned.
func ValidateSelection(product domain.Product, groups []domain.OptionGroup, selection Selection) error {
	attached := make(map[int64]bool, len(groups))
	for _, g := range groups {
		attached[g.ID] = true
	}

	unknown := make([]int64, 0)
	for groupID := range selection {
		if !attached[groupID] {
			unknown = append(unknown, groupID)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return domain.Validation(domain.CodeUnknownOptionGroup, "option group is not attached to the product",
			map[string]interface{}{
				"product_id":      product.ID,
				"option_group_id": unknown[0],
			})
	}

	ordered := slices.Clone(groups)
	slices.SortFunc(ordered, func(a, b domain.OptionGroup) int {
		return cmp.Compare(a.ID, b.ID)
	})

	for _, g := range ordered {
		if err := validateGroup(g, selection[g.ID]); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(g domain.OptionGroup, chosen []int64) error {
	if err := CheckGroupDefinition(g); err != nil {
		return err
	}

	members := make(map[int64]bool, len(g.Options))
	for _, o := range g.Options {
		members[o.ID] = true
	}

	seen := make(map[int64]bool, len(chosen))
	for _, id := range chosen {
		if !members[id] {
			return domain.Validation(domain.CodeOptionNotInGroup,
				fmt.Sprintf("option %d does not belong to group %q", id, g.Name),
				groupDetails(g, map[string]interface{}{"option_id": id}))
		}
		if seen[id] {
			return domain.Validation(domain.CodeDuplicateOption, "option selected more than once",
				groupDetails(g, map[string]interface{}{"option_id": id}))
		}
		seen[id] = true
	}

	count := len(chosen)

	if g.IsRequired && count == 0 {
		return domain.Validation(domain.CodeMissingRequiredGroup,
			fmt.Sprintf("%s is required", g.Name),
			groupDetails(g, nil))
	}

	if count < g.MinSelection {
		return domain.Validation(domain.CodeBelowMinimumSelection,
			fmt.Sprintf("%s needs at least %d selections", g.Name, g.MinSelection),
			groupDetails(g, map[string]interface{}{"count": count, "min": g.MinSelection}))
	}

	if !g.Unbounded() && count > g.MaxSelection {
		return domain.Validation(domain.CodeAboveMaximumSelection,
			fmt.Sprintf("%s allows at most %d selections", g.Name, g.MaxSelection),
			groupDetails(g, map[string]interface{}{"count": count, "max": g.MaxSelection}))
	}

	return nil
}

// CheckGroupDefinition rejects option groups whose limits cannot be satisfied
func CheckGroupDefinition(g domain.OptionGroup) error {
	if g.MinSelection < 0 || g.MaxSelection < 0 {
		return domain.Consistency(domain.CodeMalformedOptionGroup, "option group has negative selection limits",
			groupDetails(g, map[string]interface{}{"min": g.MinSelection, "max": g.MaxSelection}))
	}
	if !g.Unbounded() && g.MinSelection > g.MaxSelection {
		return domain.Consistency(domain.CodeMalformedOptionGroup, "option group minimum exceeds its maximum",
			groupDetails(g, map[string]interface{}{"min": g.MinSelection, "max": g.MaxSelection}))
	}
	return nil
}

func groupDetails(g domain.OptionGroup, extra map[string]interface{}) map[string]interface{} {
	details := map[string]interface{}{
		"product_id":        g.ProductID,
		"option_group_id":   g.ID,
		"option_group_name": g.Name,
	}
	for k, v := range extra {
		details[k] = v
	}
	return details
}
