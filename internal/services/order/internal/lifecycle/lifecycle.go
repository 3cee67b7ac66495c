package lifecycle

import (
	"fmt"

	"food-delivery/internal/services/order/internal/domain"
)

// Initial is the status every new order starts in
const Initial = domain.StatusPending

// transitions lists every allowed edge. Anything not listed is rejected.
var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.StatusPending:        {domain.StatusConfirmed, domain.StatusCancelled},
	domain.StatusConfirmed:      {domain.StatusPreparing, domain.StatusCancelled},
	domain.StatusPreparing:      {domain.StatusOutForDelivery, domain.StatusCancelled},
	domain.StatusOutForDelivery: {domain.StatusDelivered},
	domain.StatusDelivered:      nil,
	domain.StatusCancelled:      nil,
}

// Next returns the statuses reachable from current in one step
func Next(current domain.OrderStatus) []domain.OrderStatus {
	return transitions[current]
}

func CanTransition(current, target domain.OrderStatus) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

func IsTerminal(status domain.OrderStatus) bool {
	next, known := transitions[status]
	return known && len(next) == 0
}

// Transition checks that current -> target is an allowed edge
func Transition(current, target domain.OrderStatus) error {
	if _, known := transitions[target]; !known {
		return domain.Validation(domain.CodeInvalidStatus, "unknown order status", map[string]interface{}{
			"status": string(target),
		})
	}

	if !CanTransition(current, target) {
		allowed := make([]string, 0, len(transitions[current]))
		for _, s := range transitions[current] {
			allowed = append(allowed, string(s))
		}
		return domain.TransitionRejected(domain.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", current, target),
			map[string]interface{}{
				"from":    string(current),
				"to":      string(target),
				"allowed": allowed,
			})
	}
	return nil
}

// EnsureModifiable rejects changes to lines and prices once the order has left pending
func EnsureModifiable(status domain.OrderStatus) error {
	if status != domain.StatusPending {
		return domain.TransitionRejected(domain.CodeOrderLocked, "order can no longer be modified",
			map[string]interface{}{"status": string(status)})
	}
	return nil
}
