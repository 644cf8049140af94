package orders

import "github.com/mukhtabar/mukhtabar-backend/pkg/enums"

// allowedTransitions is the order fulfillment state machine. Confirmed is
// only reachable through the payment fence and cancelled only through
// Cancel; completed, cancelled and refunded are terminal.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusCompleted,
	},
}

// canTransition reports whether the state machine permits from -> to.
func canTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// cancellable reports whether the order may still be cancelled. Shipped
// and later states are past the point of no return.
func cancellable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusProcessing:
		return true
	default:
		return false
	}
}
