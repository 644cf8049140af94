package exchanges

import "github.com/mukhtabar/mukhtabar-backend/pkg/enums"

// allowedTransitions is the exchange state machine. Anything absent is
// disallowed; completed, cancelled and rejected are terminal.
var allowedTransitions = map[enums.ExchangeStatus][]enums.ExchangeStatus{
	enums.ExchangeStatusPending: {
		enums.ExchangeStatusAccepted,
		enums.ExchangeStatusRejected,
	},
	enums.ExchangeStatusAccepted: {
		enums.ExchangeStatusNegotiating,
		enums.ExchangeStatusConfirmed,
		enums.ExchangeStatusCancelled,
	},
	enums.ExchangeStatusNegotiating: {
		enums.ExchangeStatusConfirmed,
		enums.ExchangeStatusCancelled,
	},
	enums.ExchangeStatusConfirmed: {
		enums.ExchangeStatusInProgress,
		enums.ExchangeStatusDisputed,
		enums.ExchangeStatusCancelled,
	},
	enums.ExchangeStatusInProgress: {
		enums.ExchangeStatusCompleted,
		enums.ExchangeStatusDisputed,
		enums.ExchangeStatusCancelled,
	},
	enums.ExchangeStatusDisputed: {
		enums.ExchangeStatusCompleted,
		enums.ExchangeStatusCancelled,
	},
}

// canTransition reports whether the state machine permits from -> to.
func canTransition(from, to enums.ExchangeStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
