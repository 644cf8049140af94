package enums

// ExchangeRequestStatus tracks the negotiation lifecycle of a barter
// proposal. Accepted, rejected, withdrawn and expired are terminal.
type ExchangeRequestStatus string

const (
	ExchangeRequestStatusPending      ExchangeRequestStatus = "pending"
	ExchangeRequestStatusViewed       ExchangeRequestStatus = "viewed"
	ExchangeRequestStatusAccepted     ExchangeRequestStatus = "accepted"
	ExchangeRequestStatusRejected     ExchangeRequestStatus = "rejected"
	ExchangeRequestStatusCounterOffer ExchangeRequestStatus = "counter_offer"
	ExchangeRequestStatusWithdrawn    ExchangeRequestStatus = "withdrawn"
	ExchangeRequestStatusExpired      ExchangeRequestStatus = "expired"
)

var validExchangeRequestStatuses = []ExchangeRequestStatus{
	ExchangeRequestStatusPending,
	ExchangeRequestStatusViewed,
	ExchangeRequestStatusAccepted,
	ExchangeRequestStatusRejected,
	ExchangeRequestStatusCounterOffer,
	ExchangeRequestStatusWithdrawn,
	ExchangeRequestStatusExpired,
}

// String implements fmt.Stringer.
func (s ExchangeRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ExchangeRequestStatus.
func (s ExchangeRequestStatus) IsValid() bool {
	for _, candidate := range validExchangeRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s ExchangeRequestStatus) IsTerminal() bool {
	switch s {
	case ExchangeRequestStatusAccepted,
		ExchangeRequestStatusRejected,
		ExchangeRequestStatusWithdrawn,
		ExchangeRequestStatusExpired:
		return true
	default:
		return false
	}
}
