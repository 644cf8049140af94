package enums

// ListingStatus tracks the visibility lifecycle of a listing.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusInactive  ListingStatus = "inactive"
	ListingStatusSoldOut   ListingStatus = "sold_out"
	ListingStatusExchanged ListingStatus = "exchanged"
)

var validListingStatuses = []ListingStatus{
	ListingStatusActive,
	ListingStatusInactive,
	ListingStatusSoldOut,
	ListingStatusExchanged,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
