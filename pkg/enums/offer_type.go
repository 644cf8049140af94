package enums

import "fmt"

// OfferType distinguishes what the requester puts on the table.
type OfferType string

const (
	OfferTypeExistingListing OfferType = "existing_listing"
	OfferTypeCustom          OfferType = "custom"
)

var validOfferTypes = []OfferType{
	OfferTypeExistingListing,
	OfferTypeCustom,
}

// String implements fmt.Stringer.
func (o OfferType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OfferType.
func (o OfferType) IsValid() bool {
	for _, candidate := range validOfferTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOfferType converts raw input into an OfferType.
func ParseOfferType(value string) (OfferType, error) {
	for _, candidate := range validOfferTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer type %q", value)
}
