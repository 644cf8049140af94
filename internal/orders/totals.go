package orders

import (
	"github.com/shopspring/decimal"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
)

// Totals holds the computed order amounts in halalas. The relationship
// total = subtotal + vat + shipping - discount always holds.
type Totals struct {
	SubtotalHalalas int64
	VATHalalas      int64
	ShippingHalalas int64
	DiscountHalalas int64
	TotalHalalas    int64
}

// computeTotals derives the order amounts from the line subtotal. VAT is
// computed with decimal arithmetic and rounded half-up to whole halalas.
// Shipping is free above the configured threshold. The discount is clamped
// so the total never goes negative.
func computeTotals(cfg config.OrdersConfig, subtotal, discount int64) (Totals, error) {
	if subtotal < 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal cannot be negative")
	}
	if discount < 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	rate, err := decimal.NewFromString(cfg.VATRate)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parsing VAT rate")
	}

	vat := decimal.NewFromInt(subtotal).Mul(rate).Round(0).IntPart()

	shipping := cfg.ShippingFee
	if subtotal >= cfg.FreeShippingThreshold {
		shipping = 0
	}

	if max := subtotal + vat + shipping; discount > max {
		discount = max
	}

	return Totals{
		SubtotalHalalas: subtotal,
		VATHalalas:      vat,
		ShippingHalalas: shipping,
		DiscountHalalas: discount,
		TotalHalalas:    subtotal + vat + shipping - discount,
	}, nil
}
