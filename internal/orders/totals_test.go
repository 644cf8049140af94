package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
)

func TestComputeTotals(t *testing.T) {
	t.Parallel()

	cfg := config.OrdersConfig{
		VATRate:               "0.15",
		FreeShippingThreshold: 50000,
		ShippingFee:           2500,
	}

	cases := []struct {
		name     string
		subtotal int64
		discount int64
		want     Totals
	}{
		{
			name:     "standard order below free shipping",
			subtotal: 10000,
			want: Totals{
				SubtotalHalalas: 10000,
				VATHalalas:      1500,
				ShippingHalalas: 2500,
				TotalHalalas:    14000,
			},
		},
		{
			name:     "free shipping at threshold",
			subtotal: 50000,
			want: Totals{
				SubtotalHalalas: 50000,
				VATHalalas:      7500,
				TotalHalalas:    57500,
			},
		},
		{
			name:     "vat rounds half up",
			subtotal: 333,
			want: Totals{
				SubtotalHalalas: 333,
				VATHalalas:      50,
				ShippingHalalas: 2500,
				TotalHalalas:    2883,
			},
		},
		{
			name:     "discount applies",
			subtotal: 10000,
			discount: 4000,
			want: Totals{
				SubtotalHalalas: 10000,
				VATHalalas:      1500,
				ShippingHalalas: 2500,
				DiscountHalalas: 4000,
				TotalHalalas:    10000,
			},
		},
		{
			name:     "discount clamps at total",
			subtotal: 1000,
			discount: 99999,
			want: Totals{
				SubtotalHalalas: 1000,
				VATHalalas:      150,
				ShippingHalalas: 2500,
				DiscountHalalas: 3650,
				TotalHalalas:    0,
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := computeTotals(cfg, tc.subtotal, tc.discount)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got.TotalHalalas,
				got.SubtotalHalalas+got.VATHalalas+got.ShippingHalalas-got.DiscountHalalas)
		})
	}
}

func TestComputeTotalsRejectsNegativeInputs(t *testing.T) {
	t.Parallel()

	cfg := config.OrdersConfig{VATRate: "0.15", FreeShippingThreshold: 50000, ShippingFee: 2500}

	_, err := computeTotals(cfg, -1, 0)
	require.Error(t, err)

	_, err = computeTotals(cfg, 100, -1)
	require.Error(t, err)
}
