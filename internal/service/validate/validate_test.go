package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	t.Parallel()

	type item struct {
		Price decimal.Decimal `json:"price" validate:"price"`
	}

	v := New()

	tests := []struct {
		price string
		ok    bool
	}{
		{"9.99", true},
		{"10", true},
		{"0.01", true},
		{"0", false},
		{"-1", false},
		{"9.999", false},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			err := v.Struct(item{Price: decimal.RequireFromString(tt.price)})
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestJSONTagNames(t *testing.T) {
	t.Parallel()

	type request struct {
		ProductID string `json:"product_id" validate:"required"`
	}

	err := New().Struct(request{})

	require.Error(t, err)
	require.Contains(t, err.Error(), "product_id")
}
