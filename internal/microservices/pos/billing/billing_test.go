package billing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-pos/internal/microservices/pos/models"
)

func items() []models.OrderItem {
	return []models.OrderItem{
		{Quantity: 2, UnitPrice: 25000, Modifiers: []models.Modifier{{Name: "cheese", PriceDelta: 3000}}},
		{Quantity: 1, UnitPrice: 9000},
	}
}

func TestCompute(t *testing.T) {
	rates, err := ParseRates("0.05", "0.10")
	require.NoError(t, err)

	tot, err := Compute(items(), nil, rates)
	require.NoError(t, err)
	assert.Equal(t, int64(65000), tot.Subtotal)
	assert.Equal(t, int64(3250), tot.Tax)
	assert.Equal(t, int64(6500), tot.ServiceCharge)
	assert.Equal(t, int64(74750), tot.Total)
	assert.Equal(t, tot.Subtotal+tot.Tax+tot.ServiceCharge-tot.Discount, tot.Total)
}

func TestComputeWithDiscounts(t *testing.T) {
	rates, err := ParseRates("0.05", "0")
	require.NoError(t, err)

	t.Run("amount", func(t *testing.T) {
		tot, err := Compute(items(), &models.Discount{Kind: models.DiscountAmount, Value: 5000}, rates)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), tot.Discount)
		assert.Equal(t, int64(65000+3250-5000), tot.Total)
	})
	t.Run("percent", func(t *testing.T) {
		tot, err := Compute(items(), &models.Discount{Kind: models.DiscountPercent, Value: 1250}, rates)
		require.NoError(t, err)
		assert.Equal(t, int64(8125), tot.Discount)
	})
	t.Run("full subtotal", func(t *testing.T) {
		tot, err := Compute(items(), &models.Discount{Kind: models.DiscountPercent, Value: 10000}, rates)
		require.NoError(t, err)
		assert.Equal(t, tot.Subtotal, tot.Discount)
		assert.Equal(t, tot.Tax, tot.Total)
	})
	t.Run("more than subtotal", func(t *testing.T) {
		_, err := Compute(items(), &models.Discount{Kind: models.DiscountAmount, Value: 65001}, rates)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
	t.Run("negative", func(t *testing.T) {
		_, err := Compute(items(), &models.Discount{Kind: models.DiscountAmount, Value: -1}, rates)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestRoundHalfUp(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	assert.Equal(t, int64(1), RoundHalfUp(10, rate)) // 0.5
	assert.Equal(t, int64(0), RoundHalfUp(9, rate))  // 0.45
	assert.Equal(t, int64(2), RoundHalfUp(30, rate)) // 1.5
	assert.Equal(t, int64(1), RoundHalfUp(29, rate)) // 1.45
	assert.Equal(t, int64(0), RoundHalfUp(0, rate))
}

func TestParseRates(t *testing.T) {
	_, err := ParseRates("1.5", "0")
	assert.Error(t, err)
	_, err = ParseRates("abc", "0")
	assert.Error(t, err)
	r, err := ParseRates("", "")
	require.NoError(t, err)
	assert.True(t, r.Tax.IsZero())
}

func TestEqualSplit(t *testing.T) {
	for _, total := range []int64{0, 1, 99, 100, 1001, 74750} {
		for n := 1; n <= 7; n++ {
			shares, err := EqualSplit(total, n)
			require.NoError(t, err)
			require.Len(t, shares, n)

			var sum int64
			lo, hi := shares[0], shares[0]
			for _, s := range shares {
				sum += s
				lo, hi = min(lo, s), max(hi, s)
			}
			assert.Equal(t, total, sum, "total %d into %d", total, n)
			assert.LessOrEqual(t, hi-lo, int64(1), "total %d into %d", total, n)
		}
	}

	shares, err := EqualSplit(100, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{34, 33, 33}, shares)

	_, err = EqualSplit(100, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestParsePercent(t *testing.T) {
	bps, err := ParsePercent("12.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), bps)

	_, err = ParsePercent("101")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = ParsePercent("ten")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestComputeRejectsOverflow(t *testing.T) {
	rates, err := ParseRates("0.05", "0.10")
	require.NoError(t, err)

	wrapping := []models.OrderItem{{Name: "Soda", Quantity: 1 << 62, UnitPrice: 250}}
	_, err = Compute(wrapping, nil, rates)
	assert.ErrorIs(t, err, models.ErrValidation)

	huge := []models.OrderItem{
		{Name: "a", Quantity: 1, UnitPrice: math.MaxInt64 - 10},
		{Name: "b", Quantity: 1, UnitPrice: 20},
	}
	_, err = Compute(huge, nil, rates)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = Compute([]models.OrderItem{{Name: "c", Quantity: 1, UnitPrice: math.MaxInt64 / 2}}, nil, rates)
	assert.ErrorIs(t, err, models.ErrValidation, "tax and service charge push the total past int64")
}
