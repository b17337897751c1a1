// Package billing holds the pure money arithmetic of the POS: bill totals,
// discounts and equal splits. Amounts are int64 minor currency units.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/microservices/pos/models"
)

// Rates are the outlet's flat tax and service-charge rates as fractions
// of the subtotal (0.05 = 5%).
type Rates struct {
	Tax           decimal.Decimal
	ServiceCharge decimal.Decimal
}

func ParseRates(tax, service string) (Rates, error) {
	t, err := parseRate(tax)
	if err != nil {
		return Rates{}, fmt.Errorf("tax rate: %w", err)
	}
	s, err := parseRate(service)
	if err != nil {
		return Rates{}, fmt.Errorf("service charge rate: %w", err)
	}
	return Rates{Tax: t, ServiceCharge: s}, nil
}

func parseRate(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s outside [0,1]", v)
	}
	return d, nil
}

type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	Tax           int64 `json:"tax"`
	ServiceCharge int64 `json:"service_charge"`
	Discount      int64 `json:"discount"`
	Total         int64 `json:"total"`
}

// RoundHalfUp applies a rate to a non-negative amount and rounds to the
// minor unit, halves going up.
func RoundHalfUp(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// Subtotal is sum((unitPrice + modifier deltas) x quantity).
func Subtotal(items []models.OrderItem) (int64, error) {
	var sum int64
	for _, it := range items {
		line, err := it.LineTotal()
		if err != nil {
			return 0, err
		}
		if sum, err = models.SumAmounts(sum, line); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// ResolveDiscount turns a discount request into an amount against subtotal.
// A nil spec resolves to zero.
func ResolveDiscount(spec *models.Discount, subtotal int64) (int64, error) {
	if spec == nil {
		return 0, nil
	}
	var amount int64
	switch spec.Kind {
	case models.DiscountAmount:
		amount = spec.Value
	case models.DiscountPercent:
		if spec.Value > 10000 {
			return 0, models.Validationf("discount percent cannot exceed 100")
		}
		amount = RoundHalfUp(subtotal, decimal.New(spec.Value, -4))
	default:
		return 0, models.Validationf("unknown discount kind %q", spec.Kind)
	}
	if amount < 0 {
		return 0, models.Validationf("discount cannot be negative")
	}
	if amount > subtotal {
		return 0, models.Validationf("discount %d exceeds subtotal %d", amount, subtotal)
	}
	return amount, nil
}

// Compute is the bill: total = subtotal + tax + serviceCharge - discount.
func Compute(items []models.OrderItem, spec *models.Discount, r Rates) (Totals, error) {
	sub, err := Subtotal(items)
	if err != nil {
		return Totals{}, err
	}
	disc, err := ResolveDiscount(spec, sub)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{
		Subtotal:      sub,
		Tax:           RoundHalfUp(sub, r.Tax),
		ServiceCharge: RoundHalfUp(sub, r.ServiceCharge),
		Discount:      disc,
	}
	gross, err := models.SumAmounts(t.Subtotal, t.Tax, t.ServiceCharge)
	if err != nil {
		return Totals{}, err
	}
	t.Total = gross - t.Discount
	if t.Total < 0 {
		return Totals{}, models.Validationf("order total would be negative")
	}
	return t, nil
}

// Apply recomputes o's bill fields in place.
func Apply(o *models.Order, r Rates) error {
	t, err := Compute(o.Items, o.DiscountSpec, r)
	if err != nil {
		return err
	}
	o.Subtotal, o.Tax, o.ServiceCharge, o.Discount, o.Total = t.Subtotal, t.Tax, t.ServiceCharge, t.Discount, t.Total
	return nil
}

// EqualSplit divides total into parties shares that sum exactly to total.
// The remainder is handed out one unit at a time starting from the first
// share, so no two shares differ by more than one unit.
func EqualSplit(total int64, parties int) ([]int64, error) {
	if parties < 1 {
		return nil, models.Validationf("party count must be at least 1")
	}
	if total < 0 {
		return nil, models.Validationf("cannot split a negative total")
	}
	n := int64(parties)
	base, rem := total/n, total%n
	shares := make([]int64, parties)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares, nil
}

// ParsePercent converts "12.5" into basis points (1250).
func ParsePercent(v string) (int64, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, models.Validationf("invalid percent %q", v)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, models.Validationf("percent must be between 0 and 100")
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
