// Package classify splits resolved cards into keep and proxy piles by price.
package classify

import (
	"github.com/shopspring/decimal"

	"cardbored-api/internal/model"
)

// DefaultThreshold is the per-card price above which a card is proxied.
var DefaultThreshold = decimal.RequireFromString("3.00")

// Split is the result of one classification pass.
type Split struct {
	Threshold decimal.Decimal
	Keep      []model.ResolvedCard
	Proxy     []model.ResolvedCard
	KeepCost  decimal.Decimal
	ProxyCost decimal.Decimal
	TotalCost decimal.Decimal
}

// Classify partitions cards in input order. A card goes to the proxy pile only
// when its price is known and strictly above threshold; unknown prices stay in
// the keep pile and add nothing to the totals.
func Classify(cards []model.ResolvedCard, threshold decimal.Decimal) Split {
	s := Split{
		Threshold: threshold,
		Keep:      make([]model.ResolvedCard, 0, len(cards)),
		Proxy:     make([]model.ResolvedCard, 0),
		KeepCost:  decimal.Zero,
		ProxyCost: decimal.Zero,
	}
	for _, c := range cards {
		cost := Subtotal(c)
		if c.Price.Known() && c.Price.Decimal.GreaterThan(threshold) {
			s.Proxy = append(s.Proxy, c)
			s.ProxyCost = s.ProxyCost.Add(cost)
			continue
		}
		s.Keep = append(s.Keep, c)
		s.KeepCost = s.KeepCost.Add(cost)
	}
	s.TotalCost = s.KeepCost.Add(s.ProxyCost)
	return s
}

// Subtotal returns price × quantity, zero for an unknown price.
func Subtotal(c model.ResolvedCard) decimal.Decimal {
	return c.Price.Amount().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Total sums Subtotal over cards.
func Total(cards []model.ResolvedCard) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cards {
		total = total.Add(Subtotal(c))
	}
	return total
}

// FormatCost renders an amount with two decimals.
func FormatCost(d decimal.Decimal) string {
	return d.StringFixed(2)
}
