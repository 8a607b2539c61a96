package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Unavailable is the JSON spelling of a price the lookup stage could not determine.
const Unavailable = "unavailable"

// Price is a USD amount that may be unknown.
// An unknown price is never the same thing as a zero price.
type Price struct {
	decimal.NullDecimal
}

// KnownPrice returns a price holding d.
func KnownPrice(d decimal.Decimal) Price {
	return Price{decimal.NewNullDecimal(d)}
}

// UnknownPrice returns a price with no data.
func UnknownPrice() Price {
	return Price{}
}

// ParsePrice parses a provider price string such as "12.34".
// An empty string yields an unknown price.
func ParsePrice(s string) (Price, error) {
	if s == "" {
		return UnknownPrice(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return UnknownPrice(), fmt.Errorf("invalid price %q: %w", s, err)
	}
	return KnownPrice(d), nil
}

// Known reports whether the price has data.
func (p Price) Known() bool {
	return p.Valid
}

// Amount returns the price, or zero when unknown.
func (p Price) Amount() decimal.Decimal {
	if !p.Valid {
		return decimal.Zero
	}
	return p.Decimal
}

// String formats the price with two decimals.
func (p Price) String() string {
	if !p.Valid {
		return Unavailable
	}
	return p.Decimal.StringFixed(2)
}

// MarshalJSON writes a number with cent precision, or "unavailable".
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte(`"` + Unavailable + `"`), nil
	}
	return []byte(p.Decimal.StringFixed(2)), nil
}

// UnmarshalJSON accepts a number, a numeric string, "unavailable" or null.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*p = UnknownPrice()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == Unavailable {
			*p = UnknownPrice()
			return nil
		}
		parsed, err := ParsePrice(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid price %s: %w", data, err)
	}
	*p = KnownPrice(d)
	return nil
}
