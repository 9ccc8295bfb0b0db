// Package receipt computes receipt line totals and maintains line-item order.
package receipt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate     = errors.New("rate must be between 0 and 100")
	ErrInvalidItem     = errors.New("invalid line item")
	ErrPositionMissing = errors.New("line item position out of range")
)

var hundred = decimal.NewFromInt(100)

// LineItem is one priced row on a receipt. Position is 1-based and contiguous.
type LineItem struct {
	ID          string          `json:"id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Total is quantity × unit price.
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Validate rejects empty descriptions and negative amounts.
func (l LineItem) Validate() error {
	if strings.TrimSpace(l.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidItem)
	}
	if l.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidItem)
	}
	return nil
}

// Rate is an independently toggleable percentage.
type Rate struct {
	Enabled bool            `json:"enabled"`
	Percent decimal.Decimal `json:"percent"`
}

func (r Rate) Validate(name string) error {
	if r.Percent.IsNegative() || r.Percent.GreaterThan(hundred) {
		return fmt.Errorf("%s: %w", name, ErrInvalidRate)
	}
	return nil
}

// Of applies the rate to base, or returns zero when disabled.
func (r Rate) Of(base decimal.Decimal) decimal.Decimal {
	if !r.Enabled {
		return decimal.Zero
	}
	return base.Mul(r.Percent).Div(hundred)
}

// Rates groups the receipt's adjustments.
type Rates struct {
	Tax      Rate `json:"tax"`
	VAT      Rate `json:"vat"`
	Discount Rate `json:"discount"`
}

func (r Rates) Validate() error {
	return errors.Join(r.Tax.Validate("tax"), r.VAT.Validate("vat"), r.Discount.Validate("discount"))
}

// Totals is the computed breakdown of a receipt.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	VAT      decimal.Decimal `json:"vat"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Compute sums the line items and applies each enabled rate to the subtotal.
// Rates never compound: the discount is taken from the subtotal, not from the
// taxed amount.
func Compute(items []LineItem, rates Rates) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}
	totals := Totals{
		Subtotal: subtotal,
		Tax:      rates.Tax.Of(subtotal),
		VAT:      rates.VAT.Of(subtotal),
		Discount: rates.Discount.Of(subtotal),
	}
	totals.Total = subtotal.Add(totals.Tax).Add(totals.VAT).Sub(totals.Discount).Round(2)
	return totals
}
