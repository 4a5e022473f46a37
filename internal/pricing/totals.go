// Package pricing is the estimate pricing and totals engine. It turns catalog
// services, customer pricing rules, manual line items, operational charges,
// discounts, tax and shipping into a single authoritative total, and gates
// rate mutations once an estimate has been transmitted. Every function here is
// pure and synchronous: no I/O, no shared state, safe to re-run on any edit.
package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/money"
)

// LineItem is a priced estimate line. LineTotal is derived and recomputed on
// every pass; stored values are never trusted.
type LineItem struct {
	ID          uuid.UUID
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Taxable     bool
	Position    int32
	LineTotal   decimal.Decimal
}

// ChargeKind classifies an ad hoc operational charge.
type ChargeKind string

const (
	ChargeTransportation ChargeKind = "transportation"
	ChargeFuelSurcharge  ChargeKind = "fuel_surcharge"
	ChargeCODFee         ChargeKind = "cod_fee"
	ChargeStorage        ChargeKind = "storage"
	ChargeOverage        ChargeKind = "overage"
	ChargeCredit         ChargeKind = "credit"
	ChargeOther          ChargeKind = "other"
)

// Valid reports whether the charge kind is known.
func (k ChargeKind) Valid() bool {
	switch k {
	case ChargeTransportation, ChargeFuelSurcharge, ChargeCODFee, ChargeStorage, ChargeOverage, ChargeCredit, ChargeOther:
		return true
	}
	return false
}

// Charge is a signed operational fee; negative amounts are credits and may
// legally drive the subtotal negative.
type Charge struct {
	ID          uuid.UUID
	Kind        ChargeKind
	Amount      decimal.Decimal
	Description string
}

// DiscountType selects how the estimate-level discount is expressed.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

// Discount is the estimate-level discount specification.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Override carries one-shot literal replacements for computed fields.
// Downstream fields recompute from the literal, and the override is forgotten
// the moment any upstream input changes; it is never persisted as a formula.
type Override struct {
	Subtotal    *decimal.Decimal
	TaxAmount   *decimal.Decimal
	TotalAmount *decimal.Decimal
}

// TotalsInput gathers every input the composer depends on.
type TotalsInput struct {
	Lines    []LineItem
	Charges  []Charge
	Discount Discount
	TaxRate  decimal.Decimal
	Shipping decimal.Decimal
	Override *Override
}

// Totals is the composed output. Lines carries the recomputed line totals so
// callers can persist them alongside the estimate-level caches.
type Totals struct {
	Lines           []LineItem
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxableSubtotal decimal.Decimal
	TaxAmount       decimal.Decimal
	ShippingAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
}

// ComputeTotals recomputes the invariant chain top to bottom: line totals,
// charge aggregate, discount, proportional tax allocation, shipping, final
// total. It validates before producing anything, so a rejected input leaves
// previously computed totals untouched.
func ComputeTotals(in TotalsInput) (Totals, error) {
	lines := make([]LineItem, len(in.Lines))
	linesTotal := decimal.Zero
	taxableLines := decimal.Zero
	for i, line := range in.Lines {
		if line.Quantity.IsNegative() {
			return Totals{}, fmt.Errorf("line %q quantity %s: %w", line.Description, line.Quantity, ErrInvalidLineItem)
		}
		if line.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("line %q unit price %s: %w", line.Description, line.UnitPrice, ErrInvalidLineItem)
		}
		line.LineTotal = money.Round2(line.Quantity.Mul(line.UnitPrice))
		lines[i] = line
		linesTotal = linesTotal.Add(line.LineTotal)
		if line.Taxable {
			taxableLines = taxableLines.Add(line.LineTotal)
		}
	}

	chargesTotal := decimal.Zero
	for _, charge := range in.Charges {
		chargesTotal = chargesTotal.Add(charge.Amount)
	}

	subtotal := money.Round2(linesTotal.Add(chargesTotal))
	if in.Override != nil && in.Override.Subtotal != nil {
		subtotal = money.Round2(*in.Override.Subtotal)
	}

	discountAmount, err := discountAmount(in.Discount, subtotal)
	if err != nil {
		return Totals{}, err
	}

	taxableSubtotal := money.Round2(subtotal.Sub(discountAmount))

	if in.TaxRate.IsNegative() {
		return Totals{}, fmt.Errorf("tax rate %s: %w", in.TaxRate, ErrInvalidTaxRate)
	}
	taxAmount := money.Round2(taxablePortion(taxableSubtotal, taxableLines, linesTotal).
		Mul(in.TaxRate).Div(decimal.NewFromInt(100)))
	if in.Override != nil && in.Override.TaxAmount != nil {
		taxAmount = money.Round2(*in.Override.TaxAmount)
	}

	shipping := money.Round2(in.Shipping)
	total := money.Round2(taxableSubtotal.Add(taxAmount).Add(shipping))
	if in.Override != nil && in.Override.TotalAmount != nil {
		total = money.Round2(*in.Override.TotalAmount)
	}

	return Totals{
		Lines:           lines,
		Subtotal:        subtotal,
		DiscountAmount:  discountAmount,
		TaxableSubtotal: taxableSubtotal,
		TaxAmount:       taxAmount,
		ShippingAmount:  shipping,
		TotalAmount:     total,
	}, nil
}

func discountAmount(d Discount, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if d.Value.IsNegative() {
		return decimal.Zero, fmt.Errorf("discount value %s: %w", d.Value, ErrInvalidDiscount)
	}
	if d.Value.IsZero() || subtotal.Sign() <= 0 {
		return decimal.Zero, nil
	}
	switch d.Type {
	case DiscountPercent:
		return money.Clamp(money.Percent(subtotal, d.Value), decimal.Zero, subtotal), nil
	case DiscountAmount:
		return money.Clamp(money.Round2(d.Value), decimal.Zero, subtotal), nil
	case "":
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("discount type %q: %w", d.Type, ErrInvalidDiscount)
}

// taxablePortion allocates the post-discount subtotal across taxable and
// non-taxable lines proportionally, so value never subject to tax is never
// taxed. A zero lines total means nothing is taxable.
func taxablePortion(taxableSubtotal, taxableLines, linesTotal decimal.Decimal) decimal.Decimal {
	if linesTotal.Sign() <= 0 || taxableLines.Sign() <= 0 {
		return decimal.Zero
	}
	portion := taxableSubtotal.Mul(taxableLines).Div(linesTotal)
	if portion.IsNegative() {
		return decimal.Zero
	}
	return portion
}
