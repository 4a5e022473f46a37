package pricing

import "errors"

var (
	// ErrInvalidLineItem is returned when a line item carries a negative
	// quantity or unit price.
	ErrInvalidLineItem = errors.New("pricing: invalid line item")
	// ErrInvalidDiscount is returned when the discount value is negative.
	ErrInvalidDiscount = errors.New("pricing: invalid discount")
	// ErrInvalidTaxRate is returned when the tax rate is negative.
	ErrInvalidTaxRate = errors.New("pricing: invalid tax rate")
	// ErrRuleResolution indicates the caller supplied a missing or invalid
	// catalog base rate.
	ErrRuleResolution = errors.New("pricing: rule resolution failed")
	// ErrEstimateLocked is returned when a rate or line mutation is attempted
	// after the owning estimate left the draft state.
	ErrEstimateLocked = errors.New("pricing: estimate locked")
)
