package estimate

import (
	"time"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// Line is the public line item payload.
type Line struct {
	ID          string  `json:"id"`
	ServiceID   *string `json:"serviceId,omitempty"`
	Description string  `json:"description"`
	Quantity    string  `json:"quantity"`
	UnitPrice   string  `json:"unitPrice"`
	LineTotal   string  `json:"lineTotal"`
	Taxable     bool    `json:"taxable"`
	Position    int32   `json:"position"`
}

// ChargeDTO is the public charge payload.
type ChargeDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

// TotalsDTO is the composed monetary block of an estimate response.
type TotalsDTO struct {
	Subtotal        string `json:"subtotal"`
	DiscountAmount  string `json:"discountAmount"`
	TaxableSubtotal string `json:"taxableSubtotal"`
	TaxAmount       string `json:"taxAmount"`
	ShippingAmount  string `json:"shippingAmount"`
	TotalAmount     string `json:"totalAmount"`
}

// OverridesDTO reports which computed fields are manually pinned.
type OverridesDTO struct {
	Subtotal    *string `json:"subtotal,omitempty"`
	TaxAmount   *string `json:"taxAmount,omitempty"`
	TotalAmount *string `json:"totalAmount,omitempty"`
}

// Detail is the full estimate aggregate payload.
type Detail struct {
	ID            string        `json:"id"`
	Number        string        `json:"number"`
	CustomerID    string        `json:"customerId"`
	Status        string        `json:"status"`
	Lines         []Line        `json:"lines"`
	Charges       []ChargeDTO   `json:"charges"`
	DiscountType  string        `json:"discountType,omitempty"`
	DiscountValue string        `json:"discountValue"`
	TaxRate       string        `json:"taxRate"`
	Totals        TotalsDTO     `json:"totals"`
	Overrides     *OverridesDTO `json:"overrides,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	SentAt        *string       `json:"sentAt,omitempty"`
	ExpiresAt     *string       `json:"expiresAt,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
}

// Summary is the compact listing payload.
type Summary struct {
	ID          string  `json:"id"`
	Number      string  `json:"number"`
	CustomerID  string  `json:"customerId"`
	Status      string  `json:"status"`
	TotalAmount string  `json:"totalAmount"`
	ExpiresAt   *string `json:"expiresAt,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

func toDetail(est store.Estimate, lines []store.EstimateLine, charges []store.EstimateCharge) Detail {
	detail := Detail{
		ID:            est.ID.String(),
		Number:        est.Number,
		CustomerID:    est.CustomerID.String(),
		Status:        est.Status,
		DiscountType:  est.DiscountType,
		DiscountValue: est.DiscountValue.String(),
		TaxRate:       est.TaxRate.String(),
		Totals: TotalsDTO{
			Subtotal:        est.Subtotal.StringFixed(2),
			DiscountAmount:  est.DiscountAmount.StringFixed(2),
			TaxableSubtotal: est.TaxableSubtotal.StringFixed(2),
			TaxAmount:       est.TaxAmount.StringFixed(2),
			ShippingAmount:  est.ShippingAmount.StringFixed(2),
			TotalAmount:     est.TotalAmount.StringFixed(2),
		},
		Notes:     est.Notes,
		SentAt:    formatTime(est.SentAt),
		ExpiresAt: formatTime(est.ExpiresAt),
		CreatedAt: est.CreatedAt.Format(time.RFC3339),
		UpdatedAt: est.UpdatedAt.Format(time.RFC3339),
	}
	if est.OverrideSubtotal != nil || est.OverrideTaxAmount != nil || est.OverrideTotalAmount != nil {
		overrides := &OverridesDTO{}
		if est.OverrideSubtotal != nil {
			v := est.OverrideSubtotal.StringFixed(2)
			overrides.Subtotal = &v
		}
		if est.OverrideTaxAmount != nil {
			v := est.OverrideTaxAmount.StringFixed(2)
			overrides.TaxAmount = &v
		}
		if est.OverrideTotalAmount != nil {
			v := est.OverrideTotalAmount.StringFixed(2)
			overrides.TotalAmount = &v
		}
		detail.Overrides = overrides
	}
	detail.Lines = make([]Line, 0, len(lines))
	for _, line := range lines {
		item := Line{
			ID:          line.ID.String(),
			Description: line.Description,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.StringFixed(2),
			LineTotal:   line.LineTotal.StringFixed(2),
			Taxable:     line.Taxable,
			Position:    line.Position,
		}
		if line.ServiceID != nil {
			id := line.ServiceID.String()
			item.ServiceID = &id
		}
		detail.Lines = append(detail.Lines, item)
	}
	detail.Charges = make([]ChargeDTO, 0, len(charges))
	for _, charge := range charges {
		detail.Charges = append(detail.Charges, ChargeDTO{
			ID:          charge.ID.String(),
			Kind:        charge.Kind,
			Description: charge.Description,
			Amount:      charge.Amount.StringFixed(2),
		})
	}
	return detail
}

func toSummary(est store.Estimate) Summary {
	return Summary{
		ID:          est.ID.String(),
		Number:      est.Number,
		CustomerID:  est.CustomerID.String(),
		Status:      est.Status,
		TotalAmount: est.TotalAmount.StringFixed(2),
		ExpiresAt:   formatTime(est.ExpiresAt),
		CreatedAt:   est.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}
