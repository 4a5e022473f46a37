// Package estimate owns the estimate aggregate: lines, charges, pricing
// inputs, cached totals and the lifecycle that locks rates once an estimate
// leaves draft.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/events"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/money"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/pricing"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// Querier captures the database methods required by the estimate service.
// WithTx rebinds the same methods to a transaction.
type Querier interface {
	WithTx(tx pgx.Tx) Querier

	CreateEstimate(ctx context.Context, arg store.CreateEstimateParams) (store.Estimate, error)
	GetEstimate(ctx context.Context, id uuid.UUID) (store.Estimate, error)
	GetEstimateForUpdate(ctx context.Context, id uuid.UUID) (store.Estimate, error)
	ListEstimates(ctx context.Context, arg store.ListEstimatesParams) ([]store.Estimate, error)
	CountEstimates(ctx context.Context, arg store.ListEstimatesParams) (int64, error)
	UpdateEstimatePricing(ctx context.Context, id uuid.UUID, arg store.UpdateEstimatePricingParams) (store.Estimate, error)
	UpdateEstimateTotals(ctx context.Context, id uuid.UUID, arg store.EstimateTotals) error
	UpdateEstimateStatus(ctx context.Context, id uuid.UUID, status string, sentAt, expiresAt *time.Time) (store.Estimate, error)
	UpdateEstimateNotes(ctx context.Context, id uuid.UUID, notes string) error
	ListExpirableEstimates(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)

	InsertLine(ctx context.Context, arg store.InsertLineParams) (store.EstimateLine, error)
	GetLine(ctx context.Context, id uuid.UUID) (store.EstimateLine, error)
	ListLines(ctx context.Context, estimateID uuid.UUID) ([]store.EstimateLine, error)
	UpdateLine(ctx context.Context, id uuid.UUID, arg store.UpdateLineParams) (store.EstimateLine, error)
	UpdateLineTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	DeleteLine(ctx context.Context, id uuid.UUID) error
	NextLinePosition(ctx context.Context, estimateID uuid.UUID) (int32, error)
	SetLinePositions(ctx context.Context, estimateID uuid.UUID, ids []uuid.UUID) error
	RenumberLines(ctx context.Context, estimateID uuid.UUID) error

	InsertCharge(ctx context.Context, arg store.InsertChargeParams) (store.EstimateCharge, error)
	GetCharge(ctx context.Context, id uuid.UUID) (store.EstimateCharge, error)
	ListCharges(ctx context.Context, estimateID uuid.UUID) ([]store.EstimateCharge, error)
	UpdateCharge(ctx context.Context, id uuid.UUID, kind, description string, amount decimal.Decimal) (store.EstimateCharge, error)
	DeleteCharge(ctx context.Context, id uuid.UUID) error

	GetCustomer(ctx context.Context, id uuid.UUID) (store.Customer, error)
	GetService(ctx context.Context, id uuid.UUID) (store.Service, error)
	ListCandidateRules(ctx context.Context, customerID, serviceID uuid.UUID) ([]store.PriceRule, error)
}

type storeQuerier struct {
	*store.Store
}

func (q storeQuerier) WithTx(tx pgx.Tx) Querier {
	return storeQuerier{q.Store.WithTx(tx)}
}

// NewQuerier adapts the concrete store to the service's Querier interface.
func NewQuerier(st *store.Store) Querier {
	return storeQuerier{st}
}

// Service orchestrates estimate mutations. Every financial edit recomputes
// and persists the full totals chain before returning.
type Service struct {
	Q              Querier
	Pool           *pgxpool.Pool
	Events         *events.Bus
	Now            func() time.Time
	NumberPrefix   string
	DefaultTaxRate decimal.Decimal
	ValidityDays   int
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// inTx runs fn against a transaction-bound querier when a pool is configured,
// and directly against Q otherwise (tests stub Q without a database).
func (s *Service) inTx(ctx context.Context, fn func(q Querier) error) error {
	if s.Pool == nil {
		return fn(s.Q)
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(s.Q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateInput carries the fields accepted when opening an estimate.
type CreateInput struct {
	CustomerID uuid.UUID
	Notes      string
	TaxRate    *decimal.Decimal
}

// Create opens a draft estimate for the customer.
func (s *Service) Create(ctx context.Context, in CreateInput) (Detail, error) {
	if _, err := s.Q.GetCustomer(ctx, in.CustomerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, notFound("customer not found", err)
		}
		return Detail{}, fmt.Errorf("get customer: %w", err)
	}
	taxRate := s.DefaultTaxRate
	if in.TaxRate != nil {
		if in.TaxRate.IsNegative() {
			return Detail{}, badRequest("taxRate", "tax rate cannot be negative", pricing.ErrInvalidTaxRate)
		}
		taxRate = *in.TaxRate
	}
	est, err := s.Q.CreateEstimate(ctx, store.CreateEstimateParams{
		CustomerID:   in.CustomerID,
		NumberPrefix: s.numberPrefix(),
		TaxRate:      taxRate,
		Notes:        strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return Detail{}, fmt.Errorf("create estimate: %w", err)
	}
	s.emit(ctx, events.TopicEstimateCreated, est)
	return s.assemble(ctx, s.Q, est)
}

func (s *Service) numberPrefix() string {
	if s.NumberPrefix != "" {
		return s.NumberPrefix
	}
	return "EST"
}

// Get returns the full estimate aggregate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	est, err := s.Q.GetEstimate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, notFound("estimate not found", err)
		}
		return Detail{}, fmt.Errorf("get estimate: %w", err)
	}
	return s.assemble(ctx, s.Q, est)
}

// ListParams filters the estimate listing.
type ListParams struct {
	CustomerID *uuid.UUID
	Status     string
	Page       int
	PerPage    int
}

// ListResult carries summaries plus pagination metadata.
type ListResult struct {
	Items []Summary
	Total int64
}

// List returns estimate summaries newest first.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	if params.Status != "" && !pricing.Status(params.Status).Valid() {
		return ListResult{}, badRequest("status", "unknown status", nil)
	}
	arg := store.ListEstimatesParams{
		CustomerID: params.CustomerID,
		Status:     params.Status,
		Limit:      int32(params.PerPage),
		Offset:     int32((params.Page - 1) * params.PerPage),
	}
	total, err := s.Q.CountEstimates(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("count estimates: %w", err)
	}
	rows, err := s.Q.ListEstimates(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("list estimates: %w", err)
	}
	items := make([]Summary, 0, len(rows))
	for _, row := range rows {
		items = append(items, toSummary(row))
	}
	return ListResult{Items: items, Total: total}, nil
}

// LineInput carries the fields accepted for a line item. When ServiceID is
// set and UnitPrice is nil the effective rate is resolved from the catalog
// base rate and the customer's price rules.
type LineInput struct {
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   *decimal.Decimal
	Taxable     *bool
}

// AddLine appends a line item and recomputes the totals chain.
func (s *Service) AddLine(ctx context.Context, estimateID uuid.UUID, in LineInput) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		params, err := s.resolveLine(ctx, q, est, in)
		if err != nil {
			return err
		}
		pos, err := q.NextLinePosition(ctx, estimateID)
		if err != nil {
			return fmt.Errorf("next line position: %w", err)
		}
		params.Position = pos
		if _, err := q.InsertLine(ctx, params); err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "line_added")
		return err
	})
	return detail, err
}

// UpdateLine replaces a line item's editable fields and recomputes.
func (s *Service) UpdateLine(ctx context.Context, estimateID, lineID uuid.UUID, in LineInput) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		line, err := q.GetLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("line item not found", err)
			}
			return fmt.Errorf("get line: %w", err)
		}
		if line.EstimateID != estimateID {
			return notFound("line item not found", nil)
		}
		params, err := s.resolveLine(ctx, q, est, in)
		if err != nil {
			return err
		}
		if _, err := q.UpdateLine(ctx, lineID, store.UpdateLineParams{
			ServiceID:   params.ServiceID,
			Description: params.Description,
			Quantity:    params.Quantity,
			UnitPrice:   params.UnitPrice,
			LineTotal:   params.LineTotal,
			Taxable:     params.Taxable,
		}); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "line_updated")
		return err
	})
	return detail, err
}

// RemoveLine deletes a line item, closes the position gap and recomputes.
func (s *Service) RemoveLine(ctx context.Context, estimateID, lineID uuid.UUID) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		line, err := q.GetLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("line item not found", err)
			}
			return fmt.Errorf("get line: %w", err)
		}
		if line.EstimateID != estimateID {
			return notFound("line item not found", nil)
		}
		if err := q.DeleteLine(ctx, lineID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
		if err := q.RenumberLines(ctx, estimateID); err != nil {
			return fmt.Errorf("renumber lines: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "line_removed")
		return err
	})
	return detail, err
}

// ReorderLines renumbers the estimate's lines to the given ID order. The set
// must match the current lines exactly.
func (s *Service) ReorderLines(ctx context.Context, estimateID uuid.UUID, ids []uuid.UUID) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		current, err := q.ListLines(ctx, estimateID)
		if err != nil {
			return fmt.Errorf("list lines: %w", err)
		}
		if len(ids) != len(current) {
			return badRequest("lineIds", "line id set does not match the estimate", nil)
		}
		seen := make(map[uuid.UUID]struct{}, len(current))
		for _, line := range current {
			seen[line.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				return badRequest("lineIds", "line id set does not match the estimate", nil)
			}
			delete(seen, id)
		}
		if err := q.SetLinePositions(ctx, estimateID, ids); err != nil {
			return fmt.Errorf("set line positions: %w", err)
		}
		detail, err = s.assemble(ctx, q, est)
		return err
	})
	return detail, err
}

// ChargeInput carries the fields accepted for a charge. Negative amounts are
// credits.
type ChargeInput struct {
	Kind        string
	Description string
	Amount      decimal.Decimal
}

// AddCharge appends a charge or credit and recomputes.
func (s *Service) AddCharge(ctx context.Context, estimateID uuid.UUID, in ChargeInput) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		if !pricing.ChargeKind(in.Kind).Valid() {
			return badRequest("kind", "unknown charge kind", nil)
		}
		if _, err := q.InsertCharge(ctx, store.InsertChargeParams{
			EstimateID:  estimateID,
			Kind:        in.Kind,
			Description: in.Description,
			Amount:      money.Round2(in.Amount),
		}); err != nil {
			return fmt.Errorf("insert charge: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "charge_added")
		return err
	})
	return detail, err
}

// UpdateCharge replaces a charge and recomputes.
func (s *Service) UpdateCharge(ctx context.Context, estimateID, chargeID uuid.UUID, in ChargeInput) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		charge, err := q.GetCharge(ctx, chargeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("charge not found", err)
			}
			return fmt.Errorf("get charge: %w", err)
		}
		if charge.EstimateID != estimateID {
			return notFound("charge not found", nil)
		}
		if !pricing.ChargeKind(in.Kind).Valid() {
			return badRequest("kind", "unknown charge kind", nil)
		}
		if _, err := q.UpdateCharge(ctx, chargeID, in.Kind, in.Description, money.Round2(in.Amount)); err != nil {
			return fmt.Errorf("update charge: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "charge_updated")
		return err
	})
	return detail, err
}

// RemoveCharge deletes a charge and recomputes.
func (s *Service) RemoveCharge(ctx context.Context, estimateID, chargeID uuid.UUID) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		charge, err := q.GetCharge(ctx, chargeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("charge not found", err)
			}
			return fmt.Errorf("get charge: %w", err)
		}
		if charge.EstimateID != estimateID {
			return notFound("charge not found", nil)
		}
		if err := q.DeleteCharge(ctx, chargeID); err != nil {
			return fmt.Errorf("delete charge: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "charge_removed")
		return err
	})
	return detail, err
}

// PricingInput carries the estimate-level pricing fields.
type PricingInput struct {
	DiscountType        string
	DiscountValue       decimal.Decimal
	TaxRate             decimal.Decimal
	ShippingAmount      decimal.Decimal
	OverrideSubtotal    *decimal.Decimal
	OverrideTaxAmount   *decimal.Decimal
	OverrideTotalAmount *decimal.Decimal
}

// UpdatePricing replaces discount, tax rate, shipping and overrides, then
// recomputes. Validation happens inside the totals composer so a bad input
// never reaches the row.
func (s *Service) UpdatePricing(ctx context.Context, estimateID uuid.UUID, in PricingInput) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.lockDraft(ctx, q, estimateID)
		if err != nil {
			return err
		}
		est.DiscountType = in.DiscountType
		est.DiscountValue = in.DiscountValue
		est.TaxRate = in.TaxRate
		est.ShippingAmount = in.ShippingAmount
		est.OverrideSubtotal = in.OverrideSubtotal
		est.OverrideTaxAmount = in.OverrideTaxAmount
		est.OverrideTotalAmount = in.OverrideTotalAmount

		// Dry-run the composition first so invalid pricing never persists.
		if _, _, _, err := s.compose(ctx, q, est); err != nil {
			return err
		}
		if _, err := q.UpdateEstimatePricing(ctx, estimateID, store.UpdateEstimatePricingParams{
			DiscountType:        in.DiscountType,
			DiscountValue:       in.DiscountValue,
			TaxRate:             in.TaxRate,
			ShippingAmount:      in.ShippingAmount,
			OverrideSubtotal:    in.OverrideSubtotal,
			OverrideTaxAmount:   in.OverrideTaxAmount,
			OverrideTotalAmount: in.OverrideTotalAmount,
		}); err != nil {
			return fmt.Errorf("update pricing: %w", err)
		}
		detail, err = s.recompute(ctx, q, est, "pricing_updated")
		return err
	})
	return detail, err
}

// UpdateNotes replaces the free-form notes. Notes are not financial and stay
// editable after the rate lock engages.
func (s *Service) UpdateNotes(ctx context.Context, estimateID uuid.UUID, notes string) (Detail, error) {
	est, err := s.Q.GetEstimate(ctx, estimateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, notFound("estimate not found", err)
		}
		return Detail{}, fmt.Errorf("get estimate: %w", err)
	}
	if err := s.Q.UpdateEstimateNotes(ctx, estimateID, notes); err != nil {
		return Detail{}, fmt.Errorf("update notes: %w", err)
	}
	est.Notes = notes
	return s.assemble(ctx, s.Q, est)
}

// lockDraft loads the estimate with a row lock and enforces the rate lock.
func (s *Service) lockDraft(ctx context.Context, q Querier, id uuid.UUID) (store.Estimate, error) {
	est, err := q.GetEstimateForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Estimate{}, notFound("estimate not found", err)
		}
		return store.Estimate{}, fmt.Errorf("get estimate: %w", err)
	}
	guard := pricing.Guard{Status: pricing.Status(est.Status)}
	if err := guard.CheckRateMutation(); err != nil {
		obs.IncLockRejection()
		return store.Estimate{}, &common.AppError{
			Code:       "ESTIMATE_LOCKED",
			Message:    fmt.Sprintf("estimate %s is %s; financial fields are locked", est.Number, est.Status),
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	}
	return est, nil
}

// resolveLine turns a LineInput into insertable params, resolving the unit
// price from catalog and price rules when the caller did not pin one.
func (s *Service) resolveLine(ctx context.Context, q Querier, est store.Estimate, in LineInput) (store.InsertLineParams, error) {
	if in.Quantity.IsNegative() {
		return store.InsertLineParams{}, badRequest("quantity", "quantity cannot be negative", pricing.ErrInvalidLineItem)
	}
	params := store.InsertLineParams{
		EstimateID:  est.ID,
		ServiceID:   in.ServiceID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		Taxable:     true,
	}
	switch {
	case in.ServiceID != nil:
		svc, err := q.GetService(ctx, *in.ServiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.InsertLineParams{}, notFound("service not found", err)
			}
			return store.InsertLineParams{}, fmt.Errorf("get service: %w", err)
		}
		if params.Description == "" {
			params.Description = svc.Name
		}
		params.Taxable = svc.Taxable
		if in.UnitPrice != nil {
			params.UnitPrice = *in.UnitPrice
		} else {
			customer, err := q.GetCustomer(ctx, est.CustomerID)
			if err != nil {
				return store.InsertLineParams{}, fmt.Errorf("get customer: %w", err)
			}
			candidates, err := q.ListCandidateRules(ctx, est.CustomerID, svc.ID)
			if err != nil {
				return store.InsertLineParams{}, fmt.Errorf("list candidate rules: %w", err)
			}
			resolution, err := pricing.ResolveRate(pricing.RateContext{
				CustomerID:      customer.ID,
				CustomerType:    customer.CustomerType,
				ServiceID:       svc.ID,
				ServiceCategory: svc.Category,
				Now:             s.now(),
			}, svc.BaseRate, toPricingRules(candidates))
			if err != nil {
				obs.IncRateResolution("error")
				return store.InsertLineParams{}, err
			}
			if resolution.RuleID != nil {
				obs.IncRateResolution("rule")
			} else {
				obs.IncRateResolution("base")
			}
			params.UnitPrice = resolution.Rate
		}
	case in.UnitPrice != nil:
		if params.Description == "" {
			return store.InsertLineParams{}, badRequest("description", "description is required for custom lines", nil)
		}
		params.UnitPrice = *in.UnitPrice
	default:
		return store.InsertLineParams{}, badRequest("unitPrice", "unitPrice is required when no service is referenced", nil)
	}
	if params.UnitPrice.IsNegative() {
		return store.InsertLineParams{}, badRequest("unitPrice", "unit price cannot be negative", pricing.ErrInvalidLineItem)
	}
	if in.Taxable != nil {
		params.Taxable = *in.Taxable
	}
	params.UnitPrice = money.Round2(params.UnitPrice)
	params.LineTotal = money.Round2(params.Quantity.Mul(params.UnitPrice))
	return params, nil
}

// compose loads the aggregate and runs the totals chain without persisting.
func (s *Service) compose(ctx context.Context, q Querier, est store.Estimate) (pricing.Totals, []store.EstimateLine, []store.EstimateCharge, error) {
	lines, err := q.ListLines(ctx, est.ID)
	if err != nil {
		return pricing.Totals{}, nil, nil, fmt.Errorf("list lines: %w", err)
	}
	charges, err := q.ListCharges(ctx, est.ID)
	if err != nil {
		return pricing.Totals{}, nil, nil, fmt.Errorf("list charges: %w", err)
	}
	totals, err := pricing.ComputeTotals(toTotalsInput(est, lines, charges))
	if err != nil {
		return pricing.Totals{}, nil, nil, composeError(err)
	}
	return totals, lines, charges, nil
}

// recompute runs the totals chain and persists line totals plus the cached
// estimate columns.
func (s *Service) recompute(ctx context.Context, q Querier, est store.Estimate, trigger string) (Detail, error) {
	totals, lines, charges, err := s.compose(ctx, q, est)
	if err != nil {
		return Detail{}, err
	}
	for i, line := range totals.Lines {
		if !line.LineTotal.Equal(lines[i].LineTotal) {
			if err := q.UpdateLineTotal(ctx, line.ID, line.LineTotal); err != nil {
				return Detail{}, fmt.Errorf("update line total: %w", err)
			}
			lines[i].LineTotal = line.LineTotal
		}
	}
	if err := q.UpdateEstimateTotals(ctx, est.ID, store.EstimateTotals{
		Subtotal:        totals.Subtotal,
		DiscountAmount:  totals.DiscountAmount,
		TaxableSubtotal: totals.TaxableSubtotal,
		TaxAmount:       totals.TaxAmount,
		TotalAmount:     totals.TotalAmount,
	}); err != nil {
		return Detail{}, fmt.Errorf("update estimate totals: %w", err)
	}
	obs.IncTotalsRecompute(trigger)

	est.Subtotal = totals.Subtotal
	est.DiscountAmount = totals.DiscountAmount
	est.TaxableSubtotal = totals.TaxableSubtotal
	est.TaxAmount = totals.TaxAmount
	est.TotalAmount = totals.TotalAmount
	// Lines were reloaded inside compose; reuse them for the response.
	return toDetail(est, lines, charges), nil
}

// assemble builds the aggregate response from the current rows without
// recomputing.
func (s *Service) assemble(ctx context.Context, q Querier, est store.Estimate) (Detail, error) {
	lines, err := q.ListLines(ctx, est.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("list lines: %w", err)
	}
	charges, err := q.ListCharges(ctx, est.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("list charges: %w", err)
	}
	return toDetail(est, lines, charges), nil
}

func (s *Service) emit(ctx context.Context, topic string, est store.Estimate) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, est.ID, map[string]any{
		"estimateId": est.ID.String(),
		"number":     est.Number,
		"customerId": est.CustomerID.String(),
		"status":     est.Status,
		"total":      est.TotalAmount.StringFixed(2),
	})
}

func toTotalsInput(est store.Estimate, lines []store.EstimateLine, charges []store.EstimateCharge) pricing.TotalsInput {
	in := pricing.TotalsInput{
		Discount: pricing.Discount{Type: pricing.DiscountType(est.DiscountType), Value: est.DiscountValue},
		TaxRate:  est.TaxRate,
		Shipping: est.ShippingAmount,
	}
	if est.OverrideSubtotal != nil || est.OverrideTaxAmount != nil || est.OverrideTotalAmount != nil {
		in.Override = &pricing.Override{
			Subtotal:    est.OverrideSubtotal,
			TaxAmount:   est.OverrideTaxAmount,
			TotalAmount: est.OverrideTotalAmount,
		}
	}
	in.Lines = make([]pricing.LineItem, 0, len(lines))
	for _, line := range lines {
		in.Lines = append(in.Lines, pricing.LineItem{
			ID:          line.ID,
			ServiceID:   line.ServiceID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Taxable:     line.Taxable,
			Position:    line.Position,
		})
	}
	in.Charges = make([]pricing.Charge, 0, len(charges))
	for _, charge := range charges {
		in.Charges = append(in.Charges, pricing.Charge{
			ID:          charge.ID,
			Kind:        pricing.ChargeKind(charge.Kind),
			Amount:      charge.Amount,
			Description: charge.Description,
		})
	}
	return in
}

func toPricingRules(rows []store.PriceRule) []pricing.PriceRule {
	out := make([]pricing.PriceRule, 0, len(rows))
	for _, row := range rows {
		out = append(out, pricing.PriceRule{
			ID:              row.ID,
			CustomerID:      row.CustomerID,
			CustomerType:    row.CustomerType,
			ServiceID:       row.ServiceID,
			ServiceCategory: row.ServiceCategory,
			Kind:            pricing.AdjustmentKind(row.Kind),
			Value:           row.Value,
			Priority:        row.Priority,
			ValidFrom:       row.ValidFrom,
			ValidTo:         row.ValidTo,
			Active:          row.Active,
		})
	}
	return out
}

func composeError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrInvalidLineItem):
		return badRequest("lines", err.Error(), err)
	case errors.Is(err, pricing.ErrInvalidDiscount):
		return badRequest("discount", err.Error(), err)
	case errors.Is(err, pricing.ErrInvalidTaxRate):
		return badRequest("taxRate", err.Error(), err)
	}
	return err
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}
