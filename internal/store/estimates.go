package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const estimateColumns = `id, number, customer_id, status, discount_type, discount_value, tax_rate, shipping_amount,
subtotal, discount_amount, taxable_subtotal, tax_amount, total_amount,
override_subtotal, override_tax_amount, override_total_amount,
notes, sent_at, expires_at, created_at, updated_at`

func scanEstimate(row scanner) (Estimate, error) {
	var e Estimate
	var overrideSubtotal, overrideTax, overrideTotal decimal.NullDecimal
	err := row.Scan(&e.ID, &e.Number, &e.CustomerID, &e.Status, &e.DiscountType, &e.DiscountValue,
		&e.TaxRate, &e.ShippingAmount,
		&e.Subtotal, &e.DiscountAmount, &e.TaxableSubtotal, &e.TaxAmount, &e.TotalAmount,
		&overrideSubtotal, &overrideTax, &overrideTotal,
		&e.Notes, &e.SentAt, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Estimate{}, err
	}
	if overrideSubtotal.Valid {
		e.OverrideSubtotal = &overrideSubtotal.Decimal
	}
	if overrideTax.Valid {
		e.OverrideTaxAmount = &overrideTax.Decimal
	}
	if overrideTotal.Valid {
		e.OverrideTotalAmount = &overrideTotal.Decimal
	}
	return e, nil
}

// CreateEstimateParams carries the fields set when an estimate is opened.
// NumberPrefix is combined with the shared sequence to mint the estimate
// number, e.g. EST-000042.
type CreateEstimateParams struct {
	CustomerID   uuid.UUID
	NumberPrefix string
	TaxRate      decimal.Decimal
	Notes        string
	ExpiresAt    *time.Time
}

// CreateEstimate inserts a draft estimate with a freshly minted number.
func (s *Store) CreateEstimate(ctx context.Context, arg CreateEstimateParams) (Estimate, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO estimates (number, customer_id, status, tax_rate, notes, expires_at)
VALUES ($1 || '-' || lpad(nextval('estimate_number_seq')::text, 6, '0'), $2, 'draft', $3, $4, $5)
RETURNING `+estimateColumns,
		arg.NumberPrefix, arg.CustomerID, arg.TaxRate, arg.Notes, arg.ExpiresAt)
	return scanEstimate(row)
}

// GetEstimate fetches an estimate by ID.
func (s *Store) GetEstimate(ctx context.Context, id uuid.UUID) (Estimate, error) {
	row := s.db.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1`, id)
	return scanEstimate(row)
}

// GetEstimateForUpdate fetches an estimate with a row lock. Call inside a
// transaction before mutating the aggregate.
func (s *Store) GetEstimateForUpdate(ctx context.Context, id uuid.UUID) (Estimate, error) {
	row := s.db.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1 FOR UPDATE`, id)
	return scanEstimate(row)
}

// ListEstimatesParams filters the estimate listing.
type ListEstimatesParams struct {
	CustomerID *uuid.UUID
	Status     string
	Limit      int32
	Offset     int32
}

// ListEstimates returns estimates newest first.
func (s *Store) ListEstimates(ctx context.Context, arg ListEstimatesParams) ([]Estimate, error) {
	rows, err := s.db.Query(ctx, `SELECT `+estimateColumns+` FROM estimates
WHERE ($1::uuid IS NULL OR customer_id = $1) AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`,
		arg.CustomerID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make([]Estimate, 0, arg.Limit)
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

// CountEstimates reports how many estimates match the listing filters.
func (s *Store) CountEstimates(ctx context.Context, arg ListEstimatesParams) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM estimates
WHERE ($1::uuid IS NULL OR customer_id = $1) AND ($2 = '' OR status = $2)`,
		arg.CustomerID, arg.Status).Scan(&total)
	return total, err
}

// UpdateEstimatePricingParams carries the pricing inputs an operator can edit
// while an estimate is still a draft.
type UpdateEstimatePricingParams struct {
	DiscountType        string
	DiscountValue       decimal.Decimal
	TaxRate             decimal.Decimal
	ShippingAmount      decimal.Decimal
	OverrideSubtotal    *decimal.Decimal
	OverrideTaxAmount   *decimal.Decimal
	OverrideTotalAmount *decimal.Decimal
}

// UpdateEstimatePricing replaces the pricing inputs of an estimate.
func (s *Store) UpdateEstimatePricing(ctx context.Context, id uuid.UUID, arg UpdateEstimatePricingParams) (Estimate, error) {
	row := s.db.QueryRow(ctx, `UPDATE estimates
SET discount_type = $2, discount_value = $3, tax_rate = $4, shipping_amount = $5,
    override_subtotal = $6, override_tax_amount = $7, override_total_amount = $8, updated_at = now()
WHERE id = $1
RETURNING `+estimateColumns,
		id, arg.DiscountType, arg.DiscountValue, arg.TaxRate, arg.ShippingAmount,
		arg.OverrideSubtotal, arg.OverrideTaxAmount, arg.OverrideTotalAmount)
	return scanEstimate(row)
}

// EstimateTotals carries the computed monetary columns cached on the row.
type EstimateTotals struct {
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxableSubtotal decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
}

// UpdateEstimateTotals writes the recomputed totals back onto the estimate.
func (s *Store) UpdateEstimateTotals(ctx context.Context, id uuid.UUID, arg EstimateTotals) error {
	_, err := s.db.Exec(ctx, `UPDATE estimates
SET subtotal = $2, discount_amount = $3, taxable_subtotal = $4, tax_amount = $5, total_amount = $6, updated_at = now()
WHERE id = $1`,
		id, arg.Subtotal, arg.DiscountAmount, arg.TaxableSubtotal, arg.TaxAmount, arg.TotalAmount)
	return err
}

// UpdateEstimateStatus moves an estimate to the given status, stamping the
// send and expiry timestamps when provided.
func (s *Store) UpdateEstimateStatus(ctx context.Context, id uuid.UUID, status string, sentAt, expiresAt *time.Time) (Estimate, error) {
	row := s.db.QueryRow(ctx, `UPDATE estimates
SET status = $2,
    sent_at = COALESCE($3, sent_at),
    expires_at = COALESCE($4, expires_at),
    updated_at = now()
WHERE id = $1
RETURNING `+estimateColumns,
		id, status, sentAt, expiresAt)
	return scanEstimate(row)
}

// UpdateEstimateNotes replaces the free-form notes.
func (s *Store) UpdateEstimateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	_, err := s.db.Exec(ctx, `UPDATE estimates SET notes = $2, updated_at = now() WHERE id = $1`, id, notes)
	return err
}

// ListExpirableEstimates returns the IDs of sent estimates whose expiry
// timestamp has passed.
func (s *Store) ListExpirableEstimates(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM estimates
WHERE status = 'sent' AND expires_at IS NOT NULL AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
