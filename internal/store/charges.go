package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const chargeColumns = `id, estimate_id, kind, description, amount, created_at, updated_at`

func scanCharge(row scanner) (EstimateCharge, error) {
	var c EstimateCharge
	err := row.Scan(&c.ID, &c.EstimateID, &c.Kind, &c.Description, &c.Amount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// InsertChargeParams carries the writable charge fields. Amount is negative
// for credits.
type InsertChargeParams struct {
	EstimateID  uuid.UUID
	Kind        string
	Description string
	Amount      decimal.Decimal
}

// InsertCharge adds a charge or credit to an estimate.
func (s *Store) InsertCharge(ctx context.Context, arg InsertChargeParams) (EstimateCharge, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO estimate_charges (estimate_id, kind, description, amount)
VALUES ($1, $2, $3, $4)
RETURNING `+chargeColumns,
		arg.EstimateID, arg.Kind, arg.Description, arg.Amount)
	return scanCharge(row)
}

// GetCharge fetches a charge by ID.
func (s *Store) GetCharge(ctx context.Context, id uuid.UUID) (EstimateCharge, error) {
	row := s.db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM estimate_charges WHERE id = $1`, id)
	return scanCharge(row)
}

// ListCharges returns the charges of an estimate oldest first.
func (s *Store) ListCharges(ctx context.Context, estimateID uuid.UUID) ([]EstimateCharge, error) {
	rows, err := s.db.Query(ctx, `SELECT `+chargeColumns+` FROM estimate_charges WHERE estimate_id = $1 ORDER BY created_at, id`, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	charges := make([]EstimateCharge, 0, 4)
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// UpdateCharge replaces the editable fields of a charge.
func (s *Store) UpdateCharge(ctx context.Context, id uuid.UUID, kind, description string, amount decimal.Decimal) (EstimateCharge, error) {
	row := s.db.QueryRow(ctx, `UPDATE estimate_charges
SET kind = $2, description = $3, amount = $4, updated_at = now()
WHERE id = $1
RETURNING `+chargeColumns,
		id, kind, description, amount)
	return scanCharge(row)
}

// DeleteCharge removes a charge.
func (s *Store) DeleteCharge(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM estimate_charges WHERE id = $1`, id)
	return err
}
