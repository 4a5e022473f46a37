package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const lineColumns = `id, estimate_id, service_id, description, quantity, unit_price, line_total, taxable, position, created_at, updated_at`

func scanLine(row scanner) (EstimateLine, error) {
	var l EstimateLine
	err := row.Scan(&l.ID, &l.EstimateID, &l.ServiceID, &l.Description, &l.Quantity, &l.UnitPrice,
		&l.LineTotal, &l.Taxable, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// InsertLineParams carries the writable line item fields. Position is
// assigned by the caller; the table enforces uniqueness per estimate.
type InsertLineParams struct {
	EstimateID  uuid.UUID
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Taxable     bool
	Position    int32
}

// InsertLine appends a line item to an estimate.
func (s *Store) InsertLine(ctx context.Context, arg InsertLineParams) (EstimateLine, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO estimate_lines (estimate_id, service_id, description, quantity, unit_price, line_total, taxable, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+lineColumns,
		arg.EstimateID, arg.ServiceID, arg.Description, arg.Quantity, arg.UnitPrice, arg.LineTotal, arg.Taxable, arg.Position)
	return scanLine(row)
}

// GetLine fetches a line item by ID.
func (s *Store) GetLine(ctx context.Context, id uuid.UUID) (EstimateLine, error) {
	row := s.db.QueryRow(ctx, `SELECT `+lineColumns+` FROM estimate_lines WHERE id = $1`, id)
	return scanLine(row)
}

// ListLines returns the line items of an estimate in display order.
func (s *Store) ListLines(ctx context.Context, estimateID uuid.UUID) ([]EstimateLine, error) {
	rows, err := s.db.Query(ctx, `SELECT `+lineColumns+` FROM estimate_lines WHERE estimate_id = $1 ORDER BY position`, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]EstimateLine, 0, 8)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// UpdateLineParams carries the editable line item fields.
type UpdateLineParams struct {
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Taxable     bool
}

// UpdateLine replaces the editable fields of a line item.
func (s *Store) UpdateLine(ctx context.Context, id uuid.UUID, arg UpdateLineParams) (EstimateLine, error) {
	row := s.db.QueryRow(ctx, `UPDATE estimate_lines
SET service_id = $2, description = $3, quantity = $4, unit_price = $5, line_total = $6, taxable = $7, updated_at = now()
WHERE id = $1
RETURNING `+lineColumns,
		id, arg.ServiceID, arg.Description, arg.Quantity, arg.UnitPrice, arg.LineTotal, arg.Taxable)
	return scanLine(row)
}

// UpdateLineTotal writes the recomputed extended total of one line.
func (s *Store) UpdateLineTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	_, err := s.db.Exec(ctx, `UPDATE estimate_lines SET line_total = $2, updated_at = now() WHERE id = $1`, id, total)
	return err
}

// DeleteLine removes a line item.
func (s *Store) DeleteLine(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM estimate_lines WHERE id = $1`, id)
	return err
}

// NextLinePosition returns the position for a line appended to the estimate.
func (s *Store) NextLinePosition(ctx context.Context, estimateID uuid.UUID) (int32, error) {
	var next int32
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM estimate_lines WHERE estimate_id = $1`, estimateID).Scan(&next)
	return next, err
}

// SetLinePositions renumbers an estimate's lines to match the given ID
// order, 1-based. IDs not belonging to the estimate are ignored.
func (s *Store) SetLinePositions(ctx context.Context, estimateID uuid.UUID, ids []uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE estimate_lines el
SET position = ord.pos, updated_at = now()
FROM (SELECT t.id, t.ord AS pos FROM unnest($2::uuid[]) WITH ORDINALITY AS t(id, ord)) ord
WHERE el.id = ord.id AND el.estimate_id = $1`,
		estimateID, ids)
	return err
}

// RenumberLines compacts an estimate's positions to a dense 1..n run
// preserving the current order.
func (s *Store) RenumberLines(ctx context.Context, estimateID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE estimate_lines el
SET position = ranked.pos, updated_at = now()
FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position, created_at) AS pos
      FROM estimate_lines WHERE estimate_id = $1) ranked
WHERE el.id = ranked.id`,
		estimateID)
	return err
}
