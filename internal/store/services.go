package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const serviceColumns = `id, name, category, pricing_unit, base_rate, taxable, active, created_at, updated_at`

func scanService(row scanner) (Service, error) {
	var sv Service
	err := row.Scan(&sv.ID, &sv.Name, &sv.Category, &sv.PricingUnit, &sv.BaseRate, &sv.Taxable, &sv.Active, &sv.CreatedAt, &sv.UpdatedAt)
	return sv, err
}

// CreateServiceParams carries the writable service fields.
type CreateServiceParams struct {
	Name        string
	Category    string
	PricingUnit string
	BaseRate    decimal.Decimal
	Taxable     bool
	Active      bool
}

// CreateService inserts a catalog service and returns the stored row.
func (s *Store) CreateService(ctx context.Context, arg CreateServiceParams) (Service, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO services (name, category, pricing_unit, base_rate, taxable, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+serviceColumns,
		arg.Name, arg.Category, arg.PricingUnit, arg.BaseRate, arg.Taxable, arg.Active)
	return scanService(row)
}

// GetService fetches a catalog service by ID.
func (s *Store) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	row := s.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	return scanService(row)
}

// ListServicesParams filters the catalog listing.
type ListServicesParams struct {
	Category   string
	ActiveOnly bool
	Limit      int32
	Offset     int32
}

// ListServices returns catalog services ordered by category then name.
func (s *Store) ListServices(ctx context.Context, arg ListServicesParams) ([]Service, error) {
	rows, err := s.db.Query(ctx, `SELECT `+serviceColumns+` FROM services
WHERE ($1 = '' OR category = $1) AND (NOT $2 OR active)
ORDER BY category, name, id
LIMIT $3 OFFSET $4`,
		arg.Category, arg.ActiveOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]Service, 0, arg.Limit)
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, sv)
	}
	return services, rows.Err()
}

// CountServices reports how many services match the listing filters.
func (s *Store) CountServices(ctx context.Context, arg ListServicesParams) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM services
WHERE ($1 = '' OR category = $1) AND (NOT $2 OR active)`,
		arg.Category, arg.ActiveOnly).Scan(&total)
	return total, err
}

// UpdateService replaces the writable fields of a catalog service.
func (s *Store) UpdateService(ctx context.Context, id uuid.UUID, arg CreateServiceParams) (Service, error) {
	row := s.db.QueryRow(ctx, `UPDATE services
SET name = $2, category = $3, pricing_unit = $4, base_rate = $5, taxable = $6, active = $7, updated_at = now()
WHERE id = $1
RETURNING `+serviceColumns,
		id, arg.Name, arg.Category, arg.PricingUnit, arg.BaseRate, arg.Taxable, arg.Active)
	return scanService(row)
}
