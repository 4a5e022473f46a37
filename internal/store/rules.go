package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ruleColumns = `id, customer_id, customer_type, service_id, service_category, kind, value, priority, valid_from, valid_to, active, created_at, updated_at`

func scanRule(row scanner) (PriceRule, error) {
	var r PriceRule
	err := row.Scan(&r.ID, &r.CustomerID, &r.CustomerType, &r.ServiceID, &r.ServiceCategory,
		&r.Kind, &r.Value, &r.Priority, &r.ValidFrom, &r.ValidTo, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateRuleParams carries the writable price rule fields.
type CreateRuleParams struct {
	CustomerID      *uuid.UUID
	CustomerType    string
	ServiceID       *uuid.UUID
	ServiceCategory string
	Kind            string
	Value           decimal.Decimal
	Priority        int32
	ValidFrom       *time.Time
	ValidTo         *time.Time
	Active          bool
}

// CreateRule inserts a price rule and returns the stored row.
func (s *Store) CreateRule(ctx context.Context, arg CreateRuleParams) (PriceRule, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO price_rules (customer_id, customer_type, service_id, service_category, kind, value, priority, valid_from, valid_to, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+ruleColumns,
		arg.CustomerID, arg.CustomerType, arg.ServiceID, arg.ServiceCategory,
		arg.Kind, arg.Value, arg.Priority, arg.ValidFrom, arg.ValidTo, arg.Active)
	return scanRule(row)
}

// GetRule fetches a price rule by ID.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (PriceRule, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM price_rules WHERE id = $1`, id)
	return scanRule(row)
}

// ListRules returns every price rule ordered by priority for admin listings.
func (s *Store) ListRules(ctx context.Context, limit, offset int32) ([]PriceRule, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ruleColumns+` FROM price_rules ORDER BY priority, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]PriceRule, 0, limit)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CountRules reports the total rule count for pagination.
func (s *Store) CountRules(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM price_rules`).Scan(&total)
	return total, err
}

// ListCandidateRules returns the active rules that could apply to the given
// customer and service. Scope matching beyond the indexable columns happens
// in the pricing package.
func (s *Store) ListCandidateRules(ctx context.Context, customerID, serviceID uuid.UUID) ([]PriceRule, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ruleColumns+` FROM price_rules
WHERE active
  AND (customer_id IS NULL OR customer_id = $1)
  AND (service_id IS NULL OR service_id = $2)
ORDER BY priority, id`,
		customerID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]PriceRule, 0, 8)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRule replaces the writable fields of a price rule.
func (s *Store) UpdateRule(ctx context.Context, id uuid.UUID, arg CreateRuleParams) (PriceRule, error) {
	row := s.db.QueryRow(ctx, `UPDATE price_rules
SET customer_id = $2, customer_type = $3, service_id = $4, service_category = $5,
    kind = $6, value = $7, priority = $8, valid_from = $9, valid_to = $10, active = $11, updated_at = now()
WHERE id = $1
RETURNING `+ruleColumns,
		id, arg.CustomerID, arg.CustomerType, arg.ServiceID, arg.ServiceCategory,
		arg.Kind, arg.Value, arg.Priority, arg.ValidFrom, arg.ValidTo, arg.Active)
	return scanRule(row)
}

// DeleteRule removes a price rule.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM price_rules WHERE id = $1`, id)
	return err
}
