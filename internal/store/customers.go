package store

import (
	"context"

	"github.com/google/uuid"
)

const customerColumns = `id, name, customer_type, contact_email, phone, billing_address, created_at, updated_at`

func scanCustomer(row scanner) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.CustomerType, &c.ContactEmail, &c.Phone, &c.BillingAddress, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCustomerParams carries the writable customer fields.
type CreateCustomerParams struct {
	Name           string
	CustomerType   string
	ContactEmail   string
	Phone          string
	BillingAddress string
}

// CreateCustomer inserts a customer and returns the stored row.
func (s *Store) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO customers (name, customer_type, contact_email, phone, billing_address)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+customerColumns,
		arg.Name, arg.CustomerType, arg.ContactEmail, arg.Phone, arg.BillingAddress)
	return scanCustomer(row)
}

// GetCustomer fetches a customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// ListCustomers returns customers ordered by name with pagination.
func (s *Store) ListCustomers(ctx context.Context, limit, offset int32) ([]Customer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CountCustomers reports the total customer count for pagination.
func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	return total, err
}

// UpdateCustomer replaces the writable fields of a customer.
func (s *Store) UpdateCustomer(ctx context.Context, id uuid.UUID, arg CreateCustomerParams) (Customer, error) {
	row := s.db.QueryRow(ctx, `UPDATE customers
SET name = $2, customer_type = $3, contact_email = $4, phone = $5, billing_address = $6, updated_at = now()
WHERE id = $1
RETURNING `+customerColumns,
		id, arg.Name, arg.CustomerType, arg.ContactEmail, arg.Phone, arg.BillingAddress)
	return scanCustomer(row)
}

// DeleteCustomer removes a customer and cascades to its price rules.
func (s *Store) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	return err
}
