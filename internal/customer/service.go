// Package customer manages the customer directory. Customers are thin
// records; their pricing behaviour lives entirely in price rules scoped to
// them or to their customer type.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

type querier interface {
	CreateCustomer(ctx context.Context, arg store.CreateCustomerParams) (store.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (store.Customer, error)
	ListCustomers(ctx context.Context, limit, offset int32) ([]store.Customer, error)
	CountCustomers(ctx context.Context) (int64, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, arg store.CreateCustomerParams) (store.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
}

// Service exposes customer CRUD.
type Service struct {
	Q querier
}

// NewService constructs a Service instance.
func NewService(q querier) *Service {
	return &Service{Q: q}
}

// Entry is the public customer payload.
type Entry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CustomerType   string `json:"customerType,omitempty"`
	ContactEmail   string `json:"contactEmail,omitempty"`
	Phone          string `json:"phone,omitempty"`
	BillingAddress string `json:"billingAddress,omitempty"`
}

// Input carries the writable customer fields.
type Input struct {
	Name           string
	CustomerType   string
	ContactEmail   string
	Phone          string
	BillingAddress string
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Entry
	Total int64
}

// Create inserts a customer.
func (s *Service) Create(ctx context.Context, in Input) (Entry, error) {
	params, err := toParams(in)
	if err != nil {
		return Entry{}, err
	}
	c, err := s.Q.CreateCustomer(ctx, params)
	if err != nil {
		return Entry{}, fmt.Errorf("create customer: %w", err)
	}
	return toEntry(c), nil
}

// Get fetches one customer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	c, err := s.Q.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, notFound(err)
		}
		return Entry{}, fmt.Errorf("get customer: %w", err)
	}
	return toEntry(c), nil
}

// List returns customers ordered by name.
func (s *Service) List(ctx context.Context, page, perPage int) (ListResult, error) {
	total, err := s.Q.CountCustomers(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("count customers: %w", err)
	}
	rows, err := s.Q.ListCustomers(ctx, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		return ListResult{}, fmt.Errorf("list customers: %w", err)
	}
	items := make([]Entry, 0, len(rows))
	for _, c := range rows {
		items = append(items, toEntry(c))
	}
	return ListResult{Items: items, Total: total}, nil
}

// Update replaces the writable fields of a customer.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Entry, error) {
	params, err := toParams(in)
	if err != nil {
		return Entry{}, err
	}
	c, err := s.Q.UpdateCustomer(ctx, id, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, notFound(err)
		}
		return Entry{}, fmt.Errorf("update customer: %w", err)
	}
	return toEntry(c), nil
}

// Delete removes a customer. Price rules scoped to the customer cascade.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Q.GetCustomer(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(err)
		}
		return fmt.Errorf("get customer: %w", err)
	}
	if err := s.Q.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

func toParams(in Input) (store.CreateCustomerParams, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.CreateCustomerParams{}, &common.AppError{
			Code:       "BAD_REQUEST",
			Message:    "name is required",
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]any{"field": "name"},
		}
	}
	return store.CreateCustomerParams{
		Name:           name,
		CustomerType:   strings.TrimSpace(in.CustomerType),
		ContactEmail:   strings.TrimSpace(in.ContactEmail),
		Phone:          strings.TrimSpace(in.Phone),
		BillingAddress: strings.TrimSpace(in.BillingAddress),
	}, nil
}

func toEntry(c store.Customer) Entry {
	return Entry{
		ID:             c.ID.String(),
		Name:           c.Name,
		CustomerType:   c.CustomerType,
		ContactEmail:   c.ContactEmail,
		Phone:          c.Phone,
		BillingAddress: c.BillingAddress,
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: "customer not found", HTTPStatus: http.StatusNotFound, Err: err}
}
