package customer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/customer"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

type fakeCustomerQueries struct {
	customers map[uuid.UUID]store.Customer
	deleted   []uuid.UUID
}

func newFakeCustomerQueries() *fakeCustomerQueries {
	return &fakeCustomerQueries{customers: make(map[uuid.UUID]store.Customer)}
}

func (f *fakeCustomerQueries) add(name, customerType string) store.Customer {
	c := store.Customer{ID: uuid.New(), Name: name, CustomerType: customerType}
	f.customers[c.ID] = c
	return c
}

func (f *fakeCustomerQueries) CreateCustomer(_ context.Context, arg store.CreateCustomerParams) (store.Customer, error) {
	c := store.Customer{
		ID:             uuid.New(),
		Name:           arg.Name,
		CustomerType:   arg.CustomerType,
		ContactEmail:   arg.ContactEmail,
		Phone:          arg.Phone,
		BillingAddress: arg.BillingAddress,
	}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeCustomerQueries) GetCustomer(_ context.Context, id uuid.UUID) (store.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return store.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeCustomerQueries) ListCustomers(_ context.Context, limit, offset int32) ([]store.Customer, error) {
	out := make([]store.Customer, 0, len(f.customers))
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCustomerQueries) CountCustomers(_ context.Context) (int64, error) {
	return int64(len(f.customers)), nil
}

func (f *fakeCustomerQueries) UpdateCustomer(_ context.Context, id uuid.UUID, arg store.CreateCustomerParams) (store.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return store.Customer{}, pgx.ErrNoRows
	}
	c.Name = arg.Name
	c.CustomerType = arg.CustomerType
	c.ContactEmail = arg.ContactEmail
	c.Phone = arg.Phone
	c.BillingAddress = arg.BillingAddress
	f.customers[id] = c
	return c, nil
}

func (f *fakeCustomerQueries) DeleteCustomer(_ context.Context, id uuid.UUID) error {
	delete(f.customers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type entryResponse struct {
	Data customer.Entry `json:"data"`
}

func withCustomerID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("customerID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCustomerHandlers(t *testing.T) {
	queries := newFakeCustomerQueries()
	handler := &customer.Handler{
		Svc:      customer.NewService(queries),
		Validate: validator.New(),
	}

	t.Run("create", func(t *testing.T) {
		body := `{"name":"Harbor Medical","customerType":"medical","contactEmail":"billing@harbor.example"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Create(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp entryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, "Harbor Medical", resp.Data.Name)
		require.Equal(t, "medical", resp.Data.CustomerType)
	})

	t.Run("create rejects missing name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(`{"customerType":"medical"}`))
		rec := httptest.NewRecorder()
		handler.Create(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("create rejects bad email", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(`{"name":"X","contactEmail":"nope"}`))
		rec := httptest.NewRecorder()
		handler.Create(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		c := queries.add("Dockside Storage", "commercial")
		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+c.ID.String(), nil), c.ID.String())
		rec := httptest.NewRecorder()
		handler.Get(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp entryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, c.ID.String(), resp.Data.ID)
	})

	t.Run("get unknown id", func(t *testing.T) {
		id := uuid.NewString()
		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+id, nil), id)
		rec := httptest.NewRecorder()
		handler.Get(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list sets total header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
		rec := httptest.NewRecorder()
		handler.List(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-Total-Count"))
	})

	t.Run("update", func(t *testing.T) {
		c := queries.add("Old Name", "commercial")
		body := `{"name":"New Name","customerType":"government"}`
		req := withCustomerID(httptest.NewRequest(http.MethodPut, "/api/v1/customers/"+c.ID.String(), strings.NewReader(body)), c.ID.String())
		rec := httptest.NewRecorder()
		handler.Update(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp entryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, "New Name", resp.Data.Name)
		require.Equal(t, "government", resp.Data.CustomerType)
	})

	t.Run("delete", func(t *testing.T) {
		c := queries.add("Short Lived", "")
		req := withCustomerID(httptest.NewRequest(http.MethodDelete, "/api/v1/customers/"+c.ID.String(), nil), c.ID.String())
		rec := httptest.NewRecorder()
		handler.Delete(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Contains(t, queries.deleted, c.ID)
	})

	t.Run("invalid path id", func(t *testing.T) {
		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/api/v1/customers/nope", nil), "nope")
		rec := httptest.NewRecorder()
		handler.Get(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
