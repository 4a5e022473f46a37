// Package catalog manages the service catalog: the destruction, shredding,
// and recycling offerings a line item can be priced from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// PricingUnits enumerates the units a service can be billed in.
var PricingUnits = []string{"per_item", "per_pound", "per_bin", "per_pallet", "per_hour", "flat"}

type querier interface {
	CreateService(ctx context.Context, arg store.CreateServiceParams) (store.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (store.Service, error)
	ListServices(ctx context.Context, arg store.ListServicesParams) ([]store.Service, error)
	CountServices(ctx context.Context, arg store.ListServicesParams) (int64, error)
	UpdateService(ctx context.Context, id uuid.UUID, arg store.CreateServiceParams) (store.Service, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries      querier
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      querier
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ListParams captures filters for catalog listing.
type ListParams struct {
	Category   string
	ActiveOnly bool
	Page       int
	Limit      int
}

// Entry is the public catalog payload.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	PricingUnit string `json:"pricingUnit"`
	BaseRate    string `json:"baseRate"`
	Taxable     bool   `json:"taxable"`
	Active      bool   `json:"active"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Entry
	Total int64
	Page  int
	Limit int
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:       1,
		Limit:      s.defaultLimit,
		ActiveOnly: true,
	}
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	if v := strings.TrimSpace(values.Get("includeInactive")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return params, badRequest("includeInactive", "includeInactive must be true or false", err)
		}
		params.ActiveOnly = !b
	}
	return params, nil
}

// List returns filtered catalog entries with pagination metadata. The
// unfiltered first page is served from cache when available.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	key, shouldUseCache := s.listCacheKey(params)
	if shouldUseCache {
		var cached cachedList
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return ListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
		}
	}

	storeParams := store.ListServicesParams{
		Category:   params.Category,
		ActiveOnly: params.ActiveOnly,
		Limit:      int32(params.Limit),
		Offset:     int32((params.Page - 1) * params.Limit),
	}
	total, err := s.queries.CountServices(ctx, storeParams)
	if err != nil {
		return ListResult{}, fmt.Errorf("count services: %w", err)
	}
	rows, err := s.queries.ListServices(ctx, storeParams)
	if err != nil {
		return ListResult{}, fmt.Errorf("list services: %w", err)
	}
	items := make([]Entry, 0, len(rows))
	for _, row := range rows {
		items = append(items, toEntry(row))
	}
	result := ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if shouldUseCache {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return result, nil
}

// Get returns one catalog entry by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row, err := s.queries.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, &common.AppError{Code: "NOT_FOUND", Message: "service not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return Entry{}, fmt.Errorf("get service: %w", err)
	}
	return toEntry(row), nil
}

// Input carries the writable catalog fields for create and update.
type Input struct {
	Name        string
	Category    string
	PricingUnit string
	BaseRate    decimal.Decimal
	Taxable     bool
	Active      bool
}

// Create adds a catalog entry and invalidates the listing cache.
func (s *Service) Create(ctx context.Context, in Input) (Entry, error) {
	if err := validateInput(in); err != nil {
		return Entry{}, err
	}
	row, err := s.queries.CreateService(ctx, store.CreateServiceParams{
		Name:        in.Name,
		Category:    in.Category,
		PricingUnit: in.PricingUnit,
		BaseRate:    in.BaseRate,
		Taxable:     in.Taxable,
		Active:      in.Active,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("create service: %w", err)
	}
	_ = s.cache.Invalidate(ctx, listCacheKeyDefault)
	return toEntry(row), nil
}

// Update replaces a catalog entry and invalidates the listing cache.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Entry, error) {
	if err := validateInput(in); err != nil {
		return Entry{}, err
	}
	row, err := s.queries.UpdateService(ctx, id, store.CreateServiceParams{
		Name:        in.Name,
		Category:    in.Category,
		PricingUnit: in.PricingUnit,
		BaseRate:    in.BaseRate,
		Taxable:     in.Taxable,
		Active:      in.Active,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, &common.AppError{Code: "NOT_FOUND", Message: "service not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return Entry{}, fmt.Errorf("update service: %w", err)
	}
	_ = s.cache.Invalidate(ctx, listCacheKeyDefault)
	return toEntry(row), nil
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return badRequest("name", "name is required", nil)
	}
	if !validPricingUnit(in.PricingUnit) {
		return badRequest("pricingUnit", "unknown pricing unit", nil)
	}
	if in.BaseRate.IsNegative() {
		return badRequest("baseRate", "base rate cannot be negative", nil)
	}
	return nil
}

func validPricingUnit(unit string) bool {
	for _, u := range PricingUnits {
		if u == unit {
			return true
		}
	}
	return false
}

func toEntry(row store.Service) Entry {
	return Entry{
		ID:          row.ID.String(),
		Name:        row.Name,
		Category:    row.Category,
		PricingUnit: row.PricingUnit,
		BaseRate:    row.BaseRate.StringFixed(2),
		Taxable:     row.Taxable,
		Active:      row.Active,
	}
}

type cachedList struct {
	Items []Entry `json:"items"`
	Total int64   `json:"total"`
}

const listCacheKeyDefault = "catalog:services:list:default"

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	if params.Page != 1 || params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Category != "" || !params.ActiveOnly {
		return "", false
	}
	return listCacheKeyDefault, true
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
