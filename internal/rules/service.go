// Package rules manages price rule administration and dry-run rate previews.
package rules

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/pricing"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// Querier captures the database methods required by the rules service.
type Querier interface {
	CreateRule(ctx context.Context, arg store.CreateRuleParams) (store.PriceRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (store.PriceRule, error)
	ListRules(ctx context.Context, limit, offset int32) ([]store.PriceRule, error)
	CountRules(ctx context.Context) (int64, error)
	ListCandidateRules(ctx context.Context, customerID, serviceID uuid.UUID) ([]store.PriceRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, arg store.CreateRuleParams) (store.PriceRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	GetCustomer(ctx context.Context, id uuid.UUID) (store.Customer, error)
	GetService(ctx context.Context, id uuid.UUID) (store.Service, error)
}

// Service encapsulates price rule administration and preview evaluation.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Input carries the writable rule fields for create and update.
type Input struct {
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

// Rule is the public price rule payload.
type Rule struct {
	ID              string  `json:"id"`
	CustomerID      *string `json:"customerId,omitempty"`
	CustomerType    string  `json:"customerType,omitempty"`
	ServiceID       *string `json:"serviceId,omitempty"`
	ServiceCategory string  `json:"serviceCategory,omitempty"`
	Kind            string  `json:"kind"`
	Value           string  `json:"value"`
	Priority        int32   `json:"priority"`
	ValidFrom       *string `json:"validFrom,omitempty"`
	ValidTo         *string `json:"validTo,omitempty"`
	Active          bool    `json:"active"`
}

// ListResult contains rules and pagination metadata.
type ListResult struct {
	Items []Rule
	Total int64
}

// PreviewResult describes the outcome of resolving a rate without persisting
// anything.
type PreviewResult struct {
	BaseRate      string  `json:"baseRate"`
	EffectiveRate string  `json:"effectiveRate"`
	RuleID        *string `json:"ruleId,omitempty"`
}

// Create validates and persists a price rule.
func (s *Service) Create(ctx context.Context, in Input) (Rule, error) {
	if err := validateInput(in); err != nil {
		return Rule{}, err
	}
	row, err := s.Q.CreateRule(ctx, toParams(in))
	if err != nil {
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return toRule(row), nil
}

// Get returns one price rule by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	row, err := s.Q.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, notFound("rule not found", err)
		}
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return toRule(row), nil
}

// List returns every rule with pagination.
func (s *Service) List(ctx context.Context, limit, offset int32) (ListResult, error) {
	total, err := s.Q.CountRules(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("count rules: %w", err)
	}
	rows, err := s.Q.ListRules(ctx, limit, offset)
	if err != nil {
		return ListResult{}, fmt.Errorf("list rules: %w", err)
	}
	items := make([]Rule, 0, len(rows))
	for _, row := range rows {
		items = append(items, toRule(row))
	}
	return ListResult{Items: items, Total: total}, nil
}

// Update validates and replaces a price rule.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Rule, error) {
	if err := validateInput(in); err != nil {
		return Rule{}, err
	}
	row, err := s.Q.UpdateRule(ctx, id, toParams(in))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, notFound("rule not found", err)
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return toRule(row), nil
}

// Delete removes a price rule.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Q.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// Preview resolves the effective rate for a (customer, service) pair without
// touching any estimate.
func (s *Service) Preview(ctx context.Context, customerID, serviceID uuid.UUID) (PreviewResult, error) {
	customer, err := s.Q.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreviewResult{}, notFound("customer not found", err)
		}
		return PreviewResult{}, fmt.Errorf("get customer: %w", err)
	}
	svc, err := s.Q.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreviewResult{}, notFound("service not found", err)
		}
		return PreviewResult{}, fmt.Errorf("get service: %w", err)
	}
	candidates, err := s.Q.ListCandidateRules(ctx, customerID, serviceID)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("list candidate rules: %w", err)
	}

	resolution, err := pricing.ResolveRate(pricing.RateContext{
		CustomerID:      customer.ID,
		CustomerType:    customer.CustomerType,
		ServiceID:       svc.ID,
		ServiceCategory: svc.Category,
		Now:             s.now(),
	}, svc.BaseRate, ToPricingRules(candidates))
	if err != nil {
		obs.IncRateResolution("error")
		return PreviewResult{}, err
	}
	if resolution.RuleID != nil {
		obs.IncRateResolution("rule")
	} else {
		obs.IncRateResolution("base")
	}

	result := PreviewResult{
		BaseRate:      svc.BaseRate.StringFixed(2),
		EffectiveRate: resolution.Rate.StringFixed(2),
	}
	if resolution.RuleID != nil {
		id := resolution.RuleID.String()
		result.RuleID = &id
	}
	return result, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ToPricingRules converts persisted rule rows into the evaluation form.
func ToPricingRules(rows []store.PriceRule) []pricing.PriceRule {
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

func validateInput(in Input) error {
	kind := pricing.AdjustmentKind(in.Kind)
	if !kind.Valid() {
		return badRequest("kind", "unknown adjustment kind", nil)
	}
	if in.Value.IsNegative() {
		return badRequest("value", "value cannot be negative", nil)
	}
	if kind == pricing.AdjustPercentDiscount && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return badRequest("value", "percent discount cannot exceed 100", nil)
	}
	if in.ValidFrom != nil && in.ValidTo != nil && in.ValidTo.Before(*in.ValidFrom) {
		return badRequest("validTo", "validTo cannot precede validFrom", nil)
	}
	return nil
}

func toParams(in Input) store.CreateRuleParams {
	return store.CreateRuleParams{
		CustomerID:      in.CustomerID,
		CustomerType:    strings.TrimSpace(in.CustomerType),
		ServiceID:       in.ServiceID,
		ServiceCategory: strings.TrimSpace(in.ServiceCategory),
		Kind:            in.Kind,
		Value:           in.Value,
		Priority:        in.Priority,
		ValidFrom:       in.ValidFrom,
		ValidTo:         in.ValidTo,
		Active:          in.Active,
	}
}

func toRule(row store.PriceRule) Rule {
	rule := Rule{
		ID:              row.ID.String(),
		CustomerType:    row.CustomerType,
		ServiceCategory: row.ServiceCategory,
		Kind:            row.Kind,
		Value:           row.Value.String(),
		Priority:        row.Priority,
		Active:          row.Active,
	}
	if row.CustomerID != nil {
		id := row.CustomerID.String()
		rule.CustomerID = &id
	}
	if row.ServiceID != nil {
		id := row.ServiceID.String()
		rule.ServiceID = &id
	}
	if row.ValidFrom != nil {
		v := row.ValidFrom.Format(time.RFC3339)
		rule.ValidFrom = &v
	}
	if row.ValidTo != nil {
		v := row.ValidTo.Format(time.RFC3339)
		rule.ValidTo = &v
	}
	return rule
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
