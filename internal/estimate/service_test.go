package estimate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// memQuerier is an in-memory Querier. WithTx returns the same instance: the
// service only wraps transactions when a pool is configured.
type memQuerier struct {
	customers map[uuid.UUID]store.Customer
	services  map[uuid.UUID]store.Service
	rules     []store.PriceRule
	estimates map[uuid.UUID]store.Estimate
	lines     map[uuid.UUID]store.EstimateLine
	charges   map[uuid.UUID]store.EstimateCharge
	seq       int
}

func newMemQuerier() *memQuerier {
	return &memQuerier{
		customers: make(map[uuid.UUID]store.Customer),
		services:  make(map[uuid.UUID]store.Service),
		estimates: make(map[uuid.UUID]store.Estimate),
		lines:     make(map[uuid.UUID]store.EstimateLine),
		charges:   make(map[uuid.UUID]store.EstimateCharge),
	}
}

func (m *memQuerier) WithTx(pgx.Tx) Querier { return m }

func (m *memQuerier) CreateEstimate(_ context.Context, arg store.CreateEstimateParams) (store.Estimate, error) {
	m.seq++
	est := store.Estimate{
		ID:             uuid.New(),
		Number:         fmt.Sprintf("%s-%06d", arg.NumberPrefix, m.seq),
		CustomerID:     arg.CustomerID,
		Status:         "draft",
		TaxRate:        arg.TaxRate,
		Notes:          arg.Notes,
		ExpiresAt:      arg.ExpiresAt,
		DiscountValue:  decimal.Zero,
		ShippingAmount: decimal.Zero,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.estimates[est.ID] = est
	return est, nil
}

func (m *memQuerier) GetEstimate(_ context.Context, id uuid.UUID) (store.Estimate, error) {
	est, ok := m.estimates[id]
	if !ok {
		return store.Estimate{}, pgx.ErrNoRows
	}
	return est, nil
}

func (m *memQuerier) GetEstimateForUpdate(ctx context.Context, id uuid.UUID) (store.Estimate, error) {
	return m.GetEstimate(ctx, id)
}

func (m *memQuerier) ListEstimates(_ context.Context, arg store.ListEstimatesParams) ([]store.Estimate, error) {
	out := make([]store.Estimate, 0, len(m.estimates))
	for _, est := range m.estimates {
		if arg.CustomerID != nil && est.CustomerID != *arg.CustomerID {
			continue
		}
		if arg.Status != "" && est.Status != arg.Status {
			continue
		}
		out = append(out, est)
	}
	return out, nil
}

func (m *memQuerier) CountEstimates(ctx context.Context, arg store.ListEstimatesParams) (int64, error) {
	rows, _ := m.ListEstimates(ctx, arg)
	return int64(len(rows)), nil
}

func (m *memQuerier) UpdateEstimatePricing(_ context.Context, id uuid.UUID, arg store.UpdateEstimatePricingParams) (store.Estimate, error) {
	est, ok := m.estimates[id]
	if !ok {
		return store.Estimate{}, pgx.ErrNoRows
	}
	est.DiscountType = arg.DiscountType
	est.DiscountValue = arg.DiscountValue
	est.TaxRate = arg.TaxRate
	est.ShippingAmount = arg.ShippingAmount
	est.OverrideSubtotal = arg.OverrideSubtotal
	est.OverrideTaxAmount = arg.OverrideTaxAmount
	est.OverrideTotalAmount = arg.OverrideTotalAmount
	m.estimates[id] = est
	return est, nil
}

func (m *memQuerier) UpdateEstimateTotals(_ context.Context, id uuid.UUID, arg store.EstimateTotals) error {
	est, ok := m.estimates[id]
	if !ok {
		return pgx.ErrNoRows
	}
	est.Subtotal = arg.Subtotal
	est.DiscountAmount = arg.DiscountAmount
	est.TaxableSubtotal = arg.TaxableSubtotal
	est.TaxAmount = arg.TaxAmount
	est.TotalAmount = arg.TotalAmount
	m.estimates[id] = est
	return nil
}

func (m *memQuerier) UpdateEstimateStatus(_ context.Context, id uuid.UUID, status string, sentAt, expiresAt *time.Time) (store.Estimate, error) {
	est, ok := m.estimates[id]
	if !ok {
		return store.Estimate{}, pgx.ErrNoRows
	}
	est.Status = status
	if sentAt != nil {
		est.SentAt = sentAt
	}
	if expiresAt != nil {
		est.ExpiresAt = expiresAt
	}
	m.estimates[id] = est
	return est, nil
}

func (m *memQuerier) UpdateEstimateNotes(_ context.Context, id uuid.UUID, notes string) error {
	est, ok := m.estimates[id]
	if !ok {
		return pgx.ErrNoRows
	}
	est.Notes = notes
	m.estimates[id] = est
	return nil
}

func (m *memQuerier) ListExpirableEstimates(_ context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, est := range m.estimates {
		if est.Status == "sent" && est.ExpiresAt != nil && !est.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memQuerier) InsertLine(_ context.Context, arg store.InsertLineParams) (store.EstimateLine, error) {
	line := store.EstimateLine{
		ID:          uuid.New(),
		EstimateID:  arg.EstimateID,
		ServiceID:   arg.ServiceID,
		Description: arg.Description,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		LineTotal:   arg.LineTotal,
		Taxable:     arg.Taxable,
		Position:    arg.Position,
	}
	m.lines[line.ID] = line
	return line, nil
}

func (m *memQuerier) GetLine(_ context.Context, id uuid.UUID) (store.EstimateLine, error) {
	line, ok := m.lines[id]
	if !ok {
		return store.EstimateLine{}, pgx.ErrNoRows
	}
	return line, nil
}

func (m *memQuerier) ListLines(_ context.Context, estimateID uuid.UUID) ([]store.EstimateLine, error) {
	out := make([]store.EstimateLine, 0)
	for _, line := range m.lines {
		if line.EstimateID == estimateID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memQuerier) UpdateLine(_ context.Context, id uuid.UUID, arg store.UpdateLineParams) (store.EstimateLine, error) {
	line, ok := m.lines[id]
	if !ok {
		return store.EstimateLine{}, pgx.ErrNoRows
	}
	line.ServiceID = arg.ServiceID
	line.Description = arg.Description
	line.Quantity = arg.Quantity
	line.UnitPrice = arg.UnitPrice
	line.LineTotal = arg.LineTotal
	line.Taxable = arg.Taxable
	m.lines[id] = line
	return line, nil
}

func (m *memQuerier) UpdateLineTotal(_ context.Context, id uuid.UUID, total decimal.Decimal) error {
	line, ok := m.lines[id]
	if !ok {
		return pgx.ErrNoRows
	}
	line.LineTotal = total
	m.lines[id] = line
	return nil
}

func (m *memQuerier) DeleteLine(_ context.Context, id uuid.UUID) error {
	delete(m.lines, id)
	return nil
}

func (m *memQuerier) NextLinePosition(ctx context.Context, estimateID uuid.UUID) (int32, error) {
	lines, _ := m.ListLines(ctx, estimateID)
	var max int32
	for _, line := range lines {
		if line.Position > max {
			max = line.Position
		}
	}
	return max + 1, nil
}

func (m *memQuerier) SetLinePositions(_ context.Context, estimateID uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		line, ok := m.lines[id]
		if !ok || line.EstimateID != estimateID {
			continue
		}
		line.Position = int32(i + 1)
		m.lines[id] = line
	}
	return nil
}

func (m *memQuerier) RenumberLines(ctx context.Context, estimateID uuid.UUID) error {
	lines, _ := m.ListLines(ctx, estimateID)
	for i, line := range lines {
		line.Position = int32(i + 1)
		m.lines[line.ID] = line
	}
	return nil
}

func (m *memQuerier) InsertCharge(_ context.Context, arg store.InsertChargeParams) (store.EstimateCharge, error) {
	charge := store.EstimateCharge{
		ID:          uuid.New(),
		EstimateID:  arg.EstimateID,
		Kind:        arg.Kind,
		Description: arg.Description,
		Amount:      arg.Amount,
		CreatedAt:   time.Now(),
	}
	m.charges[charge.ID] = charge
	return charge, nil
}

func (m *memQuerier) GetCharge(_ context.Context, id uuid.UUID) (store.EstimateCharge, error) {
	charge, ok := m.charges[id]
	if !ok {
		return store.EstimateCharge{}, pgx.ErrNoRows
	}
	return charge, nil
}

func (m *memQuerier) ListCharges(_ context.Context, estimateID uuid.UUID) ([]store.EstimateCharge, error) {
	out := make([]store.EstimateCharge, 0)
	for _, charge := range m.charges {
		if charge.EstimateID == estimateID {
			out = append(out, charge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memQuerier) UpdateCharge(_ context.Context, id uuid.UUID, kind, description string, amount decimal.Decimal) (store.EstimateCharge, error) {
	charge, ok := m.charges[id]
	if !ok {
		return store.EstimateCharge{}, pgx.ErrNoRows
	}
	charge.Kind = kind
	charge.Description = description
	charge.Amount = amount
	m.charges[id] = charge
	return charge, nil
}

func (m *memQuerier) DeleteCharge(_ context.Context, id uuid.UUID) error {
	delete(m.charges, id)
	return nil
}

func (m *memQuerier) GetCustomer(_ context.Context, id uuid.UUID) (store.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return store.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memQuerier) GetService(_ context.Context, id uuid.UUID) (store.Service, error) {
	sv, ok := m.services[id]
	if !ok {
		return store.Service{}, pgx.ErrNoRows
	}
	return sv, nil
}

func (m *memQuerier) ListCandidateRules(_ context.Context, customerID, serviceID uuid.UUID) ([]store.PriceRule, error) {
	out := make([]store.PriceRule, 0, len(m.rules))
	for _, r := range m.rules {
		if !r.Active {
			continue
		}
		if r.CustomerID != nil && *r.CustomerID != customerID {
			continue
		}
		if r.ServiceID != nil && *r.ServiceID != serviceID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

type fixture struct {
	q        *memQuerier
	svc      *Service
	customer store.Customer
	service  store.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q := newMemQuerier()
	customer := store.Customer{ID: uuid.New(), Name: "Beacon Clinic", CustomerType: "medical"}
	q.customers[customer.ID] = customer
	shredding := store.Service{
		ID:          uuid.New(),
		Name:        "Paper Shredding",
		Category:    "shredding",
		PricingUnit: "per_bin",
		BaseRate:    dec("100.00"),
		Taxable:     true,
		Active:      true,
	}
	q.services[shredding.ID] = shredding
	svc := &Service{
		Q:              q,
		Now:            func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) },
		NumberPrefix:   "EST",
		DefaultTaxRate: dec("6.25"),
		ValidityDays:   30,
	}
	return &fixture{q: q, svc: svc, customer: customer, service: shredding}
}

func (f *fixture) draft(t *testing.T) Detail {
	t.Helper()
	detail, err := f.svc.Create(context.Background(), CreateInput{CustomerID: f.customer.ID})
	if err != nil {
		t.Fatalf("create estimate: %v", err)
	}
	return detail
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}

func TestCreateUsesDefaultTaxRate(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	if detail.Status != "draft" {
		t.Fatalf("expected draft, got %s", detail.Status)
	}
	if detail.TaxRate != "6.25" {
		t.Fatalf("expected default tax rate, got %s", detail.TaxRate)
	}
}

func TestCreateUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{CustomerID: uuid.New()})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestAddLineResolvesRateFromRules(t *testing.T) {
	f := newFixture(t)
	f.q.rules = []store.PriceRule{
		{ID: uuid.New(), Kind: "percent_markup", Value: dec("10"), Active: true},
		{ID: uuid.New(), CustomerID: &f.customer.ID, ServiceID: &f.service.ID, Kind: "percent_discount", Value: dec("20"), Active: true},
	}
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	detail, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		ServiceID: &f.service.ID,
		Quantity:  dec("3"),
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if len(detail.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(detail.Lines))
	}
	line := detail.Lines[0]
	if line.UnitPrice != "80.00" {
		t.Fatalf("expected resolved rate 80.00, got %s", line.UnitPrice)
	}
	if line.LineTotal != "240.00" {
		t.Fatalf("expected line total 240.00, got %s", line.LineTotal)
	}
	if line.Description != "Paper Shredding" {
		t.Fatalf("expected service name as description, got %q", line.Description)
	}
	if detail.Totals.Subtotal != "240.00" {
		t.Fatalf("expected subtotal 240.00, got %s", detail.Totals.Subtotal)
	}
}

func TestAddLinePinnedPriceSkipsResolution(t *testing.T) {
	f := newFixture(t)
	f.q.rules = []store.PriceRule{
		{ID: uuid.New(), ServiceID: &f.service.ID, Kind: "rate_override", Value: dec("5.00"), Active: true},
	}
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	detail, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		ServiceID: &f.service.ID,
		Quantity:  dec("1"),
		UnitPrice: decPtr("77.77"),
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if detail.Lines[0].UnitPrice != "77.77" {
		t.Fatalf("expected pinned price, got %s", detail.Lines[0].UnitPrice)
	}
}

func TestAddLineCustomRequiresDescription(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	_, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Quantity:  dec("1"),
		UnitPrice: decPtr("10.00"),
	})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %v", err)
	}
}

func TestAddLineRequiresPriceWithoutService(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	_, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Description: "Mystery work",
		Quantity:    dec("1"),
	})
	if err == nil {
		t.Fatal("expected error for missing unit price")
	}
}

func TestLockRejectsFinancialMutations(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{ServiceID: &f.service.ID, Quantity: dec("1")}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err := f.svc.AddLine(context.Background(), estimateID, LineInput{ServiceID: &f.service.ID, Quantity: dec("1")})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "ESTIMATE_LOCKED" {
		t.Fatalf("expected ESTIMATE_LOCKED, got %v", err)
	}

	_, err = f.svc.UpdatePricing(context.Background(), estimateID, PricingInput{TaxRate: dec("5")})
	if !errors.As(err, &appErr) || appErr.Code != "ESTIMATE_LOCKED" {
		t.Fatalf("expected ESTIMATE_LOCKED for pricing update, got %v", err)
	}
}

func TestNotesStayEditableAfterSend(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{ServiceID: &f.service.ID, Quantity: dec("1")}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}
	detail, err := f.svc.UpdateNotes(context.Background(), estimateID, "customer asked for morning pickup")
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if detail.Notes == "" {
		t.Fatal("expected notes to persist")
	}
}

func TestPricingChainEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.svc.DefaultTaxRate = dec("6.25")
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	// Two lines: 50.00 taxable, 20.00 non-taxable.
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Description: "Destruction", Quantity: dec("1"), UnitPrice: decPtr("50.00"),
	}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	taxable := false
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Description: "Certificate", Quantity: dec("1"), UnitPrice: decPtr("20.00"), Taxable: &taxable,
	}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.AddCharge(context.Background(), estimateID, ChargeInput{
		Kind: "transportation", Amount: dec("15.00"),
	}); err != nil {
		t.Fatalf("add charge: %v", err)
	}
	detail, err := f.svc.UpdatePricing(context.Background(), estimateID, PricingInput{
		DiscountType:  "percent",
		DiscountValue: dec("10"),
		TaxRate:       dec("8"),
	})
	if err != nil {
		t.Fatalf("update pricing: %v", err)
	}

	if detail.Totals.Subtotal != "85.00" {
		t.Fatalf("subtotal: want 85.00, got %s", detail.Totals.Subtotal)
	}
	if detail.Totals.DiscountAmount != "8.50" {
		t.Fatalf("discount: want 8.50, got %s", detail.Totals.DiscountAmount)
	}
	if detail.Totals.TaxableSubtotal != "76.50" {
		t.Fatalf("taxable subtotal: want 76.50, got %s", detail.Totals.TaxableSubtotal)
	}
	if detail.Totals.TaxAmount != "4.37" {
		t.Fatalf("tax: want 4.37, got %s", detail.Totals.TaxAmount)
	}
	if detail.Totals.TotalAmount != "80.87" {
		t.Fatalf("total: want 80.87, got %s", detail.Totals.TotalAmount)
	}
}

func TestSendStampsExpiry(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{ServiceID: &f.service.ID, Quantity: dec("2")}); err != nil {
		t.Fatalf("add line: %v", err)
	}

	detail, err := f.svc.Send(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if detail.Status != "sent" {
		t.Fatalf("expected sent, got %s", detail.Status)
	}
	if detail.SentAt == nil || detail.ExpiresAt == nil {
		t.Fatal("expected sentAt and expiresAt to be stamped")
	}

	// A second send is an illegal edge.
	_, err = f.svc.Send(context.Background(), estimateID)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestAcceptOnlyFromSent(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	_, err := f.svc.Accept(context.Background(), estimateID)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION from draft, got %v", err)
	}

	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}
	accepted, err := f.svc.Accept(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
}

func TestRemoveLineRenumbers(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	for _, desc := range []string{"one", "two", "three"} {
		if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
			Description: desc, Quantity: dec("1"), UnitPrice: decPtr("10.00"),
		}); err != nil {
			t.Fatalf("add line: %v", err)
		}
	}
	detail, err := f.svc.Get(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second := mustUUID(t, detail.Lines[1].ID)

	detail, err = f.svc.RemoveLine(context.Background(), estimateID, second)
	if err != nil {
		t.Fatalf("remove line: %v", err)
	}
	if len(detail.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(detail.Lines))
	}
	for i, line := range detail.Lines {
		if line.Position != int32(i+1) {
			t.Fatalf("expected dense positions, got %d at index %d", line.Position, i)
		}
	}
	if detail.Totals.Subtotal != "20.00" {
		t.Fatalf("expected subtotal 20.00, got %s", detail.Totals.Subtotal)
	}
}

func TestReorderLinesValidatesSet(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	for _, desc := range []string{"one", "two"} {
		if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
			Description: desc, Quantity: dec("1"), UnitPrice: decPtr("10.00"),
		}); err != nil {
			t.Fatalf("add line: %v", err)
		}
	}
	detail, err := f.svc.Get(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first := mustUUID(t, detail.Lines[0].ID)
	second := mustUUID(t, detail.Lines[1].ID)

	reordered, err := f.svc.ReorderLines(context.Background(), estimateID, []uuid.UUID{second, first})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if reordered.Lines[0].Description != "two" {
		t.Fatalf("expected reordered lines, got %q first", reordered.Lines[0].Description)
	}

	_, err = f.svc.ReorderLines(context.Background(), estimateID, []uuid.UUID{first, uuid.New()})
	if err == nil {
		t.Fatal("expected mismatched id set to be rejected")
	}
}

func TestDuplicateLockedEstimate(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Description: "Destruction", Quantity: dec("2"), UnitPrice: decPtr("30.00"),
	}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.AddCharge(context.Background(), estimateID, ChargeInput{Kind: "fuel_surcharge", Amount: dec("5.00")}); err != nil {
		t.Fatalf("add charge: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}

	dup, err := f.svc.Duplicate(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Status != "draft" {
		t.Fatalf("expected fresh draft, got %s", dup.Status)
	}
	if dup.ID == detail.ID {
		t.Fatal("expected a new estimate id")
	}
	if len(dup.Lines) != 1 || len(dup.Charges) != 1 {
		t.Fatalf("expected copied lines and charges, got %d/%d", len(dup.Lines), len(dup.Charges))
	}
	if dup.Totals.Subtotal != "65.00" {
		t.Fatalf("expected subtotal 65.00, got %s", dup.Totals.Subtotal)
	}
}

func TestDuplicateRepricesServiceLines(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		ServiceID: &f.service.ID, Quantity: dec("2"),
	}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}

	// A rule introduced after send must reach the duplicate, not the source.
	f.q.rules = []store.PriceRule{
		{ID: uuid.New(), CustomerID: &f.customer.ID, ServiceID: &f.service.ID, Kind: "percent_discount", Value: dec("20"), Active: true},
	}

	dup, err := f.svc.Duplicate(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if len(dup.Lines) != 1 {
		t.Fatalf("expected one copied line, got %d", len(dup.Lines))
	}
	if dup.Lines[0].UnitPrice != "80.00" {
		t.Fatalf("expected re-resolved rate 80.00, got %s", dup.Lines[0].UnitPrice)
	}
	if dup.Totals.Subtotal != "160.00" {
		t.Fatalf("expected subtotal 160.00, got %s", dup.Totals.Subtotal)
	}

	src, err := f.svc.Get(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.Lines[0].UnitPrice != "100.00" {
		t.Fatalf("expected source to keep its locked rate, got %s", src.Lines[0].UnitPrice)
	}
	if src.Totals.Subtotal != "200.00" {
		t.Fatalf("expected source subtotal unchanged at 200.00, got %s", src.Totals.Subtotal)
	}
}

func TestExpireDueSweepsSentEstimates(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{ServiceID: &f.service.ID, Quantity: dec("1")}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.Send(context.Background(), estimateID); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Move the clock past the validity window.
	f.svc.Now = func() time.Time { return time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC) }
	count, err := f.svc.ExpireDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expiry, got %d", count)
	}
	got, err := f.svc.Get(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "expired" {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestOverrideSubtotalFlowsDownstream(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)
	if _, err := f.svc.AddLine(context.Background(), estimateID, LineInput{
		Description: "Destruction", Quantity: dec("1"), UnitPrice: decPtr("100.00"),
	}); err != nil {
		t.Fatalf("add line: %v", err)
	}

	detail, err := f.svc.UpdatePricing(context.Background(), estimateID, PricingInput{
		DiscountType:     "percent",
		DiscountValue:    dec("10"),
		TaxRate:          dec("5"),
		OverrideSubtotal: decPtr("200.00"),
	})
	if err != nil {
		t.Fatalf("update pricing: %v", err)
	}
	if detail.Totals.Subtotal != "200.00" {
		t.Fatalf("expected overridden subtotal, got %s", detail.Totals.Subtotal)
	}
	if detail.Totals.DiscountAmount != "20.00" {
		t.Fatalf("expected discount from override, got %s", detail.Totals.DiscountAmount)
	}
	if detail.Overrides == nil || detail.Overrides.Subtotal == nil {
		t.Fatal("expected override to be reported")
	}
}

func TestUpdatePricingRejectsNegativeTax(t *testing.T) {
	f := newFixture(t)
	detail := f.draft(t)
	estimateID := mustUUID(t, detail.ID)

	_, err := f.svc.UpdatePricing(context.Background(), estimateID, PricingInput{TaxRate: dec("-1")})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %v", err)
	}
	// The bad rate never reached the row.
	got, err := f.svc.Get(context.Background(), estimateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TaxRate != "6.25" {
		t.Fatalf("expected tax rate unchanged, got %s", got.TaxRate)
	}
}
