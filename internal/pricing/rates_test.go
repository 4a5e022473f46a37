package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func uuidMust(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}

func TestResolveRateNoMatchReturnsBaseRate(t *testing.T) {
	ctx := RateContext{CustomerID: uuid.New(), ServiceID: uuid.New()}
	res, err := ResolveRate(ctx, mustDecimal(t, "12.50"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Rate.Equal(mustDecimal(t, "12.50")) {
		t.Fatalf("expected base rate 12.50, got %s", res.Rate)
	}
	if res.RuleID != nil {
		t.Fatalf("expected no rule applied, got %s", res.RuleID)
	}
}

func TestResolveRateRejectsNegativeBaseRate(t *testing.T) {
	_, err := ResolveRate(RateContext{}, mustDecimal(t, "-1"), nil)
	if !errors.Is(err, ErrRuleResolution) {
		t.Fatalf("expected ErrRuleResolution, got %v", err)
	}
}

func TestResolveRateSpecificityOrdering(t *testing.T) {
	customerID := uuidMust("11111111-1111-1111-1111-111111111111")
	serviceID := uuidMust("22222222-2222-2222-2222-222222222222")
	ctx := RateContext{
		CustomerID:      customerID,
		CustomerType:    "medical",
		ServiceID:       serviceID,
		ServiceCategory: "shredding",
	}

	global := PriceRule{
		ID:     uuidMust("00000000-0000-0000-0000-00000000000a"),
		Kind:   AdjustPercentDiscount,
		Value:  mustDecimal(t, "5"),
		Active: true,
	}
	serviceOnly := PriceRule{
		ID:        uuidMust("00000000-0000-0000-0000-00000000000b"),
		ServiceID: &serviceID,
		Kind:      AdjustPercentDiscount,
		Value:     mustDecimal(t, "10"),
		Active:    true,
	}
	customerOnly := PriceRule{
		ID:         uuidMust("00000000-0000-0000-0000-00000000000c"),
		CustomerID: &customerID,
		Kind:       AdjustPercentDiscount,
		Value:      mustDecimal(t, "15"),
		Active:     true,
	}
	customerService := PriceRule{
		ID:         uuidMust("00000000-0000-0000-0000-00000000000d"),
		CustomerID: &customerID,
		ServiceID:  &serviceID,
		Kind:       AdjustPercentDiscount,
		Value:      mustDecimal(t, "20"),
		Active:     true,
	}

	// Ordering of the input slice must not influence the winner.
	permutations := [][]PriceRule{
		{global, serviceOnly, customerOnly, customerService},
		{customerService, customerOnly, serviceOnly, global},
		{serviceOnly, customerService, global, customerOnly},
	}
	for _, rules := range permutations {
		res, err := ResolveRate(ctx, mustDecimal(t, "100.00"), rules)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.RuleID == nil || *res.RuleID != customerService.ID {
			t.Fatalf("expected customer+service rule to win, got %v", res.RuleID)
		}
		if !res.Rate.Equal(mustDecimal(t, "80.00")) {
			t.Fatalf("expected rate 80.00, got %s", res.Rate)
		}
	}
}

func TestResolveRateCustomerBeatsService(t *testing.T) {
	customerID := uuid.New()
	serviceID := uuid.New()
	ctx := RateContext{CustomerID: customerID, ServiceID: serviceID}
	customerOnly := PriceRule{ID: uuid.New(), CustomerID: &customerID, Kind: AdjustRateOverride, Value: mustDecimal(t, "7.00"), Active: true}
	serviceOnly := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "9.00"), Active: true}

	res, err := ResolveRate(ctx, mustDecimal(t, "10.00"), []PriceRule{serviceOnly, customerOnly})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RuleID == nil || *res.RuleID != customerOnly.ID {
		t.Fatalf("expected customer rule to win")
	}
	if !res.Rate.Equal(mustDecimal(t, "7.00")) {
		t.Fatalf("expected 7.00, got %s", res.Rate)
	}
}

func TestResolveRatePriorityTieBreak(t *testing.T) {
	serviceID := uuid.New()
	ctx := RateContext{CustomerID: uuid.New(), ServiceID: serviceID}
	low := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "5.00"), Priority: 1, Active: true}
	high := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "6.00"), Priority: 10, Active: true}

	res, err := ResolveRate(ctx, mustDecimal(t, "10.00"), []PriceRule{high, low})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RuleID == nil || *res.RuleID != low.ID {
		t.Fatalf("expected lower priority value to win")
	}
}

func TestResolveRateIdentifierTieBreakIsDeterministic(t *testing.T) {
	serviceID := uuid.New()
	ctx := RateContext{CustomerID: uuid.New(), ServiceID: serviceID}
	a := PriceRule{ID: uuidMust("00000000-0000-0000-0000-000000000001"), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "5.00"), Active: true}
	b := PriceRule{ID: uuidMust("00000000-0000-0000-0000-000000000002"), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "6.00"), Active: true}

	first, err := ResolveRate(ctx, mustDecimal(t, "10.00"), []PriceRule{a, b})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := ResolveRate(ctx, mustDecimal(t, "10.00"), []PriceRule{b, a})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if *first.RuleID != *second.RuleID || *first.RuleID != a.ID {
		t.Fatalf("tie-break not deterministic: %s vs %s", first.RuleID, second.RuleID)
	}
}

func TestResolveRateFiltersInactiveAndExpired(t *testing.T) {
	serviceID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	ctx := RateContext{CustomerID: uuid.New(), ServiceID: serviceID, Now: now}

	inactive := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "1.00")}
	expired := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "2.00"), Active: true, ValidTo: &past}
	future := past.Add(96 * time.Hour)
	notYet := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: AdjustRateOverride, Value: mustDecimal(t, "3.00"), Active: true, ValidFrom: &future}

	res, err := ResolveRate(ctx, mustDecimal(t, "10.00"), []PriceRule{inactive, expired, notYet})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RuleID != nil {
		t.Fatalf("expected no applicable rule, got %s", res.RuleID)
	}
	if !res.Rate.Equal(mustDecimal(t, "10.00")) {
		t.Fatalf("expected base rate, got %s", res.Rate)
	}
}

func TestResolveRateAdjustments(t *testing.T) {
	serviceID := uuid.New()
	ctx := RateContext{CustomerID: uuid.New(), ServiceID: serviceID}
	base := mustDecimal(t, "20.00")

	cases := []struct {
		name  string
		kind  AdjustmentKind
		value string
		want  string
	}{
		{"percent discount", AdjustPercentDiscount, "25", "15.00"},
		{"percent markup", AdjustPercentMarkup, "10", "22.00"},
		{"amount discount", AdjustAmountDiscount, "5.50", "14.50"},
		{"amount discount floors at zero", AdjustAmountDiscount, "30", "0.00"},
		{"rate override", AdjustRateOverride, "3.33", "3.33"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := PriceRule{ID: uuid.New(), ServiceID: &serviceID, Kind: tc.kind, Value: mustDecimal(t, tc.value), Active: true}
			res, err := ResolveRate(ctx, base, []PriceRule{rule})
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !res.Rate.Equal(mustDecimal(t, tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, res.Rate)
			}
		})
	}
}

func TestResolveRateSegmentAndCategoryScopes(t *testing.T) {
	ctx := RateContext{
		CustomerID:      uuid.New(),
		CustomerType:    "medical",
		ServiceID:       uuid.New(),
		ServiceCategory: "shredding",
	}
	segment := PriceRule{ID: uuid.New(), CustomerType: "medical", Kind: AdjustPercentDiscount, Value: mustDecimal(t, "10"), Active: true}
	category := PriceRule{ID: uuid.New(), ServiceCategory: "shredding", Kind: AdjustPercentDiscount, Value: mustDecimal(t, "20"), Active: true}

	// Segment scoping counts as customer scope and ranks above service scope.
	res, err := ResolveRate(ctx, mustDecimal(t, "100.00"), []PriceRule{category, segment})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RuleID == nil || *res.RuleID != segment.ID {
		t.Fatalf("expected segment rule to win")
	}

	otherSegment := PriceRule{ID: uuid.New(), CustomerType: "legal", Kind: AdjustRateOverride, Value: mustDecimal(t, "1.00"), Active: true}
	res, err = ResolveRate(ctx, mustDecimal(t, "100.00"), []PriceRule{otherSegment, category})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RuleID == nil || *res.RuleID != category.ID {
		t.Fatalf("expected category rule when segment does not match")
	}
}
