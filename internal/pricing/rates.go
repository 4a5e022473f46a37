package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/money"
)

// AdjustmentKind identifies how a price rule adjusts the catalog base rate.
type AdjustmentKind string

const (
	AdjustPercentDiscount AdjustmentKind = "percent_discount"
	AdjustPercentMarkup   AdjustmentKind = "percent_markup"
	AdjustAmountDiscount  AdjustmentKind = "amount_discount"
	AdjustRateOverride    AdjustmentKind = "rate_override"
)

// Valid reports whether the adjustment kind is known.
func (k AdjustmentKind) Valid() bool {
	switch k {
	case AdjustPercentDiscount, AdjustPercentMarkup, AdjustAmountDiscount, AdjustRateOverride:
		return true
	}
	return false
}

// PriceRule is a read-only pricing adjustment record. Scope is expressed by
// which target fields are set: a nil/empty field matches everything, a set
// field must match the resolution context exactly.
type PriceRule struct {
	ID              uuid.UUID
	CustomerID      *uuid.UUID
	CustomerType    string
	ServiceID       *uuid.UUID
	ServiceCategory string
	Kind            AdjustmentKind
	Value           decimal.Decimal
	Priority        int32
	ValidFrom       *time.Time
	ValidTo         *time.Time
	Active          bool
}

// RateContext carries the (customer, service) pair a rate is resolved for.
type RateContext struct {
	CustomerID      uuid.UUID
	CustomerType    string
	ServiceID       uuid.UUID
	ServiceCategory string
	Now             time.Time
}

// Resolution is the outcome of rate resolution: the effective unit rate and
// the rule that produced it, nil when the base rate applied unchanged.
type Resolution struct {
	Rate   decimal.Decimal
	RuleID *uuid.UUID
}

// Specificity bands, most specific first. Customer-type scoping counts as a
// customer match and service-category scoping as a service match, one step
// below the corresponding exact match inside the same band.
const (
	bandCustomerService = iota
	bandCustomer
	bandService
	bandGlobal
)

func (r PriceRule) matches(ctx RateContext, now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return false
	}
	if r.CustomerID != nil && *r.CustomerID != ctx.CustomerID {
		return false
	}
	if r.CustomerType != "" && r.CustomerType != ctx.CustomerType {
		return false
	}
	if r.ServiceID != nil && *r.ServiceID != ctx.ServiceID {
		return false
	}
	if r.ServiceCategory != "" && (ctx.ServiceCategory == "" || r.ServiceCategory != ctx.ServiceCategory) {
		return false
	}
	return true
}

func (r PriceRule) customerScore() int {
	switch {
	case r.CustomerID != nil:
		return 0
	case r.CustomerType != "":
		return 1
	}
	return 2
}

func (r PriceRule) serviceScore() int {
	switch {
	case r.ServiceID != nil:
		return 0
	case r.ServiceCategory != "":
		return 1
	}
	return 2
}

func (r PriceRule) band() int {
	cust := r.customerScore() < 2
	svc := r.serviceScore() < 2
	switch {
	case cust && svc:
		return bandCustomerService
	case cust:
		return bandCustomer
	case svc:
		return bandService
	}
	return bandGlobal
}

// less orders rules from most to least preferred: specificity band, exactness
// within the band, declared priority ascending, then rule ID for a final
// deterministic tie-break independent of input ordering.
func less(a, b PriceRule) bool {
	if ab, bb := a.band(), b.band(); ab != bb {
		return ab < bb
	}
	if ae, be := a.customerScore()+a.serviceScore(), b.customerScore()+b.serviceScore(); ae != be {
		return ae < be
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID.String() < b.ID.String()
}

// ResolveRate selects the effective unit rate for the context by ranking the
// applicable rules against the catalog base rate. Rules never stack: the
// single most specific survivor wins. An empty or fully non-matching rule set
// degenerates to the base rate with a nil RuleID.
func ResolveRate(ctx RateContext, baseRate decimal.Decimal, rules []PriceRule) (Resolution, error) {
	if baseRate.IsNegative() {
		return Resolution{}, fmt.Errorf("base rate %s is invalid: %w", baseRate, ErrRuleResolution)
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	matched := make([]PriceRule, 0, len(rules))
	for _, r := range rules {
		if r.matches(ctx, now) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return Resolution{Rate: money.Round2(baseRate)}, nil
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	winner := matched[0]
	rate, err := winner.apply(baseRate)
	if err != nil {
		return Resolution{}, err
	}
	id := winner.ID
	return Resolution{Rate: money.Round2(rate), RuleID: &id}, nil
}

func (r PriceRule) apply(baseRate decimal.Decimal) (decimal.Decimal, error) {
	switch r.Kind {
	case AdjustPercentDiscount:
		return baseRate.Mul(decimal.NewFromInt(1).Sub(r.Value.Div(decimal.NewFromInt(100)))), nil
	case AdjustPercentMarkup:
		return baseRate.Mul(decimal.NewFromInt(1).Add(r.Value.Div(decimal.NewFromInt(100)))), nil
	case AdjustAmountDiscount:
		adjusted := baseRate.Sub(r.Value)
		if adjusted.IsNegative() {
			return decimal.Zero, nil
		}
		return adjusted, nil
	case AdjustRateOverride:
		return r.Value, nil
	}
	return decimal.Zero, fmt.Errorf("unknown adjustment kind %q: %w", r.Kind, ErrRuleResolution)
}
