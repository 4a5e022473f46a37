package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is a billed party that receives estimates.
type Customer struct {
	ID             uuid.UUID
	Name           string
	CustomerType   string
	ContactEmail   string
	Phone          string
	BillingAddress string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Service is a catalog entry priced per unit.
type Service struct {
	ID          uuid.UUID
	Name        string
	Category    string
	PricingUnit string
	BaseRate    decimal.Decimal
	Taxable     bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PriceRule is a persisted rate adjustment row. Scope columns left empty or
// NULL mean the rule does not constrain that dimension.
type PriceRule struct {
	ID              uuid.UUID
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
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Estimate is the aggregate root. Monetary columns cache the last computed
// totals; override columns are NULL unless a manual override is in force.
type Estimate struct {
	ID                  uuid.UUID
	Number              string
	CustomerID          uuid.UUID
	Status              string
	DiscountType        string
	DiscountValue       decimal.Decimal
	TaxRate             decimal.Decimal
	ShippingAmount      decimal.Decimal
	Subtotal            decimal.Decimal
	DiscountAmount      decimal.Decimal
	TaxableSubtotal     decimal.Decimal
	TaxAmount           decimal.Decimal
	TotalAmount         decimal.Decimal
	OverrideSubtotal    *decimal.Decimal
	OverrideTaxAmount   *decimal.Decimal
	OverrideTotalAmount *decimal.Decimal
	Notes               string
	SentAt              *time.Time
	ExpiresAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EstimateLine is one priced row on an estimate.
type EstimateLine struct {
	ID          uuid.UUID
	EstimateID  uuid.UUID
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Taxable     bool
	Position    int32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EstimateCharge is an auxiliary charge or credit on an estimate.
type EstimateCharge struct {
	ID          uuid.UUID
	EstimateID  uuid.UUID
	Kind        string
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DomainEvent is an append-only record of a state change.
type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}

// WebhookEndpoint is a subscriber URL for domain events.
type WebhookEndpoint struct {
	ID        uuid.UUID
	URL       string
	Secret    string
	Topics    []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookDelivery tracks one event delivery attempt chain to one endpoint.
type WebhookDelivery struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	EventID    uuid.UUID
	Status     string
	Attempts   int32
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
