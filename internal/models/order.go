package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses as reported by the payment provider.
// OrderExpired is local only: the buyer never approved the order in time.
const (
	OrderCreated             = "CREATED"
	OrderSaved               = "SAVED"
	OrderApproved            = "APPROVED"
	OrderVoided              = "VOIDED"
	OrderCompleted           = "COMPLETED"
	OrderPayerActionRequired = "PAYER_ACTION_REQUIRED"
	OrderExpired             = "EXPIRED"
)

// Order is the local record of a checkout started by this service.
// Status is the last status observed at the provider, never decided locally
// except for OrderExpired.
type Order struct {
	ID              uuid.UUID
	ProviderOrderID string
	ProductID       string
	Amount          decimal.Decimal
	Currency        string
	Status          string
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// Pending reports whether provider may still move the order forward.
func (o Order) Pending() bool {
	switch o.Status {
	case OrderCreated, OrderSaved, OrderApproved, OrderPayerActionRequired:
		return true
	default:
		return false
	}
}
