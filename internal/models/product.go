package models

import (
	"github.com/shopspring/decimal"
)

// Product is what the site sells. Immutable once loaded into catalog.
type Product struct {
	ID       string          `json:"id" validate:"required,max=127"`
	Name     string          `json:"name" validate:"required,max=127"`
	Price    decimal.Decimal `json:"price" validate:"price"`
	Currency string          `json:"currency" validate:"required,iso4217"`
}
