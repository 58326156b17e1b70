package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/checkout/internal/models"
)

// Storage gives access to repositories
// Repositories got from storage passed to InTx callback share one transaction
type Storage interface {
	Order() OrderRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type ListOrdersOpts struct {
	// Only orders with the statuses. All statuses if empty
	Statuses []string

	// Only orders created before the moment. Not applied if zero
	CreatedBefore time.Time

	// Zero means no limit
	Limit int
}

// Order repository interface
type OrderRepo interface {
	// Create order as is
	// If order with the same provider order id exists has to return apperrors.ErrOrderAlreadyExists
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// Get order by provider order id
	// forUpdate locks the row till the transaction end
	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, providerOrderID string, forUpdate bool) (models.Order, error)

	// Set status observed at provider if current status is still `from`
	// If order not found must return apperrors.ErrOrderNotFound
	// If status is not `from` anymore must return the current order and apperrors.ErrOrderStatusChanged
	SetStatus(ctx context.Context, providerOrderID string, from string, to string, modifiedAt time.Time) (models.Order, error)

	// List orders oldest first
	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)
}
