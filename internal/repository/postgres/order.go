package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, provider_order_id, product_id, amount, currency, status, created_at, modified_at`

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	const createOrder = `
	INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + orderColumns

	rows, _ := r.DB.Query(ctx, createOrder, o.ID, o.ProviderOrderID, o.ProductID, o.Amount, o.Currency, o.Status, o.CreatedAt, o.ModifiedAt)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return order, apperrors.ErrOrderAlreadyExists
		}

		return order, fmt.Errorf("db error: %w", err)
	}

	return order, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, providerOrderID string, forUpdate bool) (models.Order, error) {
	getOrder := `SELECT ` + orderColumns + ` FROM orders WHERE provider_order_id = $1`
	if forUpdate {
		getOrder += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, getOrder, providerOrderID)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

func (r *OrderRepo) SetStatus(ctx context.Context, providerOrderID string, from string, to string, modifiedAt time.Time) (models.Order, error) {
	const setStatus = `
	UPDATE orders SET status = $3, modified_at = $4
	WHERE provider_order_id = $1 AND status = $2
	RETURNING ` + orderColumns

	rows, _ := r.DB.Query(ctx, setStatus, providerOrderID, from, to, modifiedAt)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either there is no such order or somebody changed it first
		current, err := r.GetOrder(ctx, providerOrderID, false)
		if err != nil {
			return current, err
		}
		return current, apperrors.ErrOrderStatusChanged
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	// NULL parameter disables the filter; LIMIT NULL is no limit
	const listOrders = `
	SELECT ` + orderColumns + ` FROM orders
	WHERE ($1::text[] IS NULL OR status = ANY($1))
		AND ($2::timestamptz IS NULL OR created_at < $2)
	ORDER BY created_at, id
	LIMIT $3`

	var statuses []string
	if len(opts.Statuses) > 0 {
		statuses = opts.Statuses
	}

	var createdBefore *time.Time
	if !opts.CreatedBefore.IsZero() {
		createdBefore = &opts.CreatedBefore
	}

	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}

	rows, _ := r.DB.Query(ctx, listOrders, statuses, createdBefore, limit)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.ProviderOrderID, &o.ProductID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.ModifiedAt)
	return o, err
}
