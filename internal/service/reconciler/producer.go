package reconciler

import (
	"context"
	"time"

	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/repository"
)

// Statuses PayPal may still change
var pendingStatuses = []string{
	models.OrderCreated,
	models.OrderSaved,
	models.OrderApproved,
	models.OrderPayerActionRequired,
}

type Producer struct {
	interval     time.Duration
	batchSize    int
	logger       logger.Logger
	orderService orderService
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				orders, err := p.orderService.ListOrders(ctx, repository.ListOrdersOpts{
					Statuses: pendingStatuses,
					Limit:    p.batchSize,
				})
				if err != nil {
					p.logger.Error("Failed to list pending orders", "error", err)
					continue
				}
				p.logger.Debug("Producer tick", "pending_orders", len(orders))

				for _, order := range orders {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending orders")
						return
					case out <- order:
					}
				}
			}
		}
	}()

	return idleStopped
}
