package reconciler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/paypal"
)

type Consumer struct {
	countWorkers int
	autoCapture  bool
	maxAge       time.Duration
	pause        time.Duration

	// PayPal may answer 429
	// If so, workers wait until the time is up
	waitUntil atomic.Int64

	orderService orderService
	clock        clock.Clock
	logger       logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order) {
	for {
		// Wait until rate limit is passed or context is done
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
			}
		}

		select {
		case <-ctx.Done():
			return

		case order, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			c.reconcile(ctx, order)
		}
	}
}

func (c *Consumer) reconcile(ctx context.Context, order models.Order) {
	expired := c.clock.Now().Sub(order.CreatedAt) > c.maxAge

	refreshed, _, err := c.orderService.Refresh(ctx, order.ProviderOrderID)
	switch {
	case err == nil:
		order = refreshed

	case paypal.IsStatus(err, http.StatusNotFound) && expired:
		// PayPal forgets orders nobody approved

	case paypal.IsStatus(err, http.StatusTooManyRequests):
		c.logger.Info("PayPal rate limit reached, waiting", "pause", c.pause)
		c.waitUntil.Store(time.Now().Add(c.pause).UnixMilli())
		return

	case errors.Is(err, context.Canceled):
		return

	default:
		c.logger.Error("Failed to refresh order", "error", err, "provider_order_id", order.ProviderOrderID)
		return
	}

	switch {
	case order.Status == models.OrderCreated && expired:
		current, err := c.orderService.Expire(ctx, order.ProviderOrderID)
		switch {
		case errors.Is(err, apperrors.ErrOrderStatusChanged):
			c.logger.Info("Order moved on before expiring, kept", "provider_order_id", order.ProviderOrderID, "status", current.Status)
		case err != nil:
			c.logger.Error("Failed to expire order", "error", err, "provider_order_id", order.ProviderOrderID)
		}

	case order.Status == models.OrderApproved && c.autoCapture:
		if _, _, err := c.orderService.Capture(ctx, order.ProviderOrderID); err != nil {
			c.logger.Error("Failed to capture approved order", "error", err, "provider_order_id", order.ProviderOrderID)
		}
	}
}
