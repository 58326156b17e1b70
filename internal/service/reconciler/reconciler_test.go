package reconciler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/paypal"
	"github.com/nkiryanov/checkout/internal/repository"
)

// fakeOrders keeps local orders and what PayPal says about them
type fakeOrders struct {
	mu       sync.Mutex
	local    map[string]models.Order
	provider map[string]string // missing means PayPal returns 404
	captured []string
	listed   int
	expires  int

	// Runs after refresh returned: the moment buyer may pay
	afterRefresh func(id string)
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{local: make(map[string]models.Order), provider: make(map[string]string)}
}

func (f *fakeOrders) add(id string, local string, provider string, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.local[id] = models.Order{ProviderOrderID: id, Status: local, CreatedAt: createdAt}
	if provider != "" {
		f.provider[id] = provider
	}
}

func (f *fakeOrders) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local[id].Status
}

func (f *fakeOrders) ListOrders(_ context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listed++
	var orders []models.Order
	for _, o := range f.local {
		for _, s := range opts.Statuses {
			if o.Status == s {
				orders = append(orders, o)
			}
		}
	}
	return orders, nil
}

func (f *fakeOrders) Refresh(_ context.Context, id string) (models.Order, paypal.Order, error) {
	f.mu.Lock()
	status, ok := f.provider[id]
	o := f.local[id]
	if ok {
		o.Status = status
		f.local[id] = o
	}
	afterRefresh := f.afterRefresh
	f.mu.Unlock()

	if !ok {
		return models.Order{}, paypal.Order{}, &paypal.Error{Op: "get order", Kind: paypal.KindStatus, StatusCode: http.StatusNotFound}
	}
	if afterRefresh != nil {
		afterRefresh(id)
	}
	return o, paypal.Order{ID: id, Status: status}, nil
}

func (f *fakeOrders) complete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.provider[id] = models.OrderCompleted
	o := f.local[id]
	o.Status = models.OrderCompleted
	f.local[id] = o
}

func (f *fakeOrders) Capture(_ context.Context, id string) (models.Order, paypal.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.captured = append(f.captured, id)
	f.provider[id] = models.OrderCompleted

	o := f.local[id]
	o.Status = models.OrderCompleted
	f.local[id] = o
	return o, paypal.Capture{ID: id, Status: models.OrderCompleted}, nil
}

func (f *fakeOrders) Expire(_ context.Context, id string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expires++
	o, ok := f.local[id]
	if !ok {
		return o, apperrors.ErrOrderNotFound
	}
	if o.Status != models.OrderCreated {
		return o, apperrors.ErrOrderStatusChanged
	}
	o.Status = models.OrderExpired
	f.local[id] = o
	return o, nil
}

func TestReconciler(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	run := func(t *testing.T, cfg Config, orders *fakeOrders) (stop func()) {
		cfg.Interval = 10 * time.Millisecond
		cfg.Clock = clock.NewManual(now)

		ctx, cancel := context.WithCancel(t.Context())
		done := New(cfg, orders).Run(ctx)

		return func() {
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("reconciler should stop when context is done")
			}
		}
	}

	t.Run("defaults", func(t *testing.T) {
		r := New(Config{}, newFakeOrders())

		require.Equal(t, defaultInterval, r.producer.interval)
		require.Equal(t, defaultBatchSize, r.producer.batchSize)
		require.Equal(t, defaultCountWorkers, r.consumer.countWorkers)
		require.Equal(t, defaultMaxAge, r.consumer.maxAge)
		require.False(t, r.consumer.autoCapture)
	})

	t.Run("refresh approved order", func(t *testing.T) {
		orders := newFakeOrders()
		orders.add("PP-1", models.OrderCreated, models.OrderApproved, now)

		stop := run(t, Config{}, orders)
		defer stop()

		require.Eventually(t, func() bool {
			return orders.status("PP-1") == models.OrderApproved
		}, time.Second, 10*time.Millisecond)

		orders.mu.Lock()
		defer orders.mu.Unlock()
		require.Empty(t, orders.captured, "should not capture without auto capture")
	})

	t.Run("auto capture approved order", func(t *testing.T) {
		orders := newFakeOrders()
		orders.add("PP-1", models.OrderCreated, models.OrderApproved, now)

		stop := run(t, Config{AutoCapture: true}, orders)
		defer stop()

		require.Eventually(t, func() bool {
			return orders.status("PP-1") == models.OrderCompleted
		}, time.Second, 10*time.Millisecond)

		stop()
		require.Equal(t, []string{"PP-1"}, orders.captured, "completed order should not be captured again")
	})

	t.Run("expire old not approved orders", func(t *testing.T) {
		orders := newFakeOrders()
		orders.add("PP-OLD", models.OrderCreated, models.OrderCreated, now.Add(-4*time.Hour))
		orders.add("PP-GONE", models.OrderCreated, "", now.Add(-4*time.Hour))
		orders.add("PP-NEW", models.OrderCreated, models.OrderCreated, now.Add(-time.Hour))

		stop := run(t, Config{}, orders)
		defer stop()

		require.Eventually(t, func() bool {
			return orders.status("PP-OLD") == models.OrderExpired && orders.status("PP-GONE") == models.OrderExpired
		}, time.Second, 10*time.Millisecond)

		stop()
		require.Equal(t, models.OrderCreated, orders.status("PP-NEW"), "order in approval window should stay")
	})

	t.Run("order paid between refresh and expire stays completed", func(t *testing.T) {
		orders := newFakeOrders()
		orders.add("PP-1", models.OrderCreated, models.OrderCreated, now.Add(-4*time.Hour))
		orders.afterRefresh = orders.complete

		stop := run(t, Config{}, orders)
		defer stop()

		require.Eventually(t, func() bool {
			orders.mu.Lock()
			defer orders.mu.Unlock()
			return orders.expires >= 1
		}, time.Second, 10*time.Millisecond)

		stop()
		require.Equal(t, models.OrderCompleted, orders.status("PP-1"))
	})

	t.Run("old approved order not expired", func(t *testing.T) {
		orders := newFakeOrders()
		orders.add("PP-1", models.OrderApproved, models.OrderApproved, now.Add(-4*time.Hour))

		stop := run(t, Config{}, orders)
		defer stop()

		require.Eventually(t, func() bool {
			orders.mu.Lock()
			defer orders.mu.Unlock()
			return orders.listed >= 3
		}, time.Second, 10*time.Millisecond)

		stop()
		require.Equal(t, models.OrderApproved, orders.status("PP-1"))
	})
}
