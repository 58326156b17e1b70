package reconciler

import (
	"context"
	"time"

	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/paypal"
	"github.com/nkiryanov/checkout/internal/repository"
)

const (
	defaultCountWorkers = 4                // Number of workers to refresh orders
	defaultInterval     = 30 * time.Second // Interval for producing orders
	defaultBatchSize    = 100              // Orders listed per tick
	defaultMaxAge       = 3 * time.Hour    // PayPal keeps not approved order this long
	defaultPause        = 30 * time.Second // Workers pause when PayPal rate limits
)

type orderService interface {
	ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error)
	Refresh(ctx context.Context, providerOrderID string) (models.Order, paypal.Order, error)
	Capture(ctx context.Context, providerOrderID string) (models.Order, paypal.Capture, error)
	Expire(ctx context.Context, providerOrderID string) (models.Order, error)
}

// Reconciler config with sensible defaults
type Config struct {
	// How often pending orders are listed
	Interval time.Duration

	// Orders listed per tick and workers refreshing them
	BatchSize    int
	CountWorkers int

	// Capture orders as soon as buyer approves them
	AutoCapture bool

	// Not approved orders older than this are expired
	MaxAge time.Duration

	// How long workers wait after PayPal answered 429
	RateLimitPause time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

// Reconciler brings pending local orders in line with PayPal
// Buyers approve orders on PayPal side and may never come back, so somebody has to look
type Reconciler struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(cfg Config, orderService orderService) *Reconciler {
	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.Interval, defaultInterval)
	setDefaultDuration(&cfg.MaxAge, defaultMaxAge)
	setDefaultDuration(&cfg.RateLimitPause, defaultPause)

	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.CountWorkers == 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Reconciler{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			autoCapture:  cfg.AutoCapture,
			maxAge:       cfg.MaxAge,
			pause:        cfg.RateLimitPause,
			orderService: orderService,
			clock:        cfg.Clock,
			logger:       cfg.Logger,
		},
		producer: &Producer{
			interval:     cfg.Interval,
			batchSize:    cfg.BatchSize,
			orderService: orderService,
			logger:       cfg.Logger,
		},
		logger: cfg.Logger,
	}
}

// Run starts reconciling till ctx is done
// Returned channel is closed when all workers stopped
func (r *Reconciler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	// Start producer to produce orders
	producerStopped := r.producer.Produce(ctx, orderChan)

	// Start consumer to process orders
	consumerStopped := r.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		defer close(orderChan)
		<-producerStopped
		<-consumerStopped
		r.logger.Debug("Reconciler stopped")
	}()

	return idleStopped
}
