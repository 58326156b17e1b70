package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/checkout/internal/db"
	"github.com/nkiryanov/checkout/internal/handlers"
	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/paypal"
	"github.com/nkiryanov/checkout/internal/repository/postgres"
	"github.com/nkiryanov/checkout/internal/service/checkout"
	"github.com/nkiryanov/checkout/internal/service/pass"
	"github.com/nkiryanov/checkout/internal/service/reconciler"
)

const (
	shutdownTimeout = 5 * time.Second
	redisKeyPrefix  = "checkout"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	reconciler *reconciler.Reconciler
	pool       *pgxpool.Pool
	redis      *redis.Client
	logger     logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	catalog, err := checkout.NewCatalog(c.Product())
	if err != nil {
		return nil, fmt.Errorf("error while creating catalog: %w", err)
	}

	issuer, err := pass.New(pass.Config{SecretKey: c.PassSecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating pass issuer: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Tokens are shared through redis if configured, kept in memory otherwise
	var (
		store       paypal.TokenStore = paypal.NewMemoryStore()
		redisClient *redis.Client
	)
	if c.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		store = paypal.NewRedisStore(redisClient, redisKeyPrefix, nil)
	}

	gateway := paypal.New(paypal.Config{
		BrandName:        c.PayPalBrandName,
		ReturnURL:        c.PayPalReturnURL,
		CancelURL:        c.PayPalCancelURL,
		BreakerThreshold: uint32(c.PayPalBreakerThreshold),
	}, store, paypal.WithLogger(logger.With("component", "paypal")))

	storage := postgres.NewStorage(pool)

	checkoutService, err := checkout.NewService(checkout.Config{
		Credentials: paypal.Credentials{
			ClientID:     c.PayPalClientID,
			ClientSecret: c.PayPalClientSecret,
			Sandbox:      c.PayPalSandbox,
		},
		Logger: logger.With("component", "checkout"),
	}, catalog, gateway, storage)
	if err != nil {
		pool.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("error while creating checkout service. Err: %w", err)
	}

	r := reconciler.New(reconciler.Config{
		Interval:    c.ReconcileInterval,
		AutoCapture: c.AutoCapture,
		Logger:      logger.With("component", "reconciler"),
	}, checkoutService)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(checkoutService, issuer, pool, logger),
		reconciler: r,
		pool:       pool,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// Run starts http server and reconciler, closes them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	reconcilerDone := s.reconciler.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-reconcilerDone

	return err
}

func (s *ServerApp) close() {
	s.pool.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
