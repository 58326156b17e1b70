package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/paypal"
	"github.com/nkiryanov/checkout/internal/repository"
)

// Gateway is PayPal checkout API
type Gateway interface {
	CreateOrder(ctx context.Context, creds paypal.Credentials, product models.Product) (paypal.Order, error)
	CaptureOrder(ctx context.Context, creds paypal.Credentials, orderID string) (paypal.Capture, error)
	GetOrderDetails(ctx context.Context, creds paypal.Credentials, orderID string) (paypal.Order, error)
}

type Config struct {
	// Merchant credentials every order is created with
	Credentials paypal.Credentials

	// If not set system clock is used
	Clock clock.Clock

	// If not set logs are dropped
	Logger logger.Logger
}

// Service keeps local orders in line with what PayPal reports
type Service struct {
	creds   paypal.Credentials
	catalog *Catalog
	gateway Gateway
	storage repository.Storage
	clock   clock.Clock
	logger  logger.Logger
}

func NewService(cfg Config, catalog *Catalog, gateway Gateway, storage repository.Storage) (*Service, error) {
	if catalog == nil || gateway == nil || storage == nil {
		return nil, errors.New("catalog, gateway and storage must not be nil")
	}
	if cfg.Credentials.ClientID == "" || cfg.Credentials.ClientSecret == "" {
		return nil, errors.New("paypal credentials must not be empty")
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Service{
		creds:   cfg.Credentials,
		catalog: catalog,
		gateway: gateway,
		storage: storage,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

func (s *Service) Products() []models.Product {
	return s.catalog.Products()
}

// StartCheckout creates PayPal order for the product and saves local record of it
func (s *Service) StartCheckout(ctx context.Context, productID string) (models.Order, paypal.Order, error) {
	product, err := s.catalog.Product(productID)
	if err != nil {
		return models.Order{}, paypal.Order{}, err
	}

	ppOrder, err := s.gateway.CreateOrder(ctx, s.creds, product)
	if err != nil {
		return models.Order{}, paypal.Order{}, err
	}

	now := s.clock.Now()
	order, err := s.storage.Order().CreateOrder(ctx, models.Order{
		ID:              uuid.New(),
		ProviderOrderID: ppOrder.ID,
		ProductID:       product.ID,
		Amount:          product.Price,
		Currency:        product.Currency,
		Status:          ppOrder.Status,
		CreatedAt:       now,
		ModifiedAt:      now,
	})
	if err != nil {
		// Not approved PayPal order expires by itself, nothing to undo
		s.logger.Error("Failed to save created order", "provider_order_id", ppOrder.ID, "error", err)
		return models.Order{}, paypal.Order{}, fmt.Errorf("error while saving order. Err: %w", err)
	}

	s.logger.Info("Checkout started", "order_id", order.ID, "provider_order_id", order.ProviderOrderID, "product_id", product.ID)
	return order, ppOrder, nil
}

// Capture captures approved order and saves the status PayPal reports
// Local row stays locked while capturing, so one order is never captured twice concurrently
func (s *Service) Capture(ctx context.Context, providerOrderID string) (models.Order, paypal.Capture, error) {
	var order models.Order
	var capture paypal.Capture

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error

		order, err = storage.Order().GetOrder(ctx, providerOrderID, true)
		if err != nil {
			return err
		}

		// Captured already, by reconciler or previous request
		if order.Status == models.OrderCompleted {
			capture = paypal.Capture{ID: order.ProviderOrderID, Status: order.Status}
			return nil
		}

		capture, err = s.gateway.CaptureOrder(ctx, s.creds, providerOrderID)
		if err != nil {
			return err
		}

		order, err = storage.Order().SetStatus(ctx, providerOrderID, order.Status, capture.Status, s.clock.Now())
		return err
	})
	if err != nil {
		return models.Order{}, paypal.Capture{}, err
	}

	s.logger.Info("Order captured", "order_id", order.ID, "provider_order_id", providerOrderID, "status", order.Status)
	return order, capture, nil
}

// Refresh fetches order from PayPal and saves its status if changed
func (s *Service) Refresh(ctx context.Context, providerOrderID string) (models.Order, paypal.Order, error) {
	order, err := s.storage.Order().GetOrder(ctx, providerOrderID, false)
	if err != nil {
		return models.Order{}, paypal.Order{}, err
	}

	ppOrder, err := s.gateway.GetOrderDetails(ctx, s.creds, providerOrderID)
	if err != nil {
		return models.Order{}, paypal.Order{}, err
	}

	if ppOrder.Status == order.Status {
		return order, ppOrder, nil
	}

	s.logger.Debug("Order status changed", "provider_order_id", providerOrderID, "from", order.Status, "to", ppOrder.Status)
	updated, err := s.storage.Order().SetStatus(ctx, providerOrderID, order.Status, ppOrder.Status, s.clock.Now())
	switch {
	case errors.Is(err, apperrors.ErrOrderStatusChanged):
		// Capture or another refresh wrote while PayPal was asked; its status is not older than ours
		s.logger.Debug("Order changed while refreshing, keeping stored status", "provider_order_id", providerOrderID, "status", updated.Status)
		return updated, ppOrder, nil
	case err != nil:
		return models.Order{}, paypal.Order{}, err
	}

	return updated, ppOrder, nil
}

// Get returns local record only, PayPal is not asked
func (s *Service) Get(ctx context.Context, providerOrderID string) (models.Order, error) {
	return s.storage.Order().GetOrder(ctx, providerOrderID, false)
}

// ListOrders lists local orders
func (s *Service) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	return s.storage.Order().ListOrders(ctx, opts)
}

// Expire marks order buyer never approved
// Only CREATED order may expire, otherwise apperrors.ErrOrderStatusChanged is returned with the stored order
func (s *Service) Expire(ctx context.Context, providerOrderID string) (models.Order, error) {
	order, err := s.storage.Order().SetStatus(ctx, providerOrderID, models.OrderCreated, models.OrderExpired, s.clock.Now())
	if err != nil {
		return order, err
	}

	s.logger.Info("Order expired", "order_id", order.ID, "provider_order_id", providerOrderID)
	return order, nil
}
