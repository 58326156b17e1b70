package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/handlers/render"
	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/paypal"
	"github.com/nkiryanov/checkout/internal/service/pass"
	"github.com/nkiryanov/checkout/internal/service/validate"
)

type checkoutService interface {
	Products() []models.Product

	// Has to return apperrors.ErrProductNotFound if product is not in catalog
	StartCheckout(ctx context.Context, productID string) (models.Order, paypal.Order, error)

	// Has to return apperrors.ErrOrderNotFound if order is not known locally
	Capture(ctx context.Context, providerOrderID string) (models.Order, paypal.Capture, error)
	Refresh(ctx context.Context, providerOrderID string) (models.Order, paypal.Order, error)
	Get(ctx context.Context, providerOrderID string) (models.Order, error)
}

type passIssuer interface {
	// Has to return apperrors.ErrOrderNotCompleted for not paid order
	Issue(order models.Order) (pass.Pass, error)
}

var pathValidator = validate.New()

type CreateOrderRequest struct {
	ProductID string `json:"product_id" validate:"required,max=127"`
}

type OrderResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	ProductID  string          `json:"product_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CreatedAt  time.Time       `json:"created_at"`
	ApproveURL string          `json:"approve_url,omitempty"`
	Links      []paypal.Link   `json:"links,omitempty"`
}

type CaptureResponse struct {
	OrderResponse
	Captures []paypal.CaptureDetail `json:"captures,omitempty"`
}

type PassResponse struct {
	Pass      string    `json:"pass"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newOrderResponse(order models.Order, ppOrder *paypal.Order) OrderResponse {
	res := OrderResponse{
		ID:        order.ProviderOrderID,
		Status:    order.Status,
		ProductID: order.ProductID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		CreatedAt: order.CreatedAt,
	}

	// Buyer still has something to do at PayPal
	if ppOrder != nil && order.Pending() {
		res.ApproveURL = ppOrder.ApproveURL()
		res.Links = ppOrder.Links
	}

	return res
}

type CheckoutHandler struct {
	checkout checkoutService
	issuer   passIssuer
	logger   logger.Logger
}

func NewCheckout(checkout checkoutService, issuer passIssuer, logger logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, issuer: issuer, logger: logger}
}

func (h *CheckoutHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", h.products)
	mux.HandleFunc("POST /checkout/orders", h.create)
	mux.HandleFunc("GET /checkout/orders/{id}", h.get)
	mux.HandleFunc("POST /checkout/orders/{id}/capture", h.capture)
	mux.HandleFunc("GET /checkout/orders/{id}/pass", h.pass)

	return mux
}

func (h *CheckoutHandler) products(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, h.checkout.Products())
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request) {
	req, err := render.BindAndValidate[CreateOrderRequest](w, r)
	if err != nil {
		return
	}

	order, ppOrder, err := h.checkout.StartCheckout(r.Context(), req.ProductID)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSONWithStatus(w, newOrderResponse(order, &ppOrder), http.StatusCreated)
}

func (h *CheckoutHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, ppOrder, err := h.checkout.Refresh(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, newOrderResponse(order, &ppOrder))
}

func (h *CheckoutHandler) capture(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, capture, err := h.checkout.Capture(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}

	res := CaptureResponse{OrderResponse: newOrderResponse(order, nil)}
	for _, unit := range capture.PurchaseUnits {
		res.Captures = append(res.Captures, unit.Payments.Captures...)
	}

	render.JSON(w, res)
}

func (h *CheckoutHandler) pass(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}

	p, err := h.issuer.Issue(order)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, PassResponse{Pass: p.Value, ExpiresAt: p.ExpiresAt})
}

// orderID returns PayPal order id from path, renders error if it is not one
func orderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")

	if err := pathValidator.Var(id, "required,max=64,alphanum"); err != nil {
		render.ServiceError(w, "Invalid order id", http.StatusBadRequest)
		return "", false
	}

	return id, true
}

func (h *CheckoutHandler) renderError(w http.ResponseWriter, err error) {
	var ppErr *paypal.Error

	switch {
	case errors.Is(err, apperrors.ErrProductNotFound):
		render.ServiceError(w, "Product not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrOrderNotFound):
		render.ServiceError(w, "Order not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrOrderNotCompleted):
		render.ServiceError(w, "Order is not paid yet", http.StatusConflict)
	case errors.As(err, &ppErr) && ppErr.Kind == paypal.KindStatus && ppErr.StatusCode < http.StatusInternalServerError:
		h.logger.Warn("PayPal rejected request", "error", err)
		render.ProviderError(w, ppErr, http.StatusUnprocessableEntity)
	case errors.As(err, &ppErr) && ppErr.Kind != paypal.KindRequest:
		h.logger.Error("PayPal request failed", "error", err)
		render.ServiceError(w, "Payment provider is unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("Internal error", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
