package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/checkout/internal/models"
)

const intentCapture = "CAPTURE"

var errOrderIDRequired = errors.New("order id is required")

// Currencies PayPal accepts without fraction digits
var zeroDecimalCurrencies = map[string]bool{
	"HUF": true,
	"JPY": true,
	"TWD": true,
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// Order as PayPal reports it. Never changed locally.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`

	// Response body as is
	Raw json.RawMessage `json:"-"`
}

// Link returns href of the link with relation rel
func (o Order) Link(rel string) (string, bool) {
	for _, l := range o.Links {
		if l.Rel == rel {
			return l.Href, true
		}
	}
	return "", false
}

// ApproveURL is where the buyer has to be sent to approve the order
func (o Order) ApproveURL() string {
	if href, ok := o.Link("approve"); ok {
		return href
	}
	href, _ := o.Link("payer-action")
	return href
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type CaptureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

type CapturedUnit struct {
	ReferenceID string `json:"reference_id"`
	Payments    struct {
		Captures []CaptureDetail `json:"captures"`
	} `json:"payments"`
}

// Capture is PayPal capture response
type Capture struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []CapturedUnit `json:"purchase_units"`

	// Response body as is
	Raw json.RawMessage `json:"-"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Description string `json:"description,omitempty"`
	Amount      Amount `json:"amount"`
}

type applicationContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	LandingPage        string `json:"landing_page"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

// FormatPrice renders price as PayPal expects: plain decimal, no grouping,
// two fraction digits or none for zero-decimal currencies
func FormatPrice(price decimal.Decimal, currency string) string {
	places := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		places = 0
	}
	return price.StringFixed(places)
}

// CreateOrder creates order with one purchase unit for the product, to be captured after buyer approval
func (c *Client) CreateOrder(ctx context.Context, creds Credentials, product models.Product) (Order, error) {
	const op = "create order"

	body, err := json.Marshal(createOrderRequest{
		Intent: intentCapture,
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: product.ID,
			Description: product.Name,
			Amount: Amount{
				CurrencyCode: product.Currency,
				Value:        FormatPrice(product.Price, product.Currency),
			},
		}},
		ApplicationContext: applicationContext{
			BrandName:          c.brandName,
			LandingPage:        "NO_PREFERENCE",
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
			ReturnURL:          c.returnURL,
			CancelURL:          c.cancelURL,
		},
	})
	if err != nil {
		return Order{}, &Error{Op: op, Kind: KindRequest, Err: err}
	}

	var order Order
	err = c.call(ctx, op, creds, http.MethodPost, "/v2/checkout/orders", body, &order)
	if err != nil {
		return Order{}, err
	}

	c.logger.Info("PayPal order created", "order_id", order.ID, "status", order.Status, "product_id", product.ID)
	return order, nil
}

// CaptureOrder captures approved order
// If the order is not approved PayPal error is returned as is
func (c *Client) CaptureOrder(ctx context.Context, creds Credentials, orderID string) (Capture, error) {
	const op = "capture order"

	if orderID == "" {
		return Capture{}, &Error{Op: op, Kind: KindRequest, Err: errOrderIDRequired}
	}

	var capture Capture
	err := c.call(ctx, op, creds, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", []byte("{}"), &capture)
	if err != nil {
		return Capture{}, err
	}

	c.logger.Info("PayPal order captured", "order_id", capture.ID, "status", capture.Status)
	return capture, nil
}

// GetOrderDetails returns current order state, no side effects
func (c *Client) GetOrderDetails(ctx context.Context, creds Credentials, orderID string) (Order, error) {
	const op = "get order"

	if orderID == "" {
		return Order{}, &Error{Op: op, Kind: KindRequest, Err: errOrderIDRequired}
	}

	var order Order
	err := c.call(ctx, op, creds, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, &order)
	if err != nil {
		return Order{}, err
	}

	return order, nil
}

// call performs bearer authenticated JSON request
func (c *Client) call(ctx context.Context, op string, creds Credentials, method string, path string, body []byte, out any) error {
	token, err := c.AccessToken(ctx, creds)
	if err != nil {
		return err
	}

	var req *http.Request
	if body != nil {
		req, err = newJSONRequest(ctx, method, c.baseURL(creds.Sandbox)+path, token, bytes.NewReader(body))
	} else {
		req, err = newJSONRequest(ctx, method, c.baseURL(creds.Sandbox)+path, token, nil)
	}
	if err != nil {
		return &Error{Op: op, Kind: KindRequest, Err: err}
	}

	_, err = c.do(op, req, out)
	return err
}

// decode unmarshals body and keeps it verbatim in Raw of known response types
func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}

	raw := json.RawMessage(bytes.Clone(body))
	switch v := out.(type) {
	case *Order:
		if v.ID == "" {
			return errors.New("order id is missing")
		}
		v.Raw = raw
	case *Capture:
		if v.ID == "" {
			return errors.New("order id is missing")
		}
		v.Raw = raw
	}

	return nil
}
