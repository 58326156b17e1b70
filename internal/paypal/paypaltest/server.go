// Package paypaltest runs a fake of PayPal checkout API for tests
package paypaltest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Server mimics PayPal checkout API good enough to test against.
// Orders live in memory; buyer approval is simulated with Approve.
type Server struct {
	*httptest.Server

	ClientID     string
	ClientSecret string

	// Token lifetime returned by oauth endpoint, seconds
	expiresIn  atomic.Int32
	tokenCalls atomic.Int32

	mu          sync.Mutex
	orders      map[string]string // order id -> status
	lastBody    map[string][]byte // path -> last request body
	lastAuth    string
	nextOrderID int
}

// New starts a server closed on test cleanup. Accepts ClientID and ClientSecret credentials
func New(t testing.TB) *Server {
	t.Helper()

	f := &Server{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		orders:       make(map[string]string),
		lastBody:     make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", f.token)
	mux.HandleFunc("POST /v2/checkout/orders", f.createOrder)
	mux.HandleFunc("GET /v2/checkout/orders/{id}", f.getOrder)
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", f.captureOrder)

	f.expiresIn.Store(32400)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

// TokenCalls is the number of tokens issued
func (f *Server) TokenCalls() int {
	return int(f.tokenCalls.Load())
}

func (f *Server) SetExpiresIn(seconds int32) {
	f.expiresIn.Store(seconds)
}

// Approve acts as the buyer approving the order on PayPal pages
func (f *Server) Approve(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID] = "APPROVED"
}

func (f *Server) LastBody(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody[path]
}

func (f *Server) LastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *Server) token(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != f.ClientID || secret != f.ClientSecret {
		WriteJSON(w, http.StatusUnauthorized, `{"error":"invalid_client","error_description":"Client Authentication failed"}`)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		WriteJSON(w, http.StatusBadRequest, `{"error":"unsupported_grant_type","error_description":"Grant Type is NULL"}`)
		return
	}

	n := f.tokenCalls.Add(1)
	WriteJSON(w, http.StatusOK, fmt.Sprintf(`{"access_token":"token-%d","token_type":"Bearer","expires_in":%d}`, n, f.expiresIn.Load()))
}

func (f *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")

	f.mu.Lock()
	f.lastAuth = auth
	f.mu.Unlock()

	if !strings.HasPrefix(auth, "Bearer token-") {
		WriteJSON(w, http.StatusUnauthorized, `{"error":"invalid_token","error_description":"Token signature verification failed"}`)
		return false
	}
	return true
}

func (f *Server) record(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBody[r.URL.Path] = body
	return body
}

func (f *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	body := f.record(r)

	var req struct {
		Intent        string            `json:"intent"`
		PurchaseUnits []json.RawMessage `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Intent != "CAPTURE" || len(req.PurchaseUnits) == 0 {
		WriteJSON(w, http.StatusBadRequest, `{"name":"INVALID_REQUEST","message":"Request is not well-formed","debug_id":"dbg-1"}`)
		return
	}

	f.mu.Lock()
	f.nextOrderID++
	id := fmt.Sprintf("ORDER%d", f.nextOrderID)
	f.orders[id] = "CREATED"
	f.mu.Unlock()

	WriteJSON(w, http.StatusCreated, OrderJSON(id, "CREATED"))
}

func (f *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	id := r.PathValue("id")
	f.mu.Lock()
	status, ok := f.orders[id]
	f.mu.Unlock()

	if !ok {
		WriteJSON(w, http.StatusNotFound, `{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist.","debug_id":"dbg-2","details":[{"issue":"INVALID_RESOURCE_ID","description":"Specified resource ID does not exist."}]}`)
		return
	}

	WriteJSON(w, http.StatusOK, OrderJSON(id, status))
}

func (f *Server) captureOrder(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	f.record(r)

	id := r.PathValue("id")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.orders[id] {
	case "APPROVED":
		f.orders[id] = "COMPLETED"
		WriteJSON(w, http.StatusCreated, fmt.Sprintf(`{
			"id": %q,
			"status": "COMPLETED",
			"purchase_units": [{
				"reference_id": "default",
				"payments": {"captures": [{"id": "CAPTURE-1", "status": "COMPLETED", "amount": {"currency_code": "USD", "value": "9.99"}}]}
			}]
		}`, id))
	case "":
		WriteJSON(w, http.StatusNotFound, `{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist.","debug_id":"dbg-3","details":[{"issue":"INVALID_RESOURCE_ID"}]}`)
	default:
		WriteJSON(w, http.StatusUnprocessableEntity, `{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed, semantically incorrect, or failed business validation.","debug_id":"dbg-4","details":[{"issue":"ORDER_NOT_APPROVED","description":"Payer has not yet approved the Order for payment."}]}`)
	}
}

// OrderJSON is an order as PayPal renders it, with self, approve and capture links
func OrderJSON(id string, status string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"status": %q,
		"links": [
			{"href": "https://api-m.sandbox.paypal.com/v2/checkout/orders/%[1]s", "rel": "self", "method": "GET"},
			{"href": "https://www.sandbox.paypal.com/checkoutnow?token=%[1]s", "rel": "approve", "method": "GET"},
			{"href": "https://api-m.sandbox.paypal.com/v2/checkout/orders/%[1]s/capture", "rel": "capture", "method": "POST"}
		]
	}`, id, status)
}

func WriteJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
