package paypal

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// Network failure, timeout or open circuit breaker: request may not have reached PayPal
	KindTransport ErrorKind = "transport"

	// PayPal answered with non-2xx status
	KindStatus ErrorKind = "status"

	// PayPal answered 2xx but the body is not what was expected
	KindDecode ErrorKind = "decode"

	// Request could not be built from caller input, nothing was sent
	KindRequest ErrorKind = "request"
)

type ErrorDetail struct {
	Field       string `json:"field,omitempty"`
	Value       string `json:"value,omitempty"`
	Location    string `json:"location,omitempty"`
	Issue       string `json:"issue,omitempty"`
	Description string `json:"description,omitempty"`
}

// ProviderError is PayPal error payload.
// REST endpoints fill Name/Message/DebugID/Details, OAuth endpoint fills Code/Description.
type ProviderError struct {
	Name    string        `json:"name,omitempty"`
	Message string        `json:"message,omitempty"`
	DebugID string        `json:"debug_id,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`

	Code        string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// Issue returns the most specific error code PayPal gave, e.g. ORDER_NOT_APPROVED
func (p *ProviderError) Issue() string {
	switch {
	case p == nil:
		return ""
	case len(p.Details) > 0 && p.Details[0].Issue != "":
		return p.Details[0].Issue
	case p.Name != "":
		return p.Name
	default:
		return p.Code
	}
}

func (p *ProviderError) String() string {
	switch {
	case p == nil:
		return ""
	case p.Code != "":
		return fmt.Sprintf("%s: %s", p.Code, p.Description)
	default:
		return fmt.Sprintf("%s: %s", p.Issue(), p.Message)
	}
}

// Error is returned by every Client operation. Nothing is retried: the caller decides.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int

	// Parsed provider payload, nil if body was empty or not an error document
	Provider *ProviderError

	// Raw response body if any
	Body []byte

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Provider != nil:
		return fmt.Sprintf("paypal %s: status %d: %s", e.Op, e.StatusCode, e.Provider)
	case e.Kind == KindStatus:
		return fmt.Sprintf("paypal %s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("paypal %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is PayPal answer with the status code
func IsStatus(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindStatus && e.StatusCode == code
}

// IsIssue reports whether err is PayPal answer with the issue code (ORDER_NOT_APPROVED, ...)
func IsIssue(err error, issue string) bool {
	var e *Error
	return errors.As(err, &e) && e.Provider.Issue() == issue
}

func newStatusError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Kind: KindStatus, StatusCode: status, Body: body}

	var p ProviderError
	if len(body) > 0 && json.Unmarshal(body, &p) == nil && (p.Name != "" || p.Code != "" || p.Message != "") {
		e.Provider = &p
	}

	return e
}
