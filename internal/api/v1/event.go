package v1

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Funnel event types accepted from the checkout clients.
const (
	EventCart           = "cart"
	EventBeginCheckout  = "begin_checkout"
	EventAddPaymentInfo = "add_payment_info"
	EventPurchase       = "purchase"
	EventError          = "error"
)

// MetadataRecoverySent tags the synthetic marker event appended to a cart's
// history after a recovery notification went out. Its presence anywhere in the
// history suppresses further recovery sends for that cart.
const MetadataRecoverySent = "recoverySent"

// PaymentError carries the error detail attached to a failed funnel event.
type PaymentError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"` // payment | validation | network | gateway | unknown
}

// PurchaseEvent is the atomic unit of the system: an immutable, timestamped
// fact about one user's progress through one product's purchase funnel.
// Field names follow the camelCase wire format the checkout clients emit.
type PurchaseEvent struct {
	// ID uniquely identifies the event. Stamped at ingestion when the client
	// supplies none.
	ID string `json:"id,omitempty"`

	// UserID is the identity-establishing user reference. Together with
	// ProductID it determines which cart the event belongs to. REQUIRED.
	UserID    string `json:"userId"`
	UserPhone string `json:"userPhone,omitempty"`
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	UserTaxID string `json:"userTaxId,omitempty"`

	// EventType is one of the funnel event types above. REQUIRED.
	EventType string `json:"eventType"`

	ProductID     string `json:"productId,omitempty"`
	ProductName   string `json:"productName,omitempty"`
	ProductAuthor string `json:"productAuthor,omitempty"`
	ProductType   string `json:"productType,omitempty"`

	CartValue  decimal.Decimal `json:"cartValue"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Currency   string          `json:"currency,omitempty"`

	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Installments  int             `json:"installments,omitempty"`
	DiscountCode  string          `json:"discountCode,omitempty"`
	DiscountValue decimal.Decimal `json:"discountValue"`

	Error        *PaymentError `json:"error,omitempty"`
	HasError     bool          `json:"hasError,omitempty"`
	StatusCode   int           `json:"statusCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`

	Source   string `json:"source,omitempty"`
	Campaign string `json:"campaign,omitempty"`

	// Timestamp is when the event happened (client-side clock).
	// ReceivedAt is when cartwatch accepted it (server-side clock), set by
	// the ingestion service, not the client.
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt,omitempty"`

	// Metadata is an open key-value bag. Internally-synthesized events use it
	// to carry the recoverySent marker.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// KnownEventType reports whether t is one of the accepted funnel event types.
func KnownEventType(t string) bool {
	switch t {
	case EventCart, EventBeginCheckout, EventAddPaymentInfo, EventPurchase, EventError:
		return true
	}
	return false
}

// Validate ensures the event carries the two mandatory correlation fields.
func (e *PurchaseEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("userId is required")
	}

	if e.EventType == "" {
		return fmt.Errorf("eventType is required")
	}

	if !KnownEventType(e.EventType) {
		return fmt.Errorf("unknown eventType %q", e.EventType)
	}

	return nil
}

// RecoveryMarked reports whether this event carries the recoverySent marker.
func (e *PurchaseEvent) RecoveryMarked() bool {
	if e.Metadata == nil {
		return false
	}
	v, ok := e.Metadata[MetadataRecoverySent]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
