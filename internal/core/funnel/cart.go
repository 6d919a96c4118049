package funnel

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
)

// DefaultCurrency is assumed when the first event of a cart carries none.
const DefaultCurrency = "BRL"

// defaultProductSlot keys carts whose events never name a product.
const defaultProductSlot = "default"

// CartKey derives the deterministic cart identity for a user/product pair.
func CartKey(userID, productID string) string {
	if productID == "" {
		productID = defaultProductSlot
	}
	return userID + "_" + productID
}

// Cart is the mutable aggregate tracking one user's progress through one
// product's purchase funnel. Its denormalized fields hold the latest non-empty
// value seen across all events; Status is always re-derived from Events, never
// assigned independently.
type Cart struct {
	ID string

	UserID    string
	UserPhone string
	UserName  string
	UserEmail string
	UserTaxID string

	Status      Status
	CreatedAt   time.Time
	LastEventAt time.Time

	ProductID     string
	ProductName   string
	ProductAuthor string
	ProductType   string

	CartValue  decimal.Decimal
	TotalValue decimal.Decimal
	Currency   string

	PaymentMethod string
	Installments  int
	DiscountCode  string
	DiscountValue decimal.Decimal

	Source   string
	Campaign string

	HasErrors  bool
	ErrorCount int
	LastError  *v1.PaymentError

	// Events is the full ordered history. Append-only.
	Events []*v1.PurchaseEvent
}

// NewCart seeds a cart from the first event of a previously-unseen identity.
// Field merging happens in Absorb; the seed only fixes identity and clocks.
func NewCart(key string, evt *v1.PurchaseEvent) *Cart {
	currency := evt.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Cart{
		ID:          key,
		UserID:      evt.UserID,
		Status:      StatusCold,
		CreatedAt:   evt.Timestamp,
		LastEventAt: evt.Timestamp,
		Currency:    currency,
	}
}

// Absorb merges an event into the cart: non-empty event fields overwrite,
// empty ones never clear an existing value. The event is appended to history,
// LastEventAt advances to the event's timestamp and Status is re-derived.
func (c *Cart) Absorb(evt *v1.PurchaseEvent) {
	c.UserPhone = pick(c.UserPhone, evt.UserPhone)
	c.UserName = pick(c.UserName, evt.UserName)
	c.UserEmail = pick(c.UserEmail, evt.UserEmail)
	c.UserTaxID = pick(c.UserTaxID, evt.UserTaxID)

	c.ProductID = pick(c.ProductID, evt.ProductID)
	c.ProductName = pick(c.ProductName, evt.ProductName)
	c.ProductAuthor = pick(c.ProductAuthor, evt.ProductAuthor)
	c.ProductType = pick(c.ProductType, evt.ProductType)

	if !evt.CartValue.IsZero() {
		c.CartValue = evt.CartValue
	}
	if !evt.TotalValue.IsZero() {
		c.TotalValue = evt.TotalValue
	}
	c.Currency = pick(c.Currency, evt.Currency)

	c.PaymentMethod = pick(c.PaymentMethod, evt.PaymentMethod)
	if evt.Installments != 0 {
		c.Installments = evt.Installments
	}
	c.DiscountCode = pick(c.DiscountCode, evt.DiscountCode)
	if !evt.DiscountValue.IsZero() {
		c.DiscountValue = evt.DiscountValue
	}

	c.Source = pick(c.Source, evt.Source)
	c.Campaign = pick(c.Campaign, evt.Campaign)

	if evt.HasError || evt.Error != nil {
		c.HasErrors = true
		c.ErrorCount++
		if evt.Error != nil {
			c.LastError = evt.Error
		}
	}

	c.Events = append(c.Events, evt)
	c.LastEventAt = evt.Timestamp
	c.Status = DeriveStatus(c.Events)
}

// RecoverySent reports whether any event in the history carries the recovery
// marker. The check spans the cart's entire life: once a recovery notice went
// out, no further one is ever sent for this cart.
func (c *Cart) RecoverySent() bool {
	for _, e := range c.Events {
		if e.RecoveryMarked() {
			return true
		}
	}
	return false
}

// AppendRecoveryMarker records that a recovery notification was sent, as a
// synthetic cart event in the history. It does not advance LastEventAt: the
// marker is bookkeeping, not user activity.
func (c *Cart) AppendRecoveryMarker(now time.Time) {
	c.Events = append(c.Events, &v1.PurchaseEvent{
		ID:         uuid.NewString(),
		UserID:     c.UserID,
		UserPhone:  c.UserPhone,
		EventType:  v1.EventCart,
		Timestamp:  now,
		ReceivedAt: now,
		Metadata:   map[string]any{v1.MetadataRecoverySent: true},
	})
}

// Snapshot builds the outbound notification payload for this cart.
// at becomes the payload timestamp (the triggering event's time on the event
// path, the sweep time for recoveries); now drives hoursSinceLastEvent.
func (c *Cart) Snapshot(action string, at, now time.Time) v1.NotificationPayload {
	if at.IsZero() {
		at = now
	}

	hours := 0
	if !c.LastEventAt.IsZero() {
		if d := now.Sub(c.LastEventAt); d > 0 {
			hours = int(d.Hours())
		}
	}

	return v1.NotificationPayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		Action:    action,
		Status:    string(c.Status),
		CartID:    c.ID,

		UserID:    c.UserID,
		UserPhone: c.UserPhone,
		UserName:  c.UserName,
		UserEmail: c.UserEmail,
		UserTaxID: c.UserTaxID,

		ProductID:     c.ProductID,
		ProductName:   c.ProductName,
		ProductAuthor: c.ProductAuthor,
		ProductType:   c.ProductType,

		CartValue:  c.CartValue.InexactFloat64(),
		TotalValue: c.TotalValue.InexactFloat64(),
		Currency:   c.Currency,

		PaymentMethod:   c.PaymentMethod,
		Installments:    c.Installments,
		HasInstallments: c.Installments > 0,
		DiscountCode:    c.DiscountCode,
		DiscountValue:   c.DiscountValue.InexactFloat64(),

		HoursSinceLastEvent: hours,
	}
}

// pick keeps the current value unless the incoming one is non-empty.
func pick(current, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return current
}
