package funnel

import (
	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
)

// Status is the derived funnel stage of a cart. It escalates strictly from
// cold to completed; completed is terminal.
type Status string

const (
	StatusCold      Status = "cold"
	StatusWarm      Status = "warm"
	StatusHot       Status = "hot"
	StatusCompleted Status = "completed"
)

// DeriveStatus computes a cart's status from the event types present in its
// history. Precedence is fixed: any purchase wins, then add_payment_info, then
// begin_checkout. Arrival order is irrelevant, so an out-of-order replay can
// never downgrade a completed cart.
func DeriveStatus(events []*v1.PurchaseEvent) Status {
	var hasPurchase, hasPaymentInfo, hasCheckout bool

	for _, e := range events {
		switch e.EventType {
		case v1.EventPurchase:
			hasPurchase = true
		case v1.EventAddPaymentInfo:
			hasPaymentInfo = true
		case v1.EventBeginCheckout:
			hasCheckout = true
		}
	}

	switch {
	case hasPurchase:
		return StatusCompleted
	case hasPaymentInfo:
		return StatusHot
	case hasCheckout:
		return StatusWarm
	default:
		return StatusCold
	}
}

// StatusForEventType returns the funnel stage a single event type implies on
// its own. The front door reports this in its response; the merged cart status
// is only observable through outbound notifications.
func StatusForEventType(eventType string) Status {
	switch eventType {
	case v1.EventPurchase:
		return StatusCompleted
	case v1.EventAddPaymentInfo:
		return StatusHot
	case v1.EventBeginCheckout:
		return StatusWarm
	default:
		return StatusCold
	}
}
