package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
	"github.com/cartwatch-lab/cartwatch/internal/core/funnel"
	"github.com/cartwatch-lab/cartwatch/internal/notify"
)

// Ledger owns the mapping from cart identity to cart state. It is the single
// owner of that state: the event-processing path and the recovery sweep are
// the only writers, serialized by one mutex. Delivery I/O always happens
// outside the lock.
type Ledger struct {
	mu    sync.Mutex
	carts map[string]*funnel.Cart

	sink     notify.Sink
	reporter notify.Reporter

	now func() time.Time
}

// New creates an empty ledger forwarding snapshots through sink and handing
// delivery results to reporter.
func New(sink notify.Sink, reporter notify.Reporter) *Ledger {
	if sink == nil {
		panic("ledger: sink must not be nil")
	}
	if reporter == nil {
		panic("ledger: reporter must not be nil")
	}
	return &Ledger{
		carts:    make(map[string]*funnel.Cart),
		sink:     sink,
		reporter: reporter,
		now:      time.Now,
	}
}

// ProcessEvent applies one well-formed event: lookup-or-create the cart, merge
// the event, re-derive status, forward the snapshot, and evict the cart when a
// clean purchase concludes the funnel. Exactly one notification goes out per
// call. Nothing is returned: a delivery failure is reported, never raised, and
// eviction on a clean purchase does not wait for delivery to succeed.
func (l *Ledger) ProcessEvent(ctx context.Context, evt *v1.PurchaseEvent) {
	key := funnel.CartKey(evt.UserID, evt.ProductID)
	now := l.now()

	l.mu.Lock()
	cart, ok := l.carts[key]
	if !ok {
		cart = funnel.NewCart(key, evt)
		l.carts[key] = cart
		slog.Info("Cart created", "cart_id", key, "event_type", evt.EventType)
	}

	cart.Absorb(evt)

	payload := cart.Snapshot(evt.EventType, evt.Timestamp, now)
	switch evt.EventType {
	case v1.EventPurchase:
		recovered := cart.RecoverySent()
		recoveryValue := 0.0
		if recovered {
			recoveryValue = cart.TotalValue.InexactFloat64()
		}
		payload.Recovered = &recovered
		payload.RecoveryValue = &recoveryValue
	case v1.EventError:
		statusCode := evt.StatusCode
		message := evt.ErrorMessage
		if message == "" && evt.Error != nil {
			message = evt.Error.Message
		}
		payload.StatusCode = &statusCode
		payload.ErrorMessage = &message
	}

	// A clean purchase concludes the funnel regardless of downstream
	// delivery outcome.
	completes := evt.EventType == v1.EventPurchase && !evt.HasError
	l.mu.Unlock()

	l.reporter.Report(l.sink.Deliver(ctx, payload))

	if completes {
		l.mu.Lock()
		delete(l.carts, key)
		l.mu.Unlock()
		slog.Info("Cart completed", "cart_id", key, "user_id", evt.UserID)
	}
}

// RecoveryCandidate is a cart eligible for a recovery notification, snapshot
// under the ledger lock.
type RecoveryCandidate struct {
	Key     string
	Payload v1.NotificationPayload
}

// SweepRecoverable scans all live carts once. Completed carts are evicted
// defensively (the event path normally removes them first). A cart is eligible
// when its idle time has reached the threshold for its current stage and its
// history carries no recovery marker yet. Each eligible cart is returned
// exactly once per sweep.
func (l *Ledger) SweepRecoverable(now time.Time, timeouts funnel.Timeouts) []RecoveryCandidate {
	l.mu.Lock()
	defer l.mu.Unlock()

	var candidates []RecoveryCandidate
	for key, cart := range l.carts {
		if cart.Status == funnel.StatusCompleted {
			delete(l.carts, key)
			slog.Warn("Completed cart found during sweep, evicting", "cart_id", key)
			continue
		}

		threshold, ok := timeouts.For(cart.Status)
		if !ok {
			continue
		}
		if now.Sub(cart.LastEventAt) < threshold || cart.RecoverySent() {
			continue
		}

		candidates = append(candidates, RecoveryCandidate{
			Key:     key,
			Payload: cart.Snapshot(v1.ActionRecovery, now, now),
		})
	}
	return candidates
}

// MarkRecoverySent appends the recovery marker to the cart's history after the
// notification went out. It re-checks existence and marker absence under the
// lock, so a cart that completed or was already marked in the meantime is left
// alone. Returns whether the marker was appended.
func (l *Ledger) MarkRecoverySent(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cart, ok := l.carts[key]
	if !ok || cart.RecoverySent() {
		return false
	}
	cart.AppendRecoveryMarker(now)
	return true
}

// Len returns the number of live carts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.carts)
}

// Cart returns the live cart for key, or nil. Intended for health/debug
// surfaces and tests; the returned cart must not be mutated by callers.
func (l *Ledger) Cart(key string) *funnel.Cart {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.carts[key]
}
