package recovery

import (
	"context"
	"log/slog"
	"time"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
	"github.com/cartwatch-lab/cartwatch/internal/core/funnel"
	"github.com/cartwatch-lab/cartwatch/internal/ledger"
	"github.com/cartwatch-lab/cartwatch/internal/notify"
)

// Scheduler periodically scans the ledger for abandoned carts and triggers
// recovery notifications. Ticks run inline in the scheduler goroutine, so a
// tick can never overlap the previous one; if a tick outlasts the interval
// the next one is simply skipped (time.Ticker drops missed ticks).
type Scheduler struct {
	interval time.Duration
	ledger   *ledger.Ledger
	sink     notify.Sink
	reporter notify.Reporter
	timeouts funnel.Timeouts
}

// NewScheduler creates a scheduler sweeping ledg every interval using the
// given stage timeouts. Non-positive intervals fall back to one hour.
func NewScheduler(interval time.Duration, ledg *ledger.Ledger, sink notify.Sink, reporter notify.Reporter, timeouts funnel.Timeouts) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if ledg == nil {
		panic("recovery: ledger must not be nil")
	}
	if sink == nil {
		panic("recovery: sink must not be nil")
	}
	if reporter == nil {
		panic("recovery: reporter must not be nil")
	}
	return &Scheduler{
		interval: interval,
		ledger:   ledg,
		sink:     sink,
		reporter: reporter,
		timeouts: timeouts,
	}
}

// Start begins the periodic sweep and runs until the context is cancelled.
// Cancellation stops the timer; a sweep already underway drains its in-flight
// deliveries rather than aborting them.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Recovery] Starting abandonment sweep",
		"interval", s.interval,
		"cold_timeout", s.timeouts.Cold,
		"warm_timeout", s.timeouts.Warm,
		"hot_timeout", s.timeouts.Hot,
	)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		case <-ctx.Done():
			slog.Info("[Recovery] Stopping (context cancelled)")
			return nil
		}
	}
}

// Sweep runs one scheduler tick at the given instant: collect eligible carts
// under the ledger lock, then deliver a recovery notification for each and
// append the marker that makes the send idempotent.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	candidates := s.ledger.SweepRecoverable(now, s.timeouts)
	if len(candidates) == 0 {
		return
	}

	slog.Info("[Recovery] Abandoned carts detected", "count", len(candidates))

	for i, candidate := range candidates {
		select {
		case <-ctx.Done():
			slog.Info("[Recovery] Sweep interrupted by shutdown",
				"delivered", i,
				"pending", len(candidates)-i,
			)
			return
		default:
		}

		s.deliver(ctx, candidate, now)
	}
}

func (s *Scheduler) deliver(ctx context.Context, candidate ledger.RecoveryCandidate, now time.Time) {
	s.reporter.Report(s.sink.Deliver(ctx, candidate.Payload))

	// Marker goes in after the send, mirroring the delivery-then-record
	// order of the event path. MarkRecoverySent re-checks state under the
	// ledger lock, so a cart that completed mid-sweep is left alone.
	if !s.ledger.MarkRecoverySent(candidate.Key, now) {
		slog.Warn("[Recovery] Cart changed during sweep, marker skipped",
			"cart_id", candidate.Key,
		)
		return
	}

	slog.Info("[Recovery] Recovery notification sent",
		"cart_id", candidate.Key,
		"status", candidate.Payload.Status,
		"hours_idle", candidate.Payload.HoursSinceLastEvent,
		"action", v1.ActionRecovery,
	)
}
