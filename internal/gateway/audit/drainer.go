package audit

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// LedgerAdapter is the only interface the core depends on for durable
// storage; the ledger engine itself is out of scope.
type LedgerAdapter interface {
	Write(ctx context.Context, e Event) error
}

// Drainer delivers queued events to a LedgerAdapter, retrying failures
// with exponential backoff (the same doubling-with-cap shape the robot
// agent's signaling client uses to reconnect) behind a circuit breaker
// that opens after sustained failures so the drainer stops hammering a
// down ledger and falls back to pure backoff pacing.
type Drainer struct {
	queue   *Queue
	ledger  LedgerAdapter
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewDrainer creates a Drainer. failureThreshold is the number of
// consecutive ledger write failures that opens the circuit breaker.
func NewDrainer(queue *Queue, ledger LedgerAdapter, logger *zap.Logger, failureThreshold uint32) *Drainer {
	st := gobreaker.Settings{
		Name:        "audit-ledger",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}
	return &Drainer{
		queue:   queue,
		ledger:  ledger,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// State exposes the circuit breaker's observable state.
func (d *Drainer) State() gobreaker.State {
	return d.breaker.State()
}

// Run drains the queue until stop fires. Intended to run in its own
// goroutine for the process lifetime.
func (d *Drainer) Run(stop <-chan struct{}) {
	for {
		item, ok := d.queue.dequeue(stop)
		if !ok {
			return
		}
		d.deliver(item.event, stop)
	}
}

func (d *Drainer) deliver(e Event, stop <-chan struct{}) {
	backoff := 500 * time.Millisecond
	maxBackoff := 30 * time.Second

	for {
		_, err := d.breaker.Execute(func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return nil, d.ledger.Write(ctx, e)
		})
		if err == nil {
			return
		}

		d.logger.Warn("audit delivery failed, retrying",
			zap.String("event_type", string(e.EventType)),
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
