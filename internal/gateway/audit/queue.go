package audit

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Queue is a bounded, in-memory FIFO of audit events. Enqueue never
// blocks the caller's hot path: critical events get a short bounded wait
// before drop-with-alert; non-critical events drop the oldest queued
// entry to make room. Depth and oldest-event-age are observable so an
// operator can detect sustained backpressure.
type Queue struct {
	ch     chan entry
	logger *zap.Logger

	criticalWait time.Duration

	dropped      atomic.Int64
	criticalLoss atomic.Int64
}

type entry struct {
	event    Event
	enqueued time.Time
}

// NewQueue creates a bounded queue of the given capacity. criticalWait
// bounds how long a critical event's enqueue call may block when the
// queue is full before it is dropped with an alert log.
func NewQueue(capacity int, criticalWait time.Duration, logger *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:           make(chan entry, capacity),
		logger:       logger,
		criticalWait: criticalWait,
	}
}

// Enqueue adds an event, applying the overflow policy for its class.
func (q *Queue) Enqueue(e Event) {
	e.Metadata = truncateMetadata(e.Metadata)
	item := entry{event: e, enqueued: time.Now()}

	select {
	case q.ch <- item:
		return
	default:
	}

	if e.EventType.IsCritical() {
		q.enqueueCriticalBlocking(item)
		return
	}

	q.dropOldestThenPush(item)
}

func (q *Queue) enqueueCriticalBlocking(item entry) {
	timer := time.NewTimer(q.criticalWait)
	defer timer.Stop()

	select {
	case q.ch <- item:
		return
	case <-timer.C:
		q.criticalLoss.Add(1)
		q.logger.Error("audit queue full: critical event dropped",
			zap.String("event_type", string(item.event.EventType)),
			zap.String("session_id", item.event.SessionID))
	}
}

func (q *Queue) dropOldestThenPush(item entry) {
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- item:
	default:
		q.dropped.Add(1)
	}
}

// dequeue blocks until an item is available or stop fires; used by the
// drainer. Returns ok=false when stop fired first.
func (q *Queue) dequeue(stop <-chan struct{}) (entry, bool) {
	select {
	case item := <-q.ch:
		return item, true
	case <-stop:
		return entry{}, false
	}
}

// Depth reports the number of events currently queued.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Dropped reports the cumulative count of non-critical drop-oldest events.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// CriticalLoss reports the cumulative count of critical events dropped
// after the bounded wait expired.
func (q *Queue) CriticalLoss() int64 {
	return q.criticalLoss.Load()
}

func truncateMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	size := 0
	for k, v := range meta {
		size += len(k) + len(v)
	}
	if size <= maxMetadataBytes {
		return meta
	}
	return map[string]string{"truncated": "true"}
}
