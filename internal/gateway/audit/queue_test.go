package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestQueue_EnqueueAndDrain(t *testing.T) {
	q := NewQueue(4, 50*time.Millisecond, zap.NewNop())
	q.Enqueue(Event{EventType: EventSessionGranted, SessionID: "s1"})

	assert.Equal(t, 1, q.Depth())
}

func TestQueue_NonCriticalDropsOldestOnFull(t *testing.T) {
	q := NewQueue(1, 50*time.Millisecond, zap.NewNop())
	q.Enqueue(Event{EventType: EventType("DIAGNOSTIC"), SessionID: "first"})
	q.Enqueue(Event{EventType: EventType("DIAGNOSTIC"), SessionID: "second"})

	item, ok := q.dequeue(nil)
	assert.True(t, ok)
	assert.Equal(t, "second", item.event.SessionID)
	assert.Equal(t, int64(1), q.Dropped())
}

func TestQueue_CriticalBlocksThenDrops(t *testing.T) {
	q := NewQueue(1, 20*time.Millisecond, zap.NewNop())
	q.Enqueue(Event{EventType: EventSessionRevoked, SessionID: "first"})

	start := time.Now()
	q.Enqueue(Event{EventType: EventSessionRevoked, SessionID: "second"})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Equal(t, int64(1), q.CriticalLoss())
	// the original entry is still queued; the second was dropped
	assert.Equal(t, 1, q.Depth())
}

func TestQueue_TruncatesOversizedMetadata(t *testing.T) {
	q := NewQueue(4, time.Millisecond, zap.NewNop())
	big := make(map[string]string)
	big["blob"] = string(make([]byte, maxMetadataBytes+1))

	q.Enqueue(Event{EventType: EventSessionGranted, SessionID: "s1", Metadata: big})

	item, ok := q.dequeue(nil)
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"truncated": "true"}, item.event.Metadata)
}

func TestEventType_IsCritical(t *testing.T) {
	assert.True(t, EventSessionRevoked.IsCritical())
	assert.True(t, EventPrivilegedAction.IsCritical())
}
