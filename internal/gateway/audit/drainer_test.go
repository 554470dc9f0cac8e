package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLedger struct {
	mu       sync.Mutex
	written  []Event
	failN    int
	failed   int
}

func (m *mockLedger) Write(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed < m.failN {
		m.failed++
		return errors.New("ledger unavailable")
	}
	m.written = append(m.written, e)
	return nil
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func TestDrainer_DeliversQueuedEvents(t *testing.T) {
	q := NewQueue(8, 50*time.Millisecond, zap.NewNop())
	ledger := &mockLedger{}
	d := NewDrainer(q, ledger, zap.NewNop(), 5)

	stop := make(chan struct{})
	go d.Run(stop)
	defer close(stop)

	q.Enqueue(Event{EventType: EventSessionGranted, SessionID: "s1"})

	require.Eventually(t, func() bool { return ledger.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDrainer_RetriesOnFailureThenSucceeds(t *testing.T) {
	q := NewQueue(8, 50*time.Millisecond, zap.NewNop())
	ledger := &mockLedger{failN: 2}
	d := NewDrainer(q, ledger, zap.NewNop(), 10)

	stop := make(chan struct{})
	go d.Run(stop)
	defer close(stop)

	q.Enqueue(Event{EventType: EventSessionEnded, SessionID: "s1"})

	require.Eventually(t, func() bool { return ledger.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestDrainer_StopsOnSignal(t *testing.T) {
	q := NewQueue(8, 50*time.Millisecond, zap.NewNop())
	ledger := &mockLedger{}
	d := NewDrainer(q, ledger, zap.NewNop(), 5)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		d.Run(stop)
		close(done)
	}()

	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainer did not stop")
	}
}

func TestDrainer_ExposesBreakerState(t *testing.T) {
	q := NewQueue(4, 10*time.Millisecond, zap.NewNop())
	ledger := &mockLedger{}
	d := NewDrainer(q, ledger, zap.NewNop(), 3)

	assert.NotEmpty(t, d.State().String())
}
