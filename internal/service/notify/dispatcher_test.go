package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
	err    error
}

func (s *recordingSink) Notify(ctx context.Context, ev Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcher_DeliversAsync(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(NewMemoryQueue(8), sink)

	require.NoError(t, d.Notify(context.Background(), Event{Kind: KindPurchase, Text: "new purchase"}))
	require.NoError(t, d.Notify(context.Background(), Event{Kind: KindRegistration, Text: "new user"}))

	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, 2, sink.count())
	assert.Equal(t, KindPurchase, sink.events[0].Kind)
	assert.False(t, sink.events[0].At.IsZero())

	stats := d.Stats(context.Background())
	assert.EqualValues(t, 2, stats["delivered"])
}

func TestDispatcher_NeverBlocksWhenFull(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewDispatcher(NewMemoryQueue(1), sink)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), Event{Kind: KindPurchase, Text: "x"}))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(sink.gate)
	require.NoError(t, d.Close(context.Background()))

	dropped := d.dropped.Load()
	assert.GreaterOrEqual(t, dropped, int64(3))
	assert.EqualValues(t, 5, int64(sink.count())+dropped)
}

func TestDispatcher_SinkFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("telegram down")}
	d := NewDispatcher(NewMemoryQueue(4), sink)

	assert.NoError(t, d.Notify(context.Background(), Event{Kind: KindPaymentApproved, Text: "approved"}))
	require.NoError(t, d.Close(context.Background()))

	assert.EqualValues(t, 1, d.failed.Load())

	// Events after Close are dropped, not delivered.
	assert.NoError(t, d.Notify(context.Background(), Event{Kind: KindPurchase}))
	assert.Equal(t, 1, sink.count())
}

func TestMemoryQueue_PopWaits(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	_, ok, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(ctx, Event{Kind: KindPurchase})
	}()
	ev, ok, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindPurchase, ev.Kind)

	require.NoError(t, q.Push(ctx, Event{}))
	require.NoError(t, q.Push(ctx, Event{}))
	assert.ErrorIs(t, q.Push(ctx, Event{}), ErrQueueFull)
}
