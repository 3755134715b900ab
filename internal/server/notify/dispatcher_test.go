package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []Message
	err     error
	block   chan struct{}
	started chan struct{}
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type outcomes struct {
	mu sync.Mutex
	m  map[string]int
}

func (o *outcomes) observe(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.m == nil {
		o.m = map[string]int{}
	}
	o.m[outcome]++
}

func (o *outcomes) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.m[outcome]
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	n := &recordingNotifier{}
	var out outcomes
	d := NewDispatcher(n, logging.Nop{}, 2, 16, time.Second, WithObserver(out.observe))

	for i := 0; i < 10; i++ {
		require.True(t, d.Dispatch(context.Background(), Message{To: "ana@x.io"}))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 10, n.count())
	assert.Equal(t, 10, out.get(OutcomeSent))
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	n := &recordingNotifier{block: make(chan struct{}), started: make(chan struct{}, 1)}
	var out outcomes
	d := NewDispatcher(n, logging.Nop{}, 1, 1, time.Minute, WithObserver(out.observe))

	require.True(t, d.Dispatch(context.Background(), Message{To: "first"}))
	<-n.started // the only worker is now busy

	require.True(t, d.Dispatch(context.Background(), Message{To: "queued"}))

	done := make(chan bool)
	go func() { done <- d.Dispatch(context.Background(), Message{To: "dropped"}) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	assert.Equal(t, 1, out.get(OutcomeDropped))

	close(n.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, n.count())
}

func TestDispatcher_FailureIsObserved(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	var out outcomes
	d := NewDispatcher(n, logging.Nop{}, 1, 4, time.Second, WithObserver(out.observe))

	d.Dispatch(context.Background(), Message{To: "ana@x.io"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, out.get(OutcomeFailed))
}

func TestDispatcher_DeliveryOutlivesRequestContext(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, logging.Nop{}, 1, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Message{To: "ana@x.io"})
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, n.count())
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	d := NewDispatcher(&recordingNotifier{}, logging.Nop{}, 1, 1, time.Second)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Dispatch(context.Background(), Message{To: "late"}))
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	n := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(n, logging.Nop{}, 1, 1, time.Minute)
	d.Dispatch(context.Background(), Message{To: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(n.block)
}
