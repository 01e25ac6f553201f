package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDispatchesByKind(t *testing.T) {
	bus := NewBus()
	levelCh := bus.Subscribe(KindLevelChange)
	allCh := bus.Subscribe()

	n := NewNotification("subj-1", KindLevelChange, map[string]interface{}{"new_level": "minimal"})
	require.NoError(t, bus.Dispatch(context.Background(), n))
	require.NoError(t, bus.Dispatch(context.Background(),
		NewNotification("subj-1", KindVerificationCode, nil)))

	// Kind-filtered subscriber only sees the level change.
	got := <-levelCh
	assert.Equal(t, KindLevelChange, got.Kind)
	select {
	case extra := <-levelCh:
		t.Fatalf("unexpected notification %s on filtered channel", extra.Kind)
	default:
	}

	// Wildcard subscriber sees both.
	assert.Equal(t, KindLevelChange, (<-allCh).Kind)
	assert.Equal(t, KindVerificationCode, (<-allCh).Kind)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(KindAttemptExpired)
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)
}

func TestBusFullSubscriberDoesNotBlockDispatch(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1
	ch := bus.Subscribe(KindVerificationFailed)

	require.NoError(t, bus.Dispatch(context.Background(),
		NewNotification("a", KindVerificationFailed, nil)))

	done := make(chan struct{})
	go func() {
		// Buffer is full; this must drop instead of blocking.
		_ = bus.Dispatch(context.Background(), NewNotification("b", KindVerificationFailed, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a full subscriber")
	}
	assert.Equal(t, "a", (<-ch).RecipientID)
}

type captureNotifier struct {
	mu   sync.Mutex
	seen []*Notification
}

func (c *captureNotifier) Dispatch(_ context.Context, n *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, n)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestBusForwardsToSink(t *testing.T) {
	bus := NewBus()
	sink := &captureNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Forward(ctx, sink)

	require.NoError(t, bus.Dispatch(context.Background(),
		NewNotification("subj-1", KindLevelChange, nil)))
	require.NoError(t, bus.Dispatch(context.Background(),
		NewNotification("subj-1", KindVerifierRevoked, nil)))

	require.Eventually(t, func() bool { return sink.count() == 2 },
		time.Second, 10*time.Millisecond)
}
