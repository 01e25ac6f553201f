package notify

import (
	"context"
	"log"
	"sync"
)

// Bus is an in-process pub/sub notification bus. Subscribers receive
// notifications in real time; a full subscriber channel is skipped rather
// than blocking dispatch.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *Notification // kind -> channels
	allSubs     []chan *Notification
	logger      *log.Logger
	bufferSize  int
}

// NewBus creates a new notification bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *Notification),
		allSubs:     make([]chan *Notification, 0),
		logger:      log.New(log.Writer(), "[NOTIFY-BUS] ", log.LstdFlags),
		bufferSize:  100,
	}
}

// Subscribe creates a channel that receives notifications of specific kinds.
// Pass no kinds to receive everything.
func (b *Bus) Subscribe(kinds ...string) chan *Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Notification, b.bufferSize)
	if len(kinds) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, k := range kinds {
			b.subscribers[k] = append(b.subscribers[k], ch)
		}
	}
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (b *Bus) Unsubscribe(ch chan *Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k, subs := range b.subscribers {
		filtered := make([]chan *Notification, 0)
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		b.subscribers[k] = filtered
	}

	filtered := make([]chan *Notification, 0)
	for _, s := range b.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.allSubs = filtered

	close(ch)
}

// Dispatch fans the notification out to matching subscribers.
func (b *Bus) Dispatch(_ context.Context, n *Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[n.Kind] {
		select {
		case ch <- n:
		default:
			// Channel full, skip
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

// Forward pumps everything dispatched on the bus into target until ctx is
// cancelled. The worker uses this to chain the in-process bus to the
// Pub/Sub dispatcher.
func (b *Bus) Forward(ctx context.Context, target Notifier) {
	ch := b.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(ch)
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if err := target.Dispatch(ctx, n); err != nil {
					b.logger.Printf("forward %s failed: %v", n.Kind, err)
				}
			}
		}
	}()
}

// SubscriberCount returns the total number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
