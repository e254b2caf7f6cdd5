// Package eventbus fans committed dispatch outcomes out to in-process
// consumers (metrics, the MQTT path, tests) without coupling them to the
// cycle controller.
package eventbus

import "sync"

// subscriberBuffer bounds how many outcomes a subscriber can lag behind.
// Cycles arrive on a minutes-scale cadence, so a small buffer already covers
// any realistic consumer stall.
const subscriberBuffer = 8

// Bus delivers events of type T to every subscriber. Publishing never
// blocks the cycle loop: a subscriber whose buffer is full misses that event
// and catches up on the next one, which supersedes it anyway.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] { return &Bus[T]{} }

// Publish offers the event to every subscriber with buffer room.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a consumer. On a closed bus the returned channel is
// already closed.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe drops the consumer and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close shuts the bus down; later publishes are dropped silently.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
