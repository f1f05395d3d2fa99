package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Bus fans events of one topic out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event and its drop counter is
// incremented. Delivery order per subscriber matches publish order.
type Bus[T any] struct {
	topic  string
	buffer int

	mu     sync.Mutex
	subs   map[string]*Subscription[T]
	closed bool
}

func NewBus[T any](topic string, buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus[T]{topic: topic, buffer: buffer, subs: make(map[string]*Subscription[T])}
}

func (b *Bus[T]) Topic() string { return b.topic }

// Subscribe registers a subscriber. A nil filter receives every event.
func (b *Bus[T]) Subscribe(filter func(T) bool) *Subscription[T] {
	s := &Subscription[T]{
		ID:     uuid.NewString(),
		ch:     make(chan T, b.buffer),
		filter: filter,
		bus:    b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s.ID] = s
	return s
}

// Publish enqueues evt for every subscriber and returns how many accepted it.
func (b *Bus[T]) Publish(evt T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, s := range b.subs {
		select {
		case s.ch <- evt:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	return delivered
}

func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription; Next returns ErrSubscriptionClosed once the
// buffered events are drained.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}

func (b *Bus[T]) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		close(s.ch)
		delete(b.subs, id)
	}
}

type Subscription[T any] struct {
	ID      string
	ch      chan T
	filter  func(T) bool
	bus     *Bus[T]
	dropped atomic.Int64
}

// Next blocks until an event matching the filter arrives.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case evt, ok := <-s.ch:
			if !ok {
				return zero, ErrSubscriptionClosed
			}
			if s.filter == nil || s.filter(evt) {
				return evt, nil
			}
		}
	}
}

// Run calls fn for each matching event until ctx ends or the subscription closes.
func (s *Subscription[T]) Run(ctx context.Context, fn func(T)) error {
	for {
		evt, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		fn(evt)
	}
}

func (s *Subscription[T]) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription[T]) Close() { s.bus.remove(s.ID) }
