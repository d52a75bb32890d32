package pubsub

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("pubsub closed")

// MemoryPubSub is an in-process PubSub for single-instance deployments and
// tests. Events are delivered to subscribers in publish order.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	ch   chan *Event
	done chan struct{}
	once sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryPubSub creates an empty in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string][]*memorySub)}
}

// Publish delivers the event to every current subscriber of channel.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a subscriber; it is removed when ctx is done.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{ch: make(chan *Event, 256), done: make(chan struct{})}
	m.subs[channel] = append(m.subs[channel], sub)

	out := make(chan *Event, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				sub.close()
				m.remove(channel, sub)
				return
			case <-sub.done:
				return
			case ev := <-sub.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					sub.close()
					m.remove(channel, sub)
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	return out, nil
}

func (m *MemoryPubSub) remove(channel string, target *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[channel]
	for i, sub := range subs {
		if sub == target {
			m.subs[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[channel]) == 0 {
		delete(m.subs, channel)
	}
	target.close()
}

// Unsubscribe drops every subscriber of channel.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[channel] {
		sub.close()
	}
	delete(m.subs, channel)
	return nil
}

// Close drops all subscribers and rejects further use.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, subs := range m.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	m.subs = make(map[string][]*memorySub)
	m.closed = true
	return nil
}
