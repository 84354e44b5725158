package control

import (
	"sync"

	"github.com/nymtech/nym-vpnd-core/internal/monitor"
)

// statusBroadcaster fans monitor.Status events out to every
// listenConnectionStatus subscriber. internal/monitor.Monitor reports
// through a single onStatus callback rather than its own pub/sub surface,
// so the daemon wires this broadcaster's Broadcast method in as that
// callback. Same non-blocking-send, drop-oldest discipline as
// vpn.Controller/account.SharedState.
type statusBroadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextSub int
}

func newStatusBroadcaster[T any]() *statusBroadcaster[T] {
	return &statusBroadcaster[T]{subs: make(map[int]chan T)}
}

// ConnectionStatusBroadcaster is the monitor.Status instantiation of
// statusBroadcaster that the daemon constructs once, wires into
// tunnel.Deps.StatusReporter via Broadcast, and passes into Deps so
// listenConnectionStatus can Subscribe to it.
type ConnectionStatusBroadcaster = statusBroadcaster[monitor.Status]

// NewConnectionStatusBroadcaster constructs a ConnectionStatusBroadcaster.
func NewConnectionStatusBroadcaster() *ConnectionStatusBroadcaster {
	return newStatusBroadcaster[monitor.Status]()
}

// Subscribe registers for every future Broadcast call. Call the returned
// func to unsubscribe.
func (b *statusBroadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 8)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}
}

// Broadcast fans v out to every subscriber, dropping the oldest pending
// item for any subscriber that has fallen behind.
func (b *statusBroadcaster[T]) Broadcast(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
