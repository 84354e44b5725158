package vpn

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nymtech/nym-vpnd-core/internal/tunnel"
)

// ErrNotDisconnected is returned by SetTunnelSettings when the state
// machine isn't Disconnected.
var ErrNotDisconnected = errors.New("vpn: settings can only change while disconnected")

// ErrAlreadyConnecting is returned by Connect when a connect is already
// under way or a tunnel is already up.
var ErrAlreadyConnecting = errors.New("vpn: already connecting or connected")

// ErrNotConnected is returned by Disconnect when there is nothing to tear
// down.
var ErrNotConnected = errors.New("vpn: not connecting or connected")

// ErrNotReadyToConnect is returned by Connect when the account
// controller's readiness predicate refuses (spec §4.L: "the tunnel state
// machine MUST refuse connect unless this predicate holds").
var ErrNotReadyToConnect = errors.New("vpn: account is not ready to connect")

// Controller is the single source of truth for the tunnel's lifecycle
// (spec §4.J). Every public method is safe for concurrent use; at most one
// tunnel.Attempt runs at a time, and cancellation is hierarchical: Close
// cancels every attempt the controller has ever spawned.
type Controller struct {
	mu       sync.Mutex
	state    State
	settings tunnel.Settings

	retryAttempt  int
	currentCancel context.CancelFunc

	deps           tunnel.Deps
	readyToConnect func() bool
	log            *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
}

// NewController constructs a Controller in the Disconnected state.
// readyToConnect gates Connect per the account controller's ReadyToConnect
// predicate (spec §4.L); pass a func that always returns true if account
// gating isn't in play.
func NewController(deps tunnel.Deps, readyToConnect func() bool, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if readyToConnect == nil {
		readyToConnect = func() bool { return true }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:          State{Phase: PhaseDisconnected},
		deps:           deps,
		readyToConnect: readyToConnect,
		log:            log,
		rootCtx:        ctx,
		rootCancel:     cancel,
		subs:           make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers for every future transition. The returned channel is
// buffered; a subscriber that falls behind loses its oldest unread
// transition rather than stalling the controller (same non-blocking-send
// discipline as tunnel.Attempt.emit). Call the returned func to
// unsubscribe.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
		close(ch)
	}
}

// SetTunnelSettings installs new tunnel settings, allowed only while
// Disconnected (spec §4.J).
func (c *Controller) SetTunnelSettings(s tunnel.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != PhaseDisconnected {
		return ErrNotDisconnected
	}
	c.settings = s
	return nil
}

// Connect starts a fresh connect attempt at retryAttempt=0. Only valid
// from Disconnected; refuses if readyToConnect() reports the account isn't
// ready (spec §4.L).
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseDisconnected {
		return ErrAlreadyConnecting
	}
	if !c.readyToConnect() {
		return ErrNotReadyToConnect
	}

	c.retryAttempt = 0
	c.spawnLocked(0)
	c.transitionLocked(State{Phase: PhaseConnecting})
	return nil
}

// Disconnect requests a teardown of the current (or in-progress) tunnel.
// Only valid from Connecting/Connected; the transition to Disconnected
// completes once the running attempt has finished unwinding (spec §4.J:
// "its tombstone completes the transition").
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseConnecting && c.state.Phase != PhaseConnected {
		return ErrNotConnected
	}

	c.transitionLocked(State{Phase: PhaseDisconnecting, DisconnectReason: DisconnectNothing})
	if c.currentCancel != nil {
		c.currentCancel()
	}
	return nil
}

// Close tears down any running attempt and stops the controller for good;
// no further Connect/Disconnect calls are meaningful afterward.
func (c *Controller) Close() {
	c.rootCancel()
}

// spawnLocked starts one tunnel.Attempt at the given retry count. Must be
// called with c.mu held.
func (c *Controller) spawnLocked(retryAttempt int) {
	attemptCtx, cancel := context.WithCancel(c.rootCtx)
	c.currentCancel = cancel
	c.retryAttempt = retryAttempt

	events := make(chan tunnel.Event, 8)
	attempt := tunnel.NewAttempt(c.settings, retryAttempt, nil, nil, events, c.deps)

	// decided holds whatever Disconnecting reason the event loop observed.
	// doneReading closes only after the reader goroutine has fully drained
	// events, so the completion goroutine below never reads decided before
	// every event that Run emitted has been accounted for.
	var decided State
	var decidedSet bool
	doneReading := make(chan struct{})

	go func() {
		defer close(doneReading)
		for e := range events {
			switch e.Kind {
			case tunnel.EventUp:
				c.transition(State{Phase: PhaseConnected, Connection: e.Connection})
			case tunnel.EventError:
				var next State
				if tunnel.Retryable(e.Err) {
					next = State{Phase: PhaseDisconnecting, DisconnectReason: DisconnectReconnect, Err: e.Err}
				} else {
					next = State{Phase: PhaseDisconnecting, DisconnectReason: DisconnectError, Err: e.Err}
				}
				decided, decidedSet = next, true
				c.transition(next)
			case tunnel.EventCancelled:
				next := State{Phase: PhaseDisconnecting, DisconnectReason: DisconnectNothing}
				decided, decidedSet = next, true
				// Disconnect's own transitionLocked call has usually
				// broadcast this already; only a cancellation that did not
				// come through Disconnect (e.g. shutdown) broadcasts it here.
				c.mu.Lock()
				if c.state.Phase != PhaseDisconnecting || c.state.DisconnectReason != DisconnectNothing {
					c.transitionLocked(next)
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		if err := attempt.Run(attemptCtx); err != nil {
			c.log.Debug("vpn: attempt ended", "retryAttempt", retryAttempt, "error", err)
		}
		close(events)
		<-doneReading
		c.onAttemptFinished(retryAttempt, decided, decidedSet)
	}()
}

// onAttemptFinished applies the final transition once an attempt has fully
// unwound: Disconnected, a fresh reconnect attempt, or Error(reason).
func (c *Controller) onAttemptFinished(retryAttempt int, decided State, decidedSet bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rootCtx.Err() != nil {
		// Controller is shutting down; don't spawn a reconnect.
		return
	}

	reason := DisconnectNothing
	if decidedSet {
		reason = decided.DisconnectReason
	}

	switch reason {
	case DisconnectReconnect:
		c.spawnLocked(retryAttempt + 1)
		c.transitionLocked(State{Phase: PhaseConnecting})
	case DisconnectError:
		c.transitionLocked(State{Phase: PhaseError, Err: decided.Err})
	default:
		c.transitionLocked(State{Phase: PhaseDisconnected})
	}
}

// transition acquires c.mu and applies + broadcasts s. Used by the
// per-attempt event goroutine, which doesn't otherwise hold the lock.
func (c *Controller) transition(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(s)
}

// transitionLocked applies and broadcasts s. Must be called with c.mu held.
func (c *Controller) transitionLocked(s State) {
	c.state = s
	c.broadcast(s)
}

func (c *Controller) broadcast(s State) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			// Drop the oldest pending item to make room, rather than stall
			// the controller on a slow subscriber.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
