// Package account implements the account controller (spec §4.L): mnemonic
// and device key storage, a single-threaded command queue talking to the
// VPN API, and the zk-nym refresh protocol that keeps internal/credentials
// topped up.
package account

import "sync"

// MnemonicStatus is whether a mnemonic has been stored locally (spec §3
// Account state summary).
type MnemonicStatus int

const (
	MnemonicNotStored MnemonicStatus = iota
	MnemonicStored
)

// AccountStatus mirrors the remote account's lifecycle (spec §3).
type AccountStatus int

const (
	AccountNotRegistered AccountStatus = iota
	AccountInactive
	AccountActive
	AccountDeleteMe
)

// SubscriptionStatus mirrors the remote subscription's lifecycle (spec §3).
type SubscriptionStatus int

const (
	SubscriptionNotActive SubscriptionStatus = iota
	SubscriptionPending
	SubscriptionComplete
	SubscriptionActive
)

// DeviceStatus mirrors the remote device registration's lifecycle (spec
// §3).
type DeviceStatus int

const (
	DeviceNotRegistered DeviceStatus = iota
	DeviceInactive
	DeviceActive
	DeviceDeleteMe
)

// ZkNymResultKind tags the outcome of the most recent zk-nym request batch
// (spec §3 requestZkNymResult).
type ZkNymResultKind int

const (
	ZkNymResultNone ZkNymResultKind = iota
	ZkNymResultInProgress
	ZkNymResultOk
	ZkNymResultErr
)

// ZkNymResult is the most recent zk-nym request outcome.
type ZkNymResult struct {
	Kind    ZkNymResultKind
	IDs     []string // valid when Kind == ZkNymResultOk
	Summary string   // valid when Kind == ZkNymResultErr
}

// State is the full account state summary (spec §3 Account state summary).
// pendingZkNym=true precludes starting a new zk-nym batch (the monotone
// rule the spec calls out) — enforced by Controller, not by State itself.
type State struct {
	MnemonicID         string
	Mnemonic           MnemonicStatus
	Account            AccountStatus
	Subscription       SubscriptionStatus
	Device             DeviceStatus
	PendingZkNym       bool
	RequestZkNymResult ZkNymResult
}

// SharedState is a mutex-guarded State plus change notification, the Go
// equivalent of the account controller's cloneable shared-state handle.
type SharedState struct {
	mu    sync.RWMutex
	state State

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
}

// NewSharedState returns a SharedState with every field at its zero value
// (MnemonicNotStored, AccountNotRegistered, etc).
func NewSharedState() *SharedState {
	return &SharedState{subs: make(map[int]chan State)}
}

// Get returns the current snapshot.
func (s *SharedState) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the snapshot and notifies subscribers.
func (s *SharedState) Set(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.broadcast(state)
}

// Update applies fn to the current snapshot and stores + broadcasts the
// result, atomically with respect to other Set/Update callers.
func (s *SharedState) Update(fn func(State) State) State {
	s.mu.Lock()
	next := fn(s.state)
	s.state = next
	s.mu.Unlock()
	s.broadcast(next)
	return next
}

// Reset returns every field to its zero value (used by ForgetAccount).
func (s *SharedState) Reset() {
	s.Set(State{})
}

// Subscribe registers for every future Set/Update/Reset. Matches
// internal/vpn.Controller.Subscribe's non-blocking-send, drop-oldest
// discipline.
func (s *SharedState) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
		close(ch)
	}
}

func (s *SharedState) broadcast(state State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// ReadyToConnect implements the predicate spec §4.L names: the tunnel
// state machine must refuse connect unless this holds. sufficientTickets
// is only consulted when credentialsMode is set (spec: "and (if
// credentials mode) sufficient tickets").
func (s State) ReadyToConnect(credentialsMode bool, sufficientTickets bool) bool {
	if s.Mnemonic != MnemonicStored {
		return false
	}
	if s.Account != AccountActive {
		return false
	}
	if s.Subscription != SubscriptionActive {
		return false
	}
	if s.Device != DeviceActive {
		return false
	}
	if s.PendingZkNym {
		return false
	}
	if credentialsMode && !sufficientTickets {
		return false
	}
	return true
}
