package account

import "sync"

// CommandKind identifies one of the coalescable command kinds (spec §4.L:
// "duplicates are coalesced by kind").
type CommandKind int

const (
	CommandSyncAccountState CommandKind = iota
	CommandSyncDeviceState
	CommandRegisterDevice
	CommandRequestZkNym
)

func (k CommandKind) String() string {
	switch k {
	case CommandSyncAccountState:
		return "sync-account-state"
	case CommandSyncDeviceState:
		return "sync-device-state"
	case CommandRegisterDevice:
		return "register-device"
	case CommandRequestZkNym:
		return "request-zk-nym"
	default:
		return "unknown"
	}
}

// CommandOutcome reports whether Add started a new run for this kind or
// piggybacked on one already in flight (spec §4.L: "add to running returns
// IsFirst/IsDuplicate").
type CommandOutcome int

const (
	IsFirst CommandOutcome = iota
	IsDuplicate
)

// waiter is one caller waiting on the result of a coalescable command.
// resultCh is nil for commands queued internally (e.g. from a timer) with
// nobody blocked on the outcome.
type waiter struct {
	resultCh chan error
}

// runningCommands tracks, per kind, the set of callers waiting for the
// in-flight run of that kind to finish (spec §4.L command queue).
type runningCommands struct {
	mu      sync.Mutex
	waiters map[CommandKind][]waiter
}

func newRunningCommands() *runningCommands {
	return &runningCommands{waiters: make(map[CommandKind][]waiter)}
}

// add registers w under kind and reports whether a run must be started
// (IsFirst) or one is already in flight and w will be notified when it
// finishes (IsDuplicate).
func (r *runningCommands) add(kind CommandKind, w waiter) CommandOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, inFlight := r.waiters[kind]
	r.waiters[kind] = append(existing, w)
	if inFlight {
		return IsDuplicate
	}
	return IsFirst
}

// finish removes every waiter registered under kind and returns them, so
// the caller can notify each with the run's result.
func (r *runningCommands) finish(kind CommandKind) []waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiters := r.waiters[kind]
	delete(r.waiters, kind)
	return waiters
}

func notifyAll(waiters []waiter, err error) {
	for _, w := range waiters {
		if w.resultCh != nil {
			w.resultCh <- err
		}
	}
}
