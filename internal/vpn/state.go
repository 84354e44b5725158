// Package vpn implements the public tunnel state machine (spec §4.J): the
// single source of truth for Disconnected/Connecting/Connected/
// Disconnecting/Error, driven by the Events a running internal/tunnel.Attempt
// reports and by the caller's connect/disconnect/setTunnelSettings calls.
package vpn

import (
	"fmt"

	"github.com/nymtech/nym-vpnd-core/internal/tunnel"
)

// Phase is one of the five states a tunnel can be in (spec §4.J).
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// DisconnectReason tags why a Disconnecting state was entered (spec §4.J).
type DisconnectReason int

const (
	// DisconnectNothing: a caller-requested disconnect; the next state is
	// Disconnected.
	DisconnectNothing DisconnectReason = iota
	// DisconnectReconnect: the attempt exited with a retryable failure;
	// the next state is Connecting, with a fresh attempt at retryAttempt+1.
	DisconnectReconnect
	// DisconnectError: the attempt exited with a terminal failure; the
	// next state is Error(reason).
	DisconnectError
)

// State is one broadcast snapshot of the state machine (spec §4.J: "every
// transition is broadcast to subscribers").
type State struct {
	Phase Phase

	// Connection is valid when Phase == PhaseConnected.
	Connection tunnel.Connection

	// DisconnectReason is valid when Phase == PhaseDisconnecting.
	DisconnectReason DisconnectReason

	// Err is valid when Phase == PhaseError, or when Phase ==
	// PhaseDisconnecting with DisconnectReason == DisconnectError.
	Err error
}

func (s State) String() string {
	switch s.Phase {
	case PhaseConnected:
		return fmt.Sprintf("connected(entry=%s exit=%s)", s.Connection.EntryGateway.Identity, s.Connection.ExitGateway.Identity)
	case PhaseDisconnecting:
		switch s.DisconnectReason {
		case DisconnectReconnect:
			return "disconnecting(reconnect)"
		case DisconnectError:
			return fmt.Sprintf("disconnecting(error: %v)", s.Err)
		default:
			return "disconnecting(nothing)"
		}
	case PhaseError:
		return fmt.Sprintf("error(%v)", s.Err)
	default:
		return s.Phase.String()
	}
}
