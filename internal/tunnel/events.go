package tunnel

import (
	"time"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
)

// EventKind tags the lifecycle events a single connect attempt reports
// (spec §4.I steps 2-9).
type EventKind int

const (
	EventInitializingClient EventKind = iota
	EventSelectedGateways
	EventEstablishingTunnel
	EventUp
	EventError
	EventCancelled
)

// ConnectionKind distinguishes the two transport shapes a connected
// tunnel's Connection.Tunnel can hold (spec §3 Connection data).
type ConnectionKind int

const (
	ConnectionMixnet ConnectionKind = iota
	ConnectionWireguard
)

// Connection describes an established tunnel (spec §3 Connection data).
type Connection struct {
	EntryGateway gateway.Descriptor
	ExitGateway  gateway.Descriptor
	ConnectedAt  time.Time
	Kind         ConnectionKind
}

// Event is one lifecycle notification from a running Attempt. Exactly one
// of {EventUp, EventError, EventCancelled} occurs per attempt (spec §8).
type Event struct {
	Kind EventKind

	// valid when Kind == EventSelectedGateways
	Entry gateway.Descriptor
	Exit  gateway.Descriptor

	// valid when Kind == EventEstablishingTunnel or EventUp
	Connection Connection

	// valid when Kind == EventError
	Err error
}
