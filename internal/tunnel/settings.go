// Package tunnel implements the tunnel monitor (spec §4.I): the
// orchestration of a single connect attempt, from gateway selection
// through tunnel-up, with every acquisition unwound on failure.
package tunnel

import (
	"net"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
)

// Type selects the overall tunnel topology (spec §3 Tunnel settings
// tunnelType).
type Type int

const (
	TypeMixnet Type = iota
	TypeWireguard
)

// WireguardMultihop selects how a Wireguard tunnel's two hops are realized
// (spec §3).
type WireguardMultihop int

const (
	MultihopTunTun WireguardMultihop = iota
	MultihopNetstack
)

// DefaultMTU and MobileMTU are the spec §4.I step 7 MTU defaults for a
// Mixnet-type tunnel.
const (
	DefaultMTU = 1500
	MobileMTU  = 1280
)

// Wireguard MTUs are derived from the physical path MTU minus the
// encapsulation overhead each hop adds (spec §4.I step 7): entry strips
// IPv4(20)+UDP(8)+WG(32)=60 bytes from 1500; exit strips
// IPv6(40)+UDP(8)+WG(32)=80 bytes from the entry MTU.
const (
	WireguardEntryMTU = DefaultMTU - 60
	WireguardExitMTU  = WireguardEntryMTU - 80
)

// Settings configures the tunnel a connect attempt will build (spec §3
// Tunnel settings).
type Settings struct {
	Type                      Type
	GatewayPerformanceOptions gateway.PerformanceOptions
	MTU                       int
	DNSServers                []net.IP
	EntryPoint                gateway.Point
	ExitPoint                 gateway.Point
	WireguardMultihop         WireguardMultihop
	EnableCredentialsMode     bool
}

func (s Settings) mtuOrDefault() int {
	if s.MTU != 0 {
		return s.MTU
	}
	return DefaultMTU
}
