package control

import (
	"fmt"
	"net"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/tunnel"
)

// pointRequest is the wire shape of one EntryPoint/ExitPoint selector
// (spec §3 Tunnel settings entryPoint/exitPoint).
type pointRequest struct {
	Kind     string `json:"kind"` // "random", "random_low_latency", "location", "identity", "address"
	Location string `json:"location,omitempty"`
	Identity string `json:"identity,omitempty"`
	Address  string `json:"address,omitempty"`
}

func (p pointRequest) toPoint() (gateway.Point, error) {
	switch p.Kind {
	case "", "random":
		return gateway.RandomPoint(), nil
	case "random_low_latency":
		return gateway.RandomLowLatencyPoint(), nil
	case "location":
		return gateway.ByLocationPoint(p.Location), nil
	case "identity":
		id, err := gateway.ParseNodeIdentity(p.Identity)
		if err != nil {
			return gateway.Point{}, err
		}
		return gateway.ByIdentityPoint(id), nil
	case "address":
		addr, err := gateway.ParseRecipient(p.Address)
		if err != nil {
			return gateway.Point{}, err
		}
		return gateway.ByAddressPoint(addr), nil
	default:
		return gateway.Point{}, fmt.Errorf("control: unknown point kind %q", p.Kind)
	}
}

// connectRequest is the JSON body of POST /v1/connect (spec §4.M connect,
// folding in the tunnel settings since the spec names no separate
// setTunnelSettings operation).
type connectRequest struct {
	TunnelType            string       `json:"tunnel_type"` // "mixnet" or "wireguard"
	EntryPoint             pointRequest `json:"entry_point"`
	ExitPoint              pointRequest `json:"exit_point"`
	MinMixnetPerformance   int          `json:"min_mixnet_performance"`
	MinVpnPerformance      int          `json:"min_vpn_performance"`
	MTU                    int          `json:"mtu"`
	DNSServers             []string     `json:"dns_servers"`
	WireguardMultihop      string       `json:"wireguard_multihop"` // "tun_tun" or "netstack"
	EnableCredentialsMode  bool         `json:"enable_credentials_mode"`
}

func (r connectRequest) toSettings() (tunnel.Settings, error) {
	var s tunnel.Settings

	switch r.TunnelType {
	case "", "mixnet":
		s.Type = tunnel.TypeMixnet
	case "wireguard":
		s.Type = tunnel.TypeWireguard
	default:
		return tunnel.Settings{}, fmt.Errorf("control: unknown tunnel_type %q", r.TunnelType)
	}

	switch r.WireguardMultihop {
	case "", "tun_tun":
		s.WireguardMultihop = tunnel.MultihopTunTun
	case "netstack":
		s.WireguardMultihop = tunnel.MultihopNetstack
	default:
		return tunnel.Settings{}, fmt.Errorf("control: unknown wireguard_multihop %q", r.WireguardMultihop)
	}

	entry, err := r.EntryPoint.toPoint()
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("control: entry_point: %w", err)
	}
	exit, err := r.ExitPoint.toPoint()
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("control: exit_point: %w", err)
	}

	s.EntryPoint = entry
	s.ExitPoint = exit
	s.GatewayPerformanceOptions = gateway.PerformanceOptions{
		MinMixnetPerformance: r.MinMixnetPerformance,
		MinVpnPerformance:    r.MinVpnPerformance,
	}
	s.MTU = r.MTU
	s.EnableCredentialsMode = r.EnableCredentialsMode

	for _, raw := range r.DNSServers {
		ip := net.ParseIP(raw)
		if ip == nil {
			return tunnel.Settings{}, fmt.Errorf("control: invalid dns_servers entry %q", raw)
		}
		s.DNSServers = append(s.DNSServers, ip)
	}
	return s, nil
}

// errorResponse is the JSON body written for every non-2xx response:
// {"status": "error", "description": "..."}.
type errorResponse struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

// okResponse is the JSON body for a bodyless success (teacher's
// `{"status": "ok"}` shape).
type okResponse struct {
	Status string `json:"status"`
}

// gatewayResponse is the wire shape of a gateway.Descriptor (spec §4.M
// listGateways).
type gatewayResponse struct {
	Identity string `json:"identity"`
	Host     string `json:"host"`
	Location string `json:"location"`
}

func toGatewayResponse(d gateway.Descriptor) gatewayResponse {
	return gatewayResponse{
		Identity: d.Identity.String(),
		Host:     d.Host,
		Location: d.Location,
	}
}
