// Package icmpbeacon implements the ICMP liveness beacon (spec §4.F):
// two IPv4 and two IPv6 echo probes, bundled into IPR Data frames and sent
// to the exit IPR every second.
//
// Raw protocol packets are built with gopacket's layer-framing style; the
// probe-goroutine/context-deadline loop shape drives the send cadence.
package icmpbeacon

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jonboulle/clockwork"
)

// ProbeInterval is the normative cadence (spec §4.F).
const ProbeInterval = 1000 * time.Millisecond

// DefaultExternalIPv4 and DefaultExternalIPv6 are the well-known external
// probe targets spec §4.F calls for ("tests that the IPR is forwarding"),
// Cloudflare's public resolver on both address families.
var (
	DefaultExternalIPv4 = net.IPv4(1, 1, 1, 1)
	DefaultExternalIPv6 = net.ParseIP("2606:4700:4700::1111")
)

// Target names a probe destination and its purpose.
type Target struct {
	Name string // "tun" or "external"
	IPv4 net.IP
	IPv6 net.IP
}

// Sender delivers one bundled IP frame to the exit IPR. Implemented by
// internal/ipr.EncodeDataFrame plus a mixnet send in the caller that wires
// this beacon up, keeping icmpbeacon free of a mixnet/ipr import cycle.
type Sender interface {
	SendFrame(ctx context.Context, ipFrame []byte) error
}

// Beacon emits four ICMP echo probes every ProbeInterval: IPv4/IPv6 to the
// IPR's own tun address, and IPv4/IPv6 to a well-known external host
// (spec §4.F).
type Beacon struct {
	sender   Sender
	tunV4    net.IP
	tunV6    net.IP
	extV4    net.IP
	extV6    net.IP
	identifier uint16
	clock    clockwork.Clock
	log      *slog.Logger

	seq uint16
}

// NewBeacon constructs an ICMP beacon. tunV4/tunV6 are the exit IPR's own
// assigned tun addresses (from the IPR connect response); extV4/extV6 are
// well-known external probe targets.
func NewBeacon(sender Sender, tunV4, tunV6, extV4, extV6 net.IP, clock clockwork.Clock, log *slog.Logger) *Beacon {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Beacon{
		sender: sender, tunV4: tunV4, tunV6: tunV6, extV4: extV4, extV6: extV6,
		identifier: uint16(rand.Intn(1 << 16)),
		clock:      clock, log: log,
	}
}

// Identifier returns the process-local 16-bit ICMP identifier used to
// classify replies (spec §4.F, consumed by internal/tunnel's mixnet
// listener).
func (b *Beacon) Identifier() uint16 {
	return b.identifier
}

// Run blocks until ctx is cancelled, sending all four probes every
// ProbeInterval.
func (b *Beacon) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.tick(ctx)
		}
	}
}

func (b *Beacon) tick(ctx context.Context) {
	b.seq++
	seq := b.seq

	b.probe(ctx, b.tunV4, false, seq)
	b.probe(ctx, b.extV4, false, seq)
	b.probe(ctx, b.tunV6, true, seq)
	b.probe(ctx, b.extV6, true, seq)
}

func (b *Beacon) probe(ctx context.Context, dst net.IP, v6 bool, seq uint16) {
	if dst == nil {
		return
	}
	frame, err := buildEchoFrame(dst, v6, b.identifier, seq)
	if err != nil {
		b.log.Warn("icmp beacon: failed to build probe frame", "error", err, "dst", dst)
		return
	}
	if err := b.sender.SendFrame(ctx, frame); err != nil {
		b.log.Warn("icmp beacon: send failed", "error", err, "dst", dst)
	}
}

// buildEchoFrame builds a complete bundled IP packet (spec §4.F: "each
// probe is encapsulated into a bundled-IP-packet frame") carrying an ICMP
// echo request addressed to dst. The source address is left zero; the
// exit IPR fills it in from the session's assigned IP pair before
// forwarding.
func buildEchoFrame(dst net.IP, v6 bool, identifier, seq uint16) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	payload := gopacket.Payload([]byte("nym-vpnd"))

	if v6 {
		ip := &layers.IPv6{Version: 6, NextHeader: layers.IPProtocolICMPv6, HopLimit: 64, SrcIP: net.IPv6zero, DstIP: dst}
		icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
		icmp.SetNetworkLayerForChecksum(ip)
		echo := &layers.ICMPv6Echo{Identifier: identifier, SeqNumber: seq}
		if err := gopacket.SerializeLayers(buf, opts, ip, icmp, echo, payload); err != nil {
			return nil, fmt.Errorf("serialize icmpv6 echo: %w", err)
		}
		return buf.Bytes(), nil
	}

	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4, SrcIP: net.IPv4zero, DstIP: dst}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       identifier,
		Seq:      seq,
	}
	if err := gopacket.SerializeLayers(buf, opts, ip, icmp, payload); err != nil {
		return nil, fmt.Errorf("serialize icmpv4 echo: %w", err)
	}
	return buf.Bytes(), nil
}
