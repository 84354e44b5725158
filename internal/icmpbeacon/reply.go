package icmpbeacon

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ReplyKind classifies a decoded ICMP echo reply by which probe it answers.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyIPv4
	ReplyIPv6
)

// ParseEchoReply decodes a bundled IP frame returned by the exit IPR and
// extracts its ICMP identifier/sequence if it is an echo reply matching
// identifier. internal/tunnel's mixnet listener uses this to classify tun
// vs external replies (by source address, which the caller checks
// separately).
func ParseEchoReply(frame []byte, identifier uint16) (kind ReplyKind, seq uint16, ok bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if ipv4 := packet.Layer(layers.LayerTypeIPv4); ipv4 != nil {
		if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
			icmp := l.(*layers.ICMPv4)
			if icmp.TypeCode.Type() == layers.ICMPv4TypeEchoReply && icmp.Id == identifier {
				return ReplyIPv4, icmp.Seq, true
			}
		}
		return ReplyUnknown, 0, false
	}

	packet = gopacket.NewPacket(frame, layers.LayerTypeIPv6, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if l := packet.Layer(layers.LayerTypeICMPv6Echo); l != nil {
		echo := l.(*layers.ICMPv6Echo)
		if icmpL := packet.Layer(layers.LayerTypeICMPv6); icmpL != nil {
			icmp := icmpL.(*layers.ICMPv6)
			if icmp.TypeCode.Type() == layers.ICMPv6TypeEchoReply && echo.Identifier == identifier {
				return ReplyIPv6, echo.SeqNumber, true
			}
		}
	}
	return ReplyUnknown, 0, false
}

// ErrNoIPLayer is returned by EchoReplySource when frame carries neither
// an IPv4 nor an IPv6 layer.
var ErrNoIPLayer = errors.New("icmpbeacon: frame has no IP layer")

// EchoReplySource extracts the source address of a bundled IP frame, used
// by internal/tunnel's mixnet listener to tell a tun-address reply from an
// external-destination reply.
func EchoReplySource(frame []byte) (net.IP, error) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		return l.(*layers.IPv4).SrcIP, nil
	}
	packet = gopacket.NewPacket(frame, layers.LayerTypeIPv6, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		return l.(*layers.IPv6).SrcIP, nil
	}
	return nil, ErrNoIPLayer
}
