// Package ipr implements the IP-packet-router client (spec §4.B): the
// mixnet-side handshake that assigns a session IP pair at the exit
// gateway and carries user IP frames afterward.
package ipr

import (
	"github.com/near/borsh-go"
)

// CurrentVersion is this core's compiled-in IPR protocol version.
const CurrentVersion uint8 = 6

// IPPair is the (IPv4, IPv6) pair assigned to a session.
type IPPair struct {
	IPv4 [4]byte
	IPv6 [16]byte
}

// requestBody is the borsh-enum envelope for every IPR request kind.
// near/borsh-go serializes the Enum discriminant byte followed by exactly
// the selected variant's fields, matching the tagged-union shape spec §3
// describes.
type requestBody struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	StaticConnect  staticConnectRequest
	DynamicConnect dynamicConnectRequest
	Ping           pingRequest
	Data           dataRequest
}

type staticConnectRequest struct {
	RequestID uint64
	IPs       IPPair
	ReplyTo   [96]byte
	HasHops   bool
	Hops      uint8
}

type dynamicConnectRequest struct {
	RequestID uint64
	ReplyTo   [96]byte
	HasHops   bool
	Hops      uint8
}

type pingRequest struct {
	RequestID uint64
	ReplyTo   [96]byte
}

type dataRequest struct {
	IPFrame []byte
}

const (
	tagStaticConnect borsh.Enum = iota
	tagDynamicConnect
	tagPing
	tagData
)

// tagPong aliases the response-side enum index occupying the same
// ordinal position as tagPing on the request side.
const tagPong = tagPing

// responseBody is the borsh-enum envelope for every IPR response kind.
type responseBody struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	StaticConnect  staticConnectResponse
	DynamicConnect dynamicConnectResponse
	Pong           pongResponse
	Data           dataResponse
}

type staticConnectResponse struct {
	RequestID uint64
	ReplyTo   [96]byte
	Success   bool
	Reason    string
}

type dynamicConnectResponse struct {
	RequestID uint64
	ReplyTo   [96]byte
	Success   bool
	IPs       IPPair
	Reason    string
}

type pongResponse struct {
	RequestID uint64
}

type dataResponse struct {
	IPFrame []byte
}

// encodeFrame wraps a borsh-encoded body with the leading version byte
// (spec §3: "a one-byte leading version tag, then a serialized body").
func encodeFrame(version uint8, body any) ([]byte, error) {
	encoded, err := borsh.Serialize(body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(encoded))
	out[0] = version
	copy(out[1:], encoded)
	return out, nil
}

func decodeFrame(frame []byte, body any) (version uint8, err error) {
	if len(frame) < 1 {
		return 0, ErrNoVersionInMessage
	}
	version = frame[0]
	if err := borsh.Deserialize(body, frame[1:]); err != nil {
		return version, err
	}
	return version, nil
}
