// Package authenticator implements the authenticator client (spec §4.C):
// the challenge-response registration protocol used to bring up a
// WireGuard peer at a gateway via the mixnet.
package authenticator

import (
	"github.com/gagliardetto/binary"
	"github.com/near/borsh-go"
)

// UsedVersion is this core's compiled-in authenticator protocol version.
const UsedVersion uint8 = 4

// reservedVersionCeiling is the upper bound below which a message is
// considered authenticator traffic at all (spec §4.C: "filtered by an
// upper bound on the version byte (< 6 reserved)").
const reservedVersionCeiling uint8 = 6

// GatewayClientMac is the fixed-width nonce/MAC/client-key envelope
// exchanged during the Final step. Unlike the rest of the protocol this is
// packed with gagliardetto/binary rather than borsh: the MAC covers a
// fixed-width byte layout specified by the gateway's wireguard crate, not
// a schema-derived layout borsh can express directly.
type GatewayClientMac struct {
	ClientPub  [32]byte
	GatewayPub [32]byte
	Nonce      [24]byte
	Mac        [16]byte
}

// Encode packs a GatewayClientMac into the fixed-width wire layout.
func (m GatewayClientMac) Encode() ([]byte, error) {
	out := make([]byte, 0, 32+32+24+16)
	out = append(out, m.ClientPub[:]...)
	out = append(out, m.GatewayPub[:]...)
	out = append(out, m.Nonce[:]...)
	out = append(out, m.Mac[:]...)
	return out, nil
}

// DecodeGatewayClientMac unpacks the fixed-width wire layout produced by
// Encode.
func DecodeGatewayClientMac(raw []byte) (GatewayClientMac, error) {
	var m GatewayClientMac
	dec := binary.NewBinDecoder(raw)
	if err := dec.Decode(&m.ClientPub); err != nil {
		return m, err
	}
	if err := dec.Decode(&m.GatewayPub); err != nil {
		return m, err
	}
	if err := dec.Decode(&m.Nonce); err != nil {
		return m, err
	}
	if err := dec.Decode(&m.Mac); err != nil {
		return m, err
	}
	return m, nil
}

// requestBody is the borsh-enum envelope for every authenticator request
// kind (spec §3: Initial, Final, Query, TopUp).
type requestBody struct {
	Enum    borsh.Enum `borsh_enum:"true"`
	Initial initialRequest
	Final   finalRequest
	Query   queryRequest
	TopUp   topUpRequest
}

type initialRequest struct {
	RequestID uint64
	ClientPub [32]byte
}

type finalRequest struct {
	RequestID      uint64
	GatewayClient  []byte // encoded GatewayClientMac
	HasCredential  bool
	Credential     []byte
}

type queryRequest struct {
	RequestID uint64
	ClientPub [32]byte
}

type topUpRequest struct {
	RequestID  uint64
	ClientPub  [32]byte
	Credential []byte
}

const (
	tagInitial borsh.Enum = iota
	tagFinal
	tagQuery
	tagTopUp
)

// responseBody is the borsh-enum envelope for every authenticator response
// kind.
type responseBody struct {
	Enum               borsh.Enum `borsh_enum:"true"`
	PendingRegistration pendingRegistrationResponse
	Registered         registeredResponse
	RemainingBandwidth remainingBandwidthResponse
	TopUpBandwidth     topUpBandwidthResponse
	Error              errorResponse
}

type pendingRegistrationResponse struct {
	RequestID uint64
	Nonce     [24]byte
	GwData    []byte // encoded GatewayClientMac, pre-Final
}

type registeredResponse struct {
	RequestID  uint64
	GatewayPub [32]byte
	WgPort     uint16
	PrivateIPv4 [4]byte
	HasIPv6    bool
	PrivateIPv6 [16]byte
}

type remainingBandwidthResponse struct {
	RequestID      uint64
	HasAvailable   bool
	AvailableBytes int64
}

type topUpBandwidthResponse struct {
	RequestID      uint64
	AvailableBytes int64
}

type errorResponse struct {
	RequestID uint64
	Reason    string
}

const (
	tagPendingRegistration borsh.Enum = iota
	tagRegistered
	tagRemainingBandwidth
	tagTopUpBandwidth
	tagError
)

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
	if version >= reservedVersionCeiling {
		return version, ErrNotAuthenticatorMessage
	}
	if err := borsh.Deserialize(body, frame[1:]); err != nil {
		return version, err
	}
	return version, nil
}
