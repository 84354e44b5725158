// Package gateway holds the address types, descriptor, and directory client
// shared by every component that needs to talk about a mixnet gateway.
package gateway

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// Recipient is the canonical (userPK, encryptionPK, gatewayID) triple
// addressing a mixnet client or service. It is immutable once parsed.
type Recipient struct {
	UserPK       [32]byte
	EncryptionPK [32]byte
	GatewayID    [32]byte
}

// String renders the canonical base58 form: three 32-byte keys concatenated
// and base58-encoded, matching the pack's identity-encoding convention.
func (r Recipient) String() string {
	var buf [96]byte
	copy(buf[0:32], r.UserPK[:])
	copy(buf[32:64], r.EncryptionPK[:])
	copy(buf[64:96], r.GatewayID[:])
	return base58.Encode(buf[:])
}

// ParseRecipient decodes the canonical base58 form produced by String.
func ParseRecipient(s string) (Recipient, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Recipient{}, fmt.Errorf("decode recipient: %w", err)
	}
	if len(raw) != 96 {
		return Recipient{}, fmt.Errorf("decode recipient: expected 96 bytes, got %d", len(raw))
	}
	var r Recipient
	copy(r.UserPK[:], raw[0:32])
	copy(r.EncryptionPK[:], raw[32:64])
	copy(r.GatewayID[:], raw[64:96])
	return r, nil
}

// Equal reports whether two recipients address the same mix address.
func (r Recipient) Equal(other Recipient) bool {
	return bytes.Equal(r.UserPK[:], other.UserPK[:]) &&
		bytes.Equal(r.EncryptionPK[:], other.EncryptionPK[:]) &&
		bytes.Equal(r.GatewayID[:], other.GatewayID[:])
}

// NodeIdentity is a gateway's public signing key, base58-encoded. Immutable.
type NodeIdentity [32]byte

func (n NodeIdentity) String() string {
	return base58.Encode(n[:])
}

// ParseNodeIdentity decodes a base58 node identity.
func ParseNodeIdentity(s string) (NodeIdentity, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("decode node identity: %w", err)
	}
	if len(raw) != 32 {
		return NodeIdentity{}, fmt.Errorf("decode node identity: expected 32 bytes, got %d", len(raw))
	}
	var n NodeIdentity
	copy(n[:], raw)
	return n, nil
}
