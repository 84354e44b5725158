package wireguard

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"

	"github.com/nymtech/nym-vpnd-core/internal/authenticator"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
)

// LowBandwidthWarningThreshold triggers a logged warning (spec §4.D:
// "logs a warning when remaining < 1 MiB").
const LowBandwidthWarningThreshold = 1 << 20

// GatewayData is the resolved WireGuard peer configuration for one
// gateway role (spec §4.D step 4).
type GatewayData struct {
	PublicKey   [32]byte
	Endpoint    netAddr
	PrivateIPv4 net.IP
}

type netAddr struct {
	Host string
	Port uint16
}

func (a netAddr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Client registers and queries one gateway's WireGuard authenticator over
// the shared mixnet handle.
type Client struct {
	auth *authenticator.Client
	role Role
	key  KeyPair
	log  *slog.Logger
}

// NewClient constructs a WG gateway client for role, with its keypair
// loaded from (or generated into) dataDir.
func NewClient(auth *authenticator.Client, dataDir string, role Role, log *slog.Logger) (*Client, error) {
	kp, err := LoadOrCreateKeyPair(dataDir, role)
	if err != nil {
		return nil, fmt.Errorf("load wireguard keypair for %s: %w", role, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{auth: auth, role: role, key: kp, log: log}, nil
}

// macKey derives the HMAC key the gateway uses to authenticate its
// PendingRegistration payload: an HMAC over the client's own private key
// and the server-supplied nonce. The underlying mixnet SDK's concrete
// ecash/noise primitives are outside this spec's scope (§1); this
// reproduces the "verify gwData's MAC using our private key and nonce"
// step (§4.D step 3) with a standard-library primitive.
func macKey(priv [32]byte, nonce [24]byte) []byte {
	h := hmac.New(sha256.New, priv[:])
	h.Write(nonce[:])
	return h.Sum(nil)
}

func verifyMAC(priv [32]byte, nonce [24]byte, gwData authenticator.GatewayClientMac) bool {
	key := macKey(priv, nonce)
	expected := hmac.New(sha256.New, key)
	expected.Write(gwData.ClientPub[:])
	expected.Write(gwData.GatewayPub[:])
	return hmac.Equal(expected.Sum(nil)[:16], gwData.Mac[:])
}

func gatewayDataFromRegistered(reg authenticator.Registered, gatewayHost string) (GatewayData, error) {
	if reg.PrivateIPv4 == ([4]byte{}) && reg.HasIPv6 {
		return GatewayData{}, authenticator.ErrInvalidGatewayAuthResponse
	}
	return GatewayData{
		PublicKey:   reg.GatewayPub,
		Endpoint:    netAddr{Host: gatewayHost, Port: reg.WgPort},
		PrivateIPv4: net.IP(reg.PrivateIPv4[:]),
	}, nil
}

func deniedOrTimeout(resp authenticator.Response) error {
	if reason, ok := resp.AsError(); ok {
		return &authenticator.AuthenticationDenied{Reason: reason}
	}
	return authenticator.ErrTimeout
}

// RegisterWireguard performs the Initial -> PendingRegistration -> Final
// -> Registered handshake (spec §4.D).
func (c *Client) RegisterWireguard(ctx context.Context, authRecipient gateway.Recipient, gatewayHost string, credential []byte) (GatewayData, error) {
	initResp, err := c.auth.Initial(ctx, authRecipient, c.key.Public)
	if err != nil {
		return GatewayData{}, fmt.Errorf("wireguard initial handshake: %w", err)
	}

	if reg, ok := initResp.AsRegistered(); ok {
		return gatewayDataFromRegistered(reg, gatewayHost)
	}

	pending, ok := initResp.AsPendingRegistration()
	if !ok {
		return GatewayData{}, deniedOrTimeout(initResp)
	}

	gwData, err := authenticator.DecodeGatewayClientMac(pending.GwData)
	if err != nil {
		return GatewayData{}, fmt.Errorf("decode gateway client MAC: %w", err)
	}
	if !verifyMAC(c.key.Private, pending.Nonce, gwData) {
		return GatewayData{}, authenticator.ErrMacVerificationFailed
	}

	finalPayload := authenticator.GatewayClientMac{
		ClientPub:  c.key.Public,
		GatewayPub: gwData.GatewayPub,
		Nonce:      pending.Nonce,
		Mac:        gwData.Mac,
	}
	finalResp, err := c.auth.Final(ctx, authRecipient, finalPayload, credential)
	if err != nil {
		return GatewayData{}, fmt.Errorf("wireguard final handshake: %w", err)
	}
	reg, ok := finalResp.AsRegistered()
	if !ok {
		return GatewayData{}, deniedOrTimeout(finalResp)
	}
	return gatewayDataFromRegistered(reg, gatewayHost)
}

// QueryBandwidth returns remaining bytes, or ok=false meaning "suspended"
// (spec §4.D) — the caller should surface a client warning.
func (c *Client) QueryBandwidth(ctx context.Context, authRecipient gateway.Recipient) (remaining int64, ok bool, err error) {
	bytesRemaining, suspended, err := c.auth.Query(ctx, authRecipient, c.key.Public)
	if err != nil {
		return 0, false, err
	}
	if suspended {
		return 0, false, nil
	}
	if bytesRemaining < LowBandwidthWarningThreshold {
		c.log.Warn("wireguard gateway bandwidth running low", "role", c.role, "remaining_bytes", bytesRemaining)
	}
	return bytesRemaining, true, nil
}

// TopUp redeems credential for more bandwidth at the gateway.
func (c *Client) TopUp(ctx context.Context, authRecipient gateway.Recipient, credential []byte) (int64, error) {
	return c.auth.TopUp(ctx, authRecipient, c.key.Public, credential)
}
