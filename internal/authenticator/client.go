package authenticator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
)

// RequestTimeout is the normative per-call timeout (spec §4.C, §5).
const RequestTimeout = 10 * time.Second

// TopUpMaxRetries is the number of times the caller may retry a TopUp call
// on timeout (spec §4.C).
const TopUpMaxRetries = 5

// Client talks to one gateway's authenticator service via the shared
// mixnet handle.
//
// Grounded on the version-window handling and send/receive-lock shape
// described in spec §4.C; there is no original_source file specific to
// the authenticator beyond the gateway-side Rust crate this core does not
// implement (spec explicitly scopes the authenticator's cryptographic
// internals out — §1).
type Client struct {
	handle *mixnet.Handle
}

// NewClient constructs an authenticator client bound to the shared mixnet
// handle.
func NewClient(handle *mixnet.Handle) *Client {
	return &Client{handle: handle}
}

func randomRequestID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate request id: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (c *Client) checkVersion(version uint8) error {
	switch {
	case version > UsedVersion+1:
		return ErrReceivedResponseWithNewVersion
	case version < UsedVersion:
		return ErrReceivedResponseWithOldVersion
	default:
		return nil
	}
}

// sendRequest serializes body, sends it to authRecipient, and waits for a
// matching response id while holding the shared handle's receive lock for
// the whole wait (spec §5 shared-resource policy).
func (c *Client) sendRequest(ctx context.Context, authRecipient gateway.Recipient, body requestBody, requestID uint64) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	frame, err := encodeFrame(UsedVersion, body)
	if err != nil {
		return Response{}, fmt.Errorf("encode authenticator request: %w", err)
	}

	unlock := c.handle.Lock()
	defer unlock()

	msg := mixnet.InputMessage{Recipient: authRecipient, Lane: "regular", Payload: frame}
	if err := c.handle.Send(ctx, msg); err != nil {
		return Response{}, fmt.Errorf("send authenticator request: %w", err)
	}

	for {
		recv, err := c.handle.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return Response{}, ErrTimeout
			}
			return Response{}, err
		}

		var resp responseBody
		version, err := decodeFrame(recv.Payload, &resp)
		if err != nil {
			continue // not authenticator traffic, or malformed — ignore
		}
		if err := c.checkVersion(version); err != nil {
			return Response{}, err
		}
		if responseRequestID(resp) == requestID {
			return Response{body: resp}, nil
		}
	}
}

func responseRequestID(resp responseBody) uint64 {
	switch resp.Enum {
	case tagPendingRegistration:
		return resp.PendingRegistration.RequestID
	case tagRegistered:
		return resp.Registered.RequestID
	case tagRemainingBandwidth:
		return resp.RemainingBandwidth.RequestID
	case tagTopUpBandwidth:
		return resp.TopUpBandwidth.RequestID
	case tagError:
		return resp.Error.RequestID
	}
	return 0
}

// Initial sends the Initial{clientPub} handshake step and returns the
// response for the caller (GatewayClient in internal/wireguard) to branch
// on PendingRegistration vs Registered.
func (c *Client) Initial(ctx context.Context, authRecipient gateway.Recipient, clientPub [32]byte) (Response, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return Response{}, err
	}
	body := requestBody{Enum: tagInitial, Initial: initialRequest{RequestID: requestID, ClientPub: clientPub}}
	return c.sendRequest(ctx, authRecipient, body, requestID)
}

// Final sends the Final{gatewayClient, credential} handshake step.
func (c *Client) Final(ctx context.Context, authRecipient gateway.Recipient, gatewayClient GatewayClientMac, credential []byte) (Response, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return Response{}, err
	}
	encoded, err := gatewayClient.Encode()
	if err != nil {
		return Response{}, err
	}
	body := requestBody{Enum: tagFinal, Final: finalRequest{
		RequestID:     requestID,
		GatewayClient: encoded,
		HasCredential: credential != nil,
		Credential:    credential,
	}}
	return c.sendRequest(ctx, authRecipient, body, requestID)
}

// Query asks the gateway for remaining bandwidth.
func (c *Client) Query(ctx context.Context, authRecipient gateway.Recipient, clientPub [32]byte) (availableBytes int64, suspended bool, err error) {
	requestID, err := randomRequestID()
	if err != nil {
		return 0, false, err
	}
	body := requestBody{Enum: tagQuery, Query: queryRequest{RequestID: requestID, ClientPub: clientPub}}
	resp, err := c.sendRequest(ctx, authRecipient, body, requestID)
	if err != nil {
		return 0, false, err
	}
	bytesAvail, hasAvail, ok := resp.AsRemainingBandwidth()
	if !ok {
		return 0, false, ErrTimeout
	}
	if !hasAvail {
		return 0, true, nil // "suspended" sentinel (spec §4.D)
	}
	return bytesAvail, false, nil
}

// TopUp redeems a credential for additional bandwidth. The caller may
// retry up to TopUpMaxRetries times on ErrTimeout (spec §4.C, §5).
func (c *Client) TopUp(ctx context.Context, authRecipient gateway.Recipient, clientPub [32]byte, credential []byte) (int64, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return 0, err
	}
	body := requestBody{Enum: tagTopUp, TopUp: topUpRequest{RequestID: requestID, ClientPub: clientPub, Credential: credential}}
	resp, err := c.sendRequest(ctx, authRecipient, body, requestID)
	if err != nil {
		return 0, err
	}
	avail, ok := resp.AsTopUpBandwidth()
	if !ok {
		return 0, ErrTimeout
	}
	return avail, nil
}
