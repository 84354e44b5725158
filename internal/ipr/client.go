package ipr

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
)

// ConnectTimeout is the normative wait for a connect response (spec §4.B
// step 3, §5).
const ConnectTimeout = 5 * time.Second

// Client is the IPR client handle. It refuses a second Connect call on the
// same instance (spec §4.B: "the client refuses a second connect on the
// same instance").
//
// Grounded on _examples/original_source/crates/nym-ip-packet-client/src/lib.rs:
// IprClient::connect/send_connect_request/wait_for_connect_response/
// check_ipr_message_version, reproduced as a single Connect call here since
// this core has no async task boundary to split the send and receive halves
// across.
type Client struct {
	handle *mixnet.Handle

	mu        sync.Mutex
	connected bool
}

// NewClient constructs an IPR client bound to the shared mixnet handle.
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

func recipientBytes(r gateway.Recipient) [96]byte {
	var out [96]byte
	copy(out[0:32], r.UserPK[:])
	copy(out[32:64], r.EncryptionPK[:])
	copy(out[64:96], r.GatewayID[:])
	return out
}

func recipientFromBytes(b [96]byte) gateway.Recipient {
	var r gateway.Recipient
	copy(r.UserPK[:], b[0:32])
	copy(r.EncryptionPK[:], b[32:64])
	copy(r.GatewayID[:], b[64:96])
	return r
}

// Connect performs the static or dynamic connect handshake with the exit
// IPR (spec §4.B). If ips is non-nil, a static connect is requested for
// exactly those addresses; otherwise a dynamic assignment is requested.
// When twoHop is set, the request asks for zero additional mixnet hops
// (direct entry to exit).
func (c *Client) Connect(ctx context.Context, iprAddr gateway.Recipient, ips *IPPair, twoHop bool) (IPPair, error) {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return IPPair{}, ErrAlreadyConnected
	}
	c.mu.Unlock()

	requestID, err := c.sendConnectRequest(ctx, iprAddr, ips, twoHop)
	if err != nil {
		return IPPair{}, err
	}

	resp, err := c.waitForConnectResponse(ctx, requestID)
	if err != nil {
		return IPPair{}, err
	}

	switch {
	case resp.Enum == tagStaticConnect && ips != nil:
		if !resp.StaticConnect.Success {
			return IPPair{}, &ConnectRequestDenied{Reason: resp.StaticConnect.Reason}
		}
		if err := c.validateReplyTo(iprAddr, resp.StaticConnect.ReplyTo); err != nil {
			return IPPair{}, err
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		return *ips, nil

	case resp.Enum == tagDynamicConnect && ips == nil:
		if !resp.DynamicConnect.Success {
			return IPPair{}, &ConnectRequestDenied{Reason: resp.DynamicConnect.Reason}
		}
		if err := c.validateReplyTo(iprAddr, resp.DynamicConnect.ReplyTo); err != nil {
			return IPPair{}, err
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		return resp.DynamicConnect.IPs, nil

	default:
		return IPPair{}, ErrUnexpectedConnectResponse
	}
}

func (c *Client) validateReplyTo(_ gateway.Recipient, replyTo [96]byte) error {
	got := recipientFromBytes(replyTo)
	if !got.Equal(c.handle.NymAddress()) {
		return ErrGotReplyIntendedForWrongAddress
	}
	return nil
}

func (c *Client) sendConnectRequest(ctx context.Context, iprAddr gateway.Recipient, ips *IPPair, twoHop bool) (uint64, error) {
	requestID, err := randomRequestID()
	if err != nil {
		return 0, err
	}

	replyTo := recipientBytes(c.handle.NymAddress())

	var body requestBody
	if ips != nil {
		body = requestBody{
			Enum: tagStaticConnect,
			StaticConnect: staticConnectRequest{
				RequestID: requestID,
				IPs:       *ips,
				ReplyTo:   replyTo,
				HasHops:   twoHop,
				Hops:      0,
			},
		}
	} else {
		body = requestBody{
			Enum: tagDynamicConnect,
			DynamicConnect: dynamicConnectRequest{
				RequestID: requestID,
				ReplyTo:   replyTo,
				HasHops:   twoHop,
				Hops:      0,
			},
		}
	}

	frame, err := encodeFrame(CurrentVersion, body)
	if err != nil {
		return 0, fmt.Errorf("encode connect request: %w", err)
	}

	msg := mixnet.InputMessage{Recipient: iprAddr, Lane: "regular", Payload: frame}
	if err := c.handle.Send(ctx, msg); err != nil {
		return 0, fmt.Errorf("send connect request: %w", err)
	}
	return requestID, nil
}

func (c *Client) checkVersion(version uint8) error {
	switch {
	case version > CurrentVersion+1:
		return ErrReceivedResponseWithNewVersion
	case version < CurrentVersion:
		return ErrReceivedResponseWithOldVersion
	default:
		return nil
	}
}

func (c *Client) waitForConnectResponse(ctx context.Context, requestID uint64) (responseBody, error) {
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	unlock := c.handle.Lock()
	defer unlock()

	for {
		msg, err := c.handle.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return responseBody{}, ErrTimeoutWaitingForConnectResponse
			}
			return responseBody{}, ErrNoMixnetMessagesReceived
		}

		var resp responseBody
		version, err := decodeFrame(msg.Payload, &resp)
		if err != nil {
			// Commonly just our own self-pings or unrelated traffic.
			continue
		}
		if err := c.checkVersion(version); err != nil {
			return responseBody{}, err
		}

		var gotID uint64
		var ok bool
		switch resp.Enum {
		case tagStaticConnect:
			gotID, ok = resp.StaticConnect.RequestID, true
		case tagDynamicConnect:
			gotID, ok = resp.DynamicConnect.RequestID, true
		case tagPong:
			gotID, ok = resp.Pong.RequestID, true
		}
		if ok && gotID == requestID {
			return resp, nil
		}
	}
}
