// Package mixnet implements the shared mixnet session handle (spec §4.A)
// and the mixnet self-ping beacon (spec §4.E).
package mixnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
)

// ErrNotConnected is returned by any operation attempted on a handle that
// has not yet connected or has already been disconnected.
var ErrNotConnected = errors.New("mixnet: not connected")

// InputMessage is one outbound mixnet payload, addressed to a recipient on
// a named lane. Mirrors the wire shape every client package (ipr,
// authenticator) builds before handing it to Handle.Send.
type InputMessage struct {
	Recipient    gateway.Recipient
	Lane         string // e.g. "regular"
	Payload      []byte
	SURBsReserve uint32 // reply-SURBs to attach, 0 for none
	ExtraHops    *int   // nil = default hop count, pointer distinguishes "0 extra hops"
}

// ReconstructedMessage is one inbound mixnet payload, reassembled from
// fragments by the underlying session.
type ReconstructedMessage struct {
	SenderTag *[]byte
	Payload   []byte
}

// Handle wraps at most one connected mixnet session over a WebSocket
// transport. Invariant (spec §4.A): at most one reader may be awaiting
// Receive at any moment — enforced by requiring callers to hold Lock for
// the duration of any exclusive receive-wait.
//
// Built on gorilla/websocket; the mutex-guarded single-owner-handle shape
// wraps the long-lived connection in a struct with an exclusive Close.
type Handle struct {
	mu   sync.Mutex
	conn *websocket.Conn

	ourAddress gateway.Recipient

	recvMu sync.Mutex // held by whoever is exclusively waiting on Receive
}

// NewHandle wraps an already-established mixnet WebSocket connection.
// Dialing itself is the concern of a platform-specific mixnet SDK binding,
// which is outside this spec's scope (spec §1 excludes the concrete
// mixnet SDK primitives).
func NewHandle(conn *websocket.Conn, ourAddress gateway.Recipient) *Handle {
	return &Handle{conn: conn, ourAddress: ourAddress}
}

// NymAddress returns this client's own mixnet address.
func (h *Handle) NymAddress() gateway.Recipient {
	return h.ourAddress
}

// Send transmits msg without requiring exclusive receive access — sends
// are totally ordered per sender (spec §5) and do not contend with
// in-flight receives.
func (h *Handle) Send(ctx context.Context, msg InputMessage) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, msg.Payload); err != nil {
		return fmt.Errorf("mixnet send: %w", err)
	}
	return nil
}

// Lock acquires exclusive receive access. Callers MUST hold it for the
// entire duration of a wait for a specific response id (spec §5 shared
// resource policy) and release it via the returned unlock func.
func (h *Handle) Lock() (unlock func()) {
	h.recvMu.Lock()
	return h.recvMu.Unlock
}

// Receive reads one reconstructed message. The caller must hold Lock.
func (h *Handle) Receive(ctx context.Context) (*ReconstructedMessage, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	type result struct {
		msg *ReconstructedMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			ch <- result{err: fmt.Errorf("mixnet receive: %w", err)}
			return
		}
		ch <- result{msg: &ReconstructedMessage{Payload: payload}}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.msg, r.err
	}
}

// SplitSender returns a cloneable send-only handle that never requires the
// receive mutex (spec §4.A splitSender).
func (h *Handle) SplitSender() *Sender {
	return &Sender{h: h}
}

// Sender is a cloneable send-only view of a Handle.
type Sender struct {
	h *Handle
}

func (s *Sender) Send(ctx context.Context, msg InputMessage) error {
	return s.h.Send(ctx, msg)
}

// Disconnect consumes the handle, closing the underlying session. After
// Disconnect, every other method returns ErrNotConnected.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	if err != nil {
		return fmt.Errorf("mixnet disconnect: %w", err)
	}
	return nil
}
