package ipr

import "github.com/nymtech/nym-vpnd-core/internal/gateway"

// BuildPingFrame encodes a self-ping request addressed back to self, for
// internal/mixnet's self-ping beacon (spec §4.E) via its PingFrameBuilder
// seam. requestID need not be tracked by the caller — the reply is
// recognized by its Pong tag alone, not matched against an in-flight map,
// since liveness only cares that some reply arrived recently.
func BuildPingFrame(requestID uint64, self gateway.Recipient) ([]byte, error) {
	body := requestBody{
		Enum: tagPing,
		Ping: pingRequest{RequestID: requestID, ReplyTo: recipientBytes(self)},
	}
	return encodeFrame(CurrentVersion, body)
}

// DecodePongReply reports whether frame is a Pong reply to a self-ping,
// used by the tunnel attempt's mixnet listener to record
// monitor.EventMixnetSelfPing on arrival.
func DecodePongReply(frame []byte) (requestID uint64, ok bool) {
	var resp responseBody
	if _, err := decodeFrame(frame, &resp); err != nil {
		return 0, false
	}
	if resp.Enum != tagPong {
		return 0, false
	}
	return resp.Pong.RequestID, true
}
