package ipr

import "errors"

// Error kinds (spec §3, §4.B, §7 Protocol/Timeout/Denied kinds).
var (
	ErrAlreadyConnected                = errors.New("ipr: already connected")
	ErrNoVersionInMessage              = errors.New("ipr: no version byte in message")
	ErrReceivedResponseWithNewVersion  = errors.New("ipr: received response with newer version")
	ErrReceivedResponseWithOldVersion  = errors.New("ipr: received response with older version")
	ErrGotReplyIntendedForWrongAddress = errors.New("ipr: reply addressed to a different recipient")
	ErrUnexpectedConnectResponse       = errors.New("ipr: unexpected connect response kind")
	ErrTimeoutWaitingForConnectResponse = errors.New("ipr: timed out waiting for connect response")
	ErrNoMixnetMessagesReceived        = errors.New("ipr: mixnet receive stream ended")
)

// ConnectRequestDenied wraps the reason a gateway gave for refusing a
// static or dynamic connect request (spec §4.B step 5).
type ConnectRequestDenied struct {
	Reason string
}

func (e *ConnectRequestDenied) Error() string {
	return "ipr: connect request denied: " + e.Reason
}
