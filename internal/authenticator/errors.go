package authenticator

import "errors"

var (
	ErrNoVersionInMessage             = errors.New("authenticator: no version byte in message")
	ErrNotAuthenticatorMessage        = errors.New("authenticator: version byte outside reserved range, not authenticator traffic")
	ErrReceivedResponseWithNewVersion = errors.New("authenticator: received response with newer version")
	ErrReceivedResponseWithOldVersion = errors.New("authenticator: received response with older version")
	ErrInvalidGatewayAuthResponse     = errors.New("authenticator: gateway returned an IPv6-only address assignment")
	ErrTimeout                        = errors.New("authenticator: timed out waiting for response")
	ErrMacVerificationFailed          = errors.New("authenticator: gateway MAC verification failed")
)

// AuthenticationDenied wraps a gateway-reported denial reason (spec §7
// Denied error kind).
type AuthenticationDenied struct {
	Reason string
}

func (e *AuthenticationDenied) Error() string {
	return "authenticator: denied: " + e.Reason
}
