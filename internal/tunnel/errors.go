package tunnel

import (
	"errors"

	"github.com/nymtech/nym-vpnd-core/internal/authenticator"
	"github.com/nymtech/nym-vpnd-core/internal/ipr"
)

var (
	// ErrEntryEqualsExit is returned by gateway selection when the entry
	// and exit points resolve to the same gateway (spec §4.I step 4:
	// "entry must be distinct from exit").
	ErrEntryEqualsExit = errors.New("tunnel: selected entry and exit gateways are the same")

	// ErrCancelled marks an attempt that was unwound because its
	// cancellation token fired before reaching Up (spec §4.I step 9).
	ErrCancelled = errors.New("tunnel: attempt cancelled")
)

// Retryable classifies err per spec §7's Setup/Directory/Protocol/
// Timeout/Denied/Account/OS taxonomy: a gateway-reported denial is
// terminal (retrying won't change a rejected credential), everything else
// — directory misses, protocol/version hiccups, timeouts, OS/networking
// errors — is worth another attempt with backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var connectDenied *ipr.ConnectRequestDenied
	if errors.As(err, &connectDenied) {
		return false
	}
	var authDenied *authenticator.AuthenticationDenied
	if errors.As(err, &authDenied) {
		return false
	}
	return !errors.Is(err, ErrEntryEqualsExit)
}
