package authenticator

// Response is the public, read-only view of a decoded authenticator
// response frame, exposed so callers outside this package (internal/
// wireguard) can branch on its kind without depending on the unexported
// wire types directly.
type Response struct {
	body responseBody
}

// ResponseKind enumerates the authenticator response variants (spec §3).
type ResponseKind int

const (
	KindPendingRegistration ResponseKind = iota
	KindRegistered
	KindRemainingBandwidth
	KindTopUpBandwidth
	KindError
)

func (r Response) Kind() ResponseKind {
	switch r.body.Enum {
	case tagPendingRegistration:
		return KindPendingRegistration
	case tagRegistered:
		return KindRegistered
	case tagRemainingBandwidth:
		return KindRemainingBandwidth
	case tagTopUpBandwidth:
		return KindTopUpBandwidth
	default:
		return KindError
	}
}

// PendingRegistration is the {nonce, gatewayData} payload of a
// PendingRegistration response.
type PendingRegistration struct {
	Nonce  [24]byte
	GwData []byte
}

func (r Response) AsPendingRegistration() (PendingRegistration, bool) {
	if r.Kind() != KindPendingRegistration {
		return PendingRegistration{}, false
	}
	return PendingRegistration{Nonce: r.body.PendingRegistration.Nonce, GwData: r.body.PendingRegistration.GwData}, true
}

// Registered is the {gatewayPub, wgPort, privateIPv4, privateIPv6?}
// payload of a Registered response.
type Registered struct {
	GatewayPub  [32]byte
	WgPort      uint16
	PrivateIPv4 [4]byte
	HasIPv6     bool
	PrivateIPv6 [16]byte
}

func (r Response) AsRegistered() (Registered, bool) {
	if r.Kind() != KindRegistered {
		return Registered{}, false
	}
	reg := r.body.Registered
	return Registered{
		GatewayPub:  reg.GatewayPub,
		WgPort:      reg.WgPort,
		PrivateIPv4: reg.PrivateIPv4,
		HasIPv6:     reg.HasIPv6,
		PrivateIPv6: reg.PrivateIPv6,
	}, true
}

// AsRemainingBandwidth returns (availableBytes, hasAvailable, ok).
// hasAvailable=false is the "suspended" sentinel (spec §4.D).
func (r Response) AsRemainingBandwidth() (int64, bool, bool) {
	if r.Kind() != KindRemainingBandwidth {
		return 0, false, false
	}
	b := r.body.RemainingBandwidth
	return b.AvailableBytes, b.HasAvailable, true
}

func (r Response) AsTopUpBandwidth() (int64, bool) {
	if r.Kind() != KindTopUpBandwidth {
		return 0, false
	}
	return r.body.TopUpBandwidth.AvailableBytes, true
}

func (r Response) AsError() (string, bool) {
	if r.Kind() != KindError {
		return "", false
	}
	return r.body.Error.Reason, true
}
