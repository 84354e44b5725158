package tunnel

import "net"

// TunDevice is a configured OS tun interface. Closing it must be
// idempotent and safe to call during unwind even if the device was never
// fully brought up.
type TunDevice interface {
	Name() string
	Close() error
}

// TunProvider creates platform tun devices. A capability interface rather
// than a concrete type, since how a tun device is created is inherently
// platform-specific (spec §9: "dynamic dispatch for platform TUN
// providers") and outside this core's scope to implement directly.
type TunProvider interface {
	Create(name string, mtu int, addrs []net.IPNet) (TunDevice, error)
}
