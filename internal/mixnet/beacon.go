package mixnet

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
)

// SelfPingInterval is the cadence mandated by spec §4.E.
const SelfPingInterval = 1000 * time.Millisecond

// PingFrameBuilder produces the serialized IPR Ping request body for a
// self-ping. Injected so this package never imports internal/ipr, which
// itself depends on mixnet.Handle — keeping the two decoupled.
type PingFrameBuilder func() ([]byte, error)

// Beacon runs the mixnet self-ping loop: while the mixnet tunnel is up,
// every SelfPingInterval it sends a Ping IPR request addressed to itself.
// Failures are logged and swallowed (spec §4.E); the beacon exits only on
// ctx cancellation.
type Beacon struct {
	handle     *Handle
	self       gateway.Recipient
	buildFrame PingFrameBuilder
	clock      clockwork.Clock
	log        *slog.Logger
}

// NewBeacon constructs a mixnet self-ping beacon.
func NewBeacon(handle *Handle, self gateway.Recipient, buildFrame PingFrameBuilder, clock clockwork.Clock, log *slog.Logger) *Beacon {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Beacon{handle: handle, self: self, buildFrame: buildFrame, clock: clock, log: log}
}

// Run blocks until ctx is cancelled, sending a self-ping every
// SelfPingInterval.
func (b *Beacon) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(SelfPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.ping(ctx)
		}
	}
}

func (b *Beacon) ping(ctx context.Context) {
	payload, err := b.buildFrame()
	if err != nil {
		b.log.Warn("mixnet beacon: failed to build ping frame", "error", err)
		return
	}
	msg := InputMessage{Recipient: b.self, Lane: "regular", Payload: payload}
	if err := b.handle.Send(ctx, msg); err != nil {
		b.log.Warn("mixnet beacon: self-ping send failed", "error", err)
	}
}
