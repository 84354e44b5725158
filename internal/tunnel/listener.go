package tunnel

import (
	"context"
	"log/slog"
	"net"

	"github.com/nymtech/nym-vpnd-core/internal/icmpbeacon"
	"github.com/nymtech/nym-vpnd-core/internal/ipr"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
	"github.com/nymtech/nym-vpnd-core/internal/monitor"
)

// mixnetListener owns the shared handle's receive side for the lifetime
// of an established tunnel, demultiplexing inbound IPR frames into the
// connection monitor's liveness events (spec §4.G, §4.I step 9). It is
// the one long-lived holder of Handle.Lock while the tunnel is up; the
// short-lived per-call locks taken by ipr.Client and authenticator.Client
// only occur before this loop starts (during the handshakes in steps 5-7).
type mixnetListener struct {
	handle     *mixnet.Handle
	monitor    *monitor.Monitor
	identifier uint16
	tunV4      net.IP
	tunV6      net.IP
	log        *slog.Logger
}

func newMixnetListener(handle *mixnet.Handle, mon *monitor.Monitor, identifier uint16, tunV4, tunV6 net.IP, log *slog.Logger) *mixnetListener {
	if log == nil {
		log = slog.Default()
	}
	return &mixnetListener{handle: handle, monitor: mon, identifier: identifier, tunV4: tunV4, tunV6: tunV6, log: log}
}

// run blocks until ctx is cancelled or the handle's receive stream ends.
func (l *mixnetListener) run(ctx context.Context) {
	unlock := l.handle.Lock()
	defer unlock()

	for {
		msg, err := l.handle.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Debug("tunnel: mixnet listener receive ended", "error", err)
			return
		}
		l.dispatch(msg.Payload)
	}
}

func (l *mixnetListener) dispatch(payload []byte) {
	if _, ok := ipr.DecodePongReply(payload); ok {
		l.monitor.Record(monitor.EventMixnetSelfPing)
		return
	}

	ipFrame, ok, err := ipr.DecodeDataFrame(payload)
	if err != nil || !ok {
		return
	}

	kind, _, ok := icmpbeacon.ParseEchoReply(ipFrame, l.identifier)
	if !ok {
		return
	}

	src, err := icmpbeacon.EchoReplySource(ipFrame)
	if err != nil {
		return
	}

	switch {
	case kind == icmpbeacon.ReplyIPv4 && src.Equal(l.tunV4):
		l.monitor.Record(monitor.EventICMPv4IprTunReply)
	case kind == icmpbeacon.ReplyIPv4:
		l.monitor.Record(monitor.EventICMPv4IprExternalReply)
	case kind == icmpbeacon.ReplyIPv6 && src.Equal(l.tunV6):
		l.monitor.Record(monitor.EventICMPv6IprTunReply)
	case kind == icmpbeacon.ReplyIPv6:
		l.monitor.Record(monitor.EventICMPv6IprExternalReply)
	}
}
