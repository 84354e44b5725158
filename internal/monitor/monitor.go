// Package monitor implements the connection monitor (spec §4.G):
// aggregates liveness evidence from the mixnet self-ping and the four
// ICMP beacon channels, and classifies the connection every 5 seconds.
//
// Grounded directly on
// _examples/original_source/crates/nym-connection-monitor/src/monitor.rs
// — algorithm, constants, and the IPv6-downgrade-to-debug behavior are
// reproduced exactly; see DESIGN.md's Open Question decision.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ReportInterval is the normative per-tick classification cadence.
const ReportInterval = 5 * time.Second

// PingReplyExpiry is how long a channel's last arrival is considered Ok
// before the channel is classified Fail.
const PingReplyExpiry = 5 * time.Second

// Event is one liveness signal recorded by an upstream component.
type Event int

const (
	EventMixnetSelfPing Event = iota
	EventICMPv4IprTunReply
	EventICMPv6IprTunReply
	EventICMPv4IprExternalReply
	EventICMPv6IprExternalReply
)

// Status is one of the seven connectivity classifications the monitor can
// compute. Only the four documented below are ever broadcast
// (Report) — the rest are computed and debug-logged only.
type Status int

const (
	StatusEntryGatewayDown Status = iota
	StatusExitGatewayDownIPv4
	StatusExitGatewayDownIPv6
	StatusExitGatewayRoutingErrorIPv4
	StatusExitGatewayRoutingErrorIPv6
	StatusConnectedIPv4
	StatusConnectedIPv6
)

func (s Status) String() string {
	switch s {
	case StatusEntryGatewayDown:
		return "entry gateway appears down - it's not routing our mixnet traffic"
	case StatusExitGatewayDownIPv4:
		return "exit gateway (or ipr) appears down - it's not responding to IPv4 traffic"
	case StatusExitGatewayDownIPv6:
		return "exit gateway (or ipr) appears down - it's not responding to IPv6 traffic"
	case StatusExitGatewayRoutingErrorIPv4:
		return "exit gateway (or ipr) appears to be having issues routing and forwarding our external IPv4 traffic"
	case StatusExitGatewayRoutingErrorIPv6:
		return "exit gateway (or ipr) appears to be having issues routing and forwarding our external IPv6 traffic"
	case StatusConnectedIPv4:
		return "connected with ipv4"
	case StatusConnectedIPv6:
		return "connected with ipv6"
	default:
		return "unknown"
	}
}

type connectivity int

const (
	connOk connectivity = iota
	connFail
)

func classify(last time.Time, now time.Time) connectivity {
	if last.IsZero() {
		return connFail
	}
	if now.Sub(last) < PingReplyExpiry {
		return connOk
	}
	return connFail
}

type stats struct {
	mu sync.Mutex

	latestSelfPing             time.Time
	latestIPRTunV4Reply        time.Time
	latestIPRTunV6Reply        time.Time
	latestIPRExternalV4Reply   time.Time
	latestIPRExternalV6Reply   time.Time
}

func (s *stats) record(event Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event {
	case EventMixnetSelfPing:
		s.latestSelfPing = now
	case EventICMPv4IprTunReply:
		s.latestIPRTunV4Reply = now
	case EventICMPv6IprTunReply:
		s.latestIPRTunV6Reply = now
	case EventICMPv4IprExternalReply:
		s.latestIPRExternalV4Reply = now
	case EventICMPv6IprExternalReply:
		s.latestIPRExternalV6Reply = now
	}
}

type state struct {
	entry        connectivity
	exitV4       connectivity
	exitV6       connectivity
	routingV4    connectivity
	routingV6    connectivity
}

func (s *stats) evaluate(now time.Time) state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state{
		entry:     classify(s.latestSelfPing, now),
		exitV4:    classify(s.latestIPRTunV4Reply, now),
		exitV6:    classify(s.latestIPRTunV6Reply, now),
		routingV4: classify(s.latestIPRExternalV4Reply, now),
		routingV6: classify(s.latestIPRExternalV6Reply, now),
	}
}

// Monitor aggregates the five events and classifies connectivity on a
// fixed tick.
type Monitor struct {
	events chan Event
	stats  stats
	clock  clockwork.Clock
	log    *slog.Logger

	onStatus func(Status)
}

// NewMonitor constructs a connection monitor. onStatus is invoked for
// every status this monitor broadcasts (spec §4.G: only the four IPv4 +
// entry variants — IPv6 is computed but never broadcast, matching the
// original's current behavior; see DESIGN.md).
func NewMonitor(onStatus func(Status), clock clockwork.Clock, log *slog.Logger) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		events:   make(chan Event, 32),
		clock:    clock,
		log:      log,
		onStatus: onStatus,
	}
}

// Record enqueues one liveness event. Never blocks the caller's reactor
// for more than a channel send (spec §5).
func (m *Monitor) Record(event Event) {
	select {
	case m.events <- event:
	default:
		// Channel full: the 5s report tick will simply see a slightly
		// stale timestamp for this channel on the next successful send.
	}
}

// Run blocks until ctx is cancelled, consuming events and classifying
// connectivity every ReportInterval. Unlike tokio::time::interval, Go's
// ticker never fires immediately on construction, so the first report
// naturally lands after one full ReportInterval has elapsed — matching
// the original's explicit reset-before-loop intent (no report before any
// self-ping could plausibly have landed).
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.events:
			m.stats.record(event, m.clock.Now())
		case <-ticker.Chan():
			st := m.stats.evaluate(m.clock.Now())
			m.report(st)
		}
	}
}

// report implements the precedence order from monitor.rs's
// report_connectivity: entry failure short-circuits everything else;
// otherwise IPv4 is evaluated routing-first, then reachability, then an
// "unexpected state" fallback log. IPv6 mirrors the same evaluation but
// every branch is debug-logged only, never broadcast.
func (m *Monitor) report(st state) {
	if st.entry == connFail {
		m.log.Error("entry gateway not routing our mixnet traffic")
		m.broadcast(StatusEntryGatewayDown)
		return
	}

	switch {
	case st.routingV4 == connOk:
		m.log.Debug("connection monitor: connection success over ipv4")
		m.broadcast(StatusConnectedIPv4)
	case st.exitV4 == connFail:
		m.log.Error("exit gateway (IPR) not responding to IPv4 traffic")
		m.broadcast(StatusExitGatewayDownIPv4)
	case st.routingV4 == connFail:
		m.log.Error("exit gateway (IPR) not routing IPv4 traffic to external destinations")
		m.broadcast(StatusExitGatewayRoutingErrorIPv4)
	default:
		m.log.Error("unexpected connectivity state - exit gateway ipv4 connectivity is ok, but routing is not?")
	}

	switch {
	case st.routingV6 == connOk:
		m.log.Debug("connection monitor: connection success over ipv6")
	case st.exitV6 == connFail:
		m.log.Debug("exit gateway (IPR) not responding to IPv6 traffic")
	case st.routingV6 == connFail:
		m.log.Debug("exit gateway (IPR) not routing IPv6 traffic to external destinations")
	default:
		m.log.Debug("unexpected connectivity state - exit gateway ipv6 connectivity is ok, but routing is not?")
	}
}

func (m *Monitor) broadcast(status Status) {
	if m.onStatus != nil {
		m.onStatus(status)
	}
}
