package tunnel

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/jonboulle/clockwork"
	"github.com/nymtech/nym-vpnd-core/internal/authenticator"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/icmpbeacon"
	"github.com/nymtech/nym-vpnd-core/internal/ipr"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
	"github.com/nymtech/nym-vpnd-core/internal/monitor"
	"github.com/nymtech/nym-vpnd-core/internal/routing"
	"github.com/nymtech/nym-vpnd-core/internal/wireguard"
)

// MixnetConnectOptions is what an Attempt hands to its MixnetConnector.
type MixnetConnectOptions struct {
	EntryGateway gateway.Descriptor
	// AndroidBypassFD, if non-nil, is invoked with the underlying socket
	// fd right after connecting, so the platform VPN service can exclude
	// the mixnet connection itself from the tunnel (spec §4.I step 5).
	AndroidBypassFD func(fd int) error
}

// MixnetConnector establishes the shared mixnet session. Dialing a real
// session is outside this spec's scope (spec §1 excludes the mixnet SDK's
// concrete primitives); production wiring supplies a binding, tests a
// fake.
type MixnetConnector interface {
	Connect(ctx context.Context, opts MixnetConnectOptions) (*mixnet.Handle, error)
}

// Deps bundles every external seam an Attempt needs, so construction
// stays a plain struct literal and tests can substitute fakes freely.
type Deps struct {
	Directory        *gateway.Directory
	MixnetConnector  MixnetConnector
	TunProvider      TunProvider
	RouteHandler     *routing.RouteHandler
	DNSHandler       *routing.DnsHandler
	Clock            clockwork.Clock
	Log              *slog.Logger
	DataDir          string                  // where wireguard keypairs persist
	CredentialSource func() ([]byte, error) // supplies a spendable credential when EnableCredentialsMode
	// StatusReporter, if set, receives every monitor.Status this attempt's
	// connectivity monitor reports, in addition to the attempt's own
	// logging. The control surface's listenConnectionStatus stream is
	// wired to this.
	StatusReporter func(monitor.Status)
}

// Attempt owns exactly one connect attempt (spec §4.I): from gateway
// selection through tunnel-up, reporting lifecycle Events, and unwinding
// every acquisition it made if the attempt fails or ctx is cancelled
// before reaching Up.
type Attempt struct {
	settings     Settings
	retryAttempt int
	preEntry     *gateway.Descriptor
	preExit      *gateway.Descriptor
	events       chan<- Event
	deps         Deps

	// released on unwind, in reverse acquisition order.
	teardown []func()
}

// NewAttempt constructs one connect attempt. If entry/exit are non-nil,
// gateway selection (step 4) is skipped in favor of the caller's choice —
// used when the state machine retries with gateways already pinned.
func NewAttempt(settings Settings, retryAttempt int, entry, exit *gateway.Descriptor, events chan<- Event, deps Deps) *Attempt {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Attempt{
		settings:     settings,
		retryAttempt: retryAttempt,
		preEntry:     entry,
		preExit:      exit,
		events:       events,
		deps:         deps,
	}
}

func (a *Attempt) emit(e Event) {
	select {
	case a.events <- e:
	default:
	}
}

func (a *Attempt) defer_(f func()) {
	a.teardown = append(a.teardown, f)
}

// unwind runs every registered teardown func in reverse order. Called
// once, either by Run's own failure path or by the caller once it decides
// to tear a previously-successful attempt down.
func (a *Attempt) unwind() {
	for i := len(a.teardown) - 1; i >= 0; i-- {
		a.teardown[i]()
	}
	a.teardown = nil
}

// Run executes the full 9-step algorithm (spec §4.I). On success it
// returns nil having emitted EventUp; on failure it unwinds everything it
// acquired and returns the error (also emitted as EventError), except
// when ctx was cancelled first, in which case it emits EventCancelled and
// returns ErrCancelled.
func (a *Attempt) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.unwind()
			if ctx.Err() != nil {
				a.emit(Event{Kind: EventCancelled})
				err = ErrCancelled
				return
			}
			a.emit(Event{Kind: EventError, Err: err})
		}
	}()

	// Step 1: backoff before any retry.
	if a.retryAttempt > 0 {
		delay := BackoffDelay(a.retryAttempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.deps.Clock.After(delay):
		}
	}

	// Step 2.
	a.emit(Event{Kind: EventInitializingClient})

	// Step 4: select gateways unless pinned by the caller.
	entry, exit, err := a.selectGateways(ctx)
	if err != nil {
		return err
	}
	a.emit(Event{Kind: EventSelectedGateways, Entry: entry, Exit: exit})

	// Step 5: connect the shared mixnet session.
	handle, err := a.deps.MixnetConnector.Connect(ctx, MixnetConnectOptions{EntryGateway: entry})
	if err != nil {
		return fmt.Errorf("tunnel: mixnet connect: %w", err)
	}
	a.defer_(func() {
		if err := handle.Disconnect(); err != nil {
			a.deps.Log.Error("tunnel: error disconnecting mixnet handle during unwind", "error", err)
		}
	})

	conn := Connection{EntryGateway: entry, ExitGateway: exit}

	var tunDevices []TunDevice
	var iprIPs ipr.IPPair
	switch a.settings.Type {
	case TypeMixnet:
		conn.Kind = ConnectionMixnet
		tunDevices, iprIPs, err = a.bringUpMixnetTunnel(ctx, handle, entry, exit)
	case TypeWireguard:
		conn.Kind = ConnectionWireguard
		tunDevices, err = a.bringUpWireguardTunnel(ctx, handle, entry, exit)
	}
	if err != nil {
		return err
	}
	_ = tunDevices

	// Step 8: routes + DNS already installed inside the per-type helpers
	// (so unwind ordering stays tun-before-routes); emit the remaining
	// lifecycle events here.
	a.emit(Event{Kind: EventEstablishingTunnel, Connection: conn})

	mon := monitor.NewMonitor(func(status monitor.Status) {
		a.deps.Log.Warn("tunnel: connectivity status", "status", status.String())
		if a.deps.StatusReporter != nil {
			a.deps.StatusReporter(status)
		}
	}, a.deps.Clock, a.deps.Log)

	monCtx, cancelMon := context.WithCancel(ctx)
	a.defer_(cancelMon)

	// Only a Mixnet-type tunnel carries user traffic through the IPR, so
	// only it gets the ICMP beacon and the listener's IPR-reply
	// classification; a Wireguard tunnel's liveness is covered by its
	// registration handshake and the shared self-ping beacon alone.
	var identifier uint16
	if conn.Kind == ConnectionMixnet {
		icmpSender := &iprDataSender{handle: handle, exit: exit.IPRRecipient}
		tunV4 := net.IP(append([]byte(nil), iprIPs.IPv4[:]...))
		tunV6 := net.IP(append([]byte(nil), iprIPs.IPv6[:]...))
		icmpBeacon := icmpbeacon.NewBeacon(icmpSender, tunV4, tunV6, icmpbeacon.DefaultExternalIPv4, icmpbeacon.DefaultExternalIPv6, a.deps.Clock, a.deps.Log)
		identifier = icmpBeacon.Identifier()
		go icmpBeacon.Run(monCtx)

		listener := newMixnetListener(handle, mon, identifier, tunV4, tunV6, a.deps.Log)
		go listener.run(monCtx)
	}

	go mon.Run(monCtx)

	selfPingBeacon := mixnet.NewBeacon(handle, handle.NymAddress(), func() ([]byte, error) {
		id, err := randomBeaconID()
		if err != nil {
			return nil, err
		}
		return ipr.BuildPingFrame(id, handle.NymAddress())
	}, a.deps.Clock, a.deps.Log)
	go selfPingBeacon.Run(monCtx)

	conn.ConnectedAt = a.deps.Clock.Now()
	a.emit(Event{Kind: EventUp, Connection: conn})

	// Step 9: hold the attempt open until cancelled. Up already satisfied
	// this attempt's one terminal event (spec §8: exactly one of
	// {Up, Error, Cancelled}); a post-Up cancellation is an ordinary
	// caller-driven disconnect; the state machine, which requested it,
	// doesn't need a second notification back.
	<-ctx.Done()
	a.unwind()
	return nil
}

func (a *Attempt) selectGateways(ctx context.Context) (entry, exit gateway.Descriptor, err error) {
	if a.preEntry != nil && a.preExit != nil {
		return *a.preEntry, *a.preExit, nil
	}

	entry, err = a.deps.Directory.Resolve(ctx, gateway.KindEntry, a.settings.EntryPoint, a.settings.GatewayPerformanceOptions)
	if err != nil {
		return gateway.Descriptor{}, gateway.Descriptor{}, fmt.Errorf("tunnel: select entry gateway: %w", err)
	}
	exit, err = a.deps.Directory.Resolve(ctx, gateway.KindExit, a.settings.ExitPoint, a.settings.GatewayPerformanceOptions)
	if err != nil {
		return gateway.Descriptor{}, gateway.Descriptor{}, fmt.Errorf("tunnel: select exit gateway: %w", err)
	}
	if entry.Identity == exit.Identity {
		return gateway.Descriptor{}, gateway.Descriptor{}, ErrEntryEqualsExit
	}
	return entry, exit, nil
}

// bringUpMixnetTunnel implements spec §4.I step 7's Mixnet branch: connect
// the exit IPR for an address assignment, create one tun device, install
// routes and DNS.
func (a *Attempt) bringUpMixnetTunnel(ctx context.Context, handle *mixnet.Handle, entry, exit gateway.Descriptor) ([]TunDevice, ipr.IPPair, error) {
	iprClient := ipr.NewClient(handle)
	ips, err := iprClient.Connect(ctx, exit.IPRRecipient, nil, false)
	if err != nil {
		return nil, ipr.IPPair{}, fmt.Errorf("tunnel: ipr connect: %w", err)
	}

	mtu := a.settings.mtuOrDefault()
	addrs := []net.IPNet{
		{IP: net.IP(ips.IPv4[:]), Mask: net.CIDRMask(32, 32)},
		{IP: net.IP(ips.IPv6[:]), Mask: net.CIDRMask(128, 128)},
	}
	tun, err := a.deps.TunProvider.Create("nymtun0", mtu, addrs)
	if err != nil {
		return nil, ipr.IPPair{}, fmt.Errorf("tunnel: create tun device: %w", err)
	}
	a.defer_(func() {
		if err := tun.Close(); err != nil {
			a.deps.Log.Error("tunnel: error closing tun device during unwind", "error", err)
		}
	})

	if err := a.installRouting(routing.Config{
		Kind:         routing.KindMixnet,
		EntryGwIP:    net.ParseIP(entry.Host),
		MixnetTunDev: tun.Name(),
	}); err != nil {
		return nil, ipr.IPPair{}, err
	}

	return []TunDevice{tun}, ips, nil
}

// bringUpWireguardTunnel implements spec §4.I step 7's Wireguard branch:
// register both hops, create one or two tun devices depending on
// multihop mode, install routes and DNS.
func (a *Attempt) bringUpWireguardTunnel(ctx context.Context, handle *mixnet.Handle, entry, exit gateway.Descriptor) ([]TunDevice, error) {
	authClient := authenticator.NewClient(handle)

	var credential []byte
	if a.settings.EnableCredentialsMode && a.deps.CredentialSource != nil {
		var err error
		credential, err = a.deps.CredentialSource()
		if err != nil {
			return nil, fmt.Errorf("tunnel: acquire credential: %w", err)
		}
	}

	entryWgClient, err := wireguard.NewClient(authClient, a.deps.DataDir, wireguard.RoleEntry, a.deps.Log)
	if err != nil {
		return nil, fmt.Errorf("tunnel: construct entry wireguard client: %w", err)
	}

	entryData, err := entryWgClient.RegisterWireguard(ctx, entry.AuthenticatorRecipient, entry.Host, credential)
	if err != nil {
		return nil, fmt.Errorf("tunnel: register entry wireguard: %w", err)
	}

	exitWgClient, err := wireguard.NewClient(authClient, a.deps.DataDir, wireguard.RoleExit, a.deps.Log)
	if err != nil {
		return nil, fmt.Errorf("tunnel: construct exit wireguard client: %w", err)
	}
	exitData, err := exitWgClient.RegisterWireguard(ctx, exit.AuthenticatorRecipient, exit.Host, credential)
	if err != nil {
		return nil, fmt.Errorf("tunnel: register exit wireguard: %w", err)
	}

	if a.settings.WireguardMultihop == MultihopTunTun {
		entryTun, err := a.deps.TunProvider.Create("nymwg0", WireguardEntryMTU, []net.IPNet{{IP: entryData.PrivateIPv4, Mask: net.CIDRMask(32, 32)}})
		if err != nil {
			return nil, fmt.Errorf("tunnel: create entry tun: %w", err)
		}
		a.defer_(func() { _ = entryTun.Close() })

		exitTun, err := a.deps.TunProvider.Create("nymwg1", WireguardExitMTU, []net.IPNet{{IP: exitData.PrivateIPv4, Mask: net.CIDRMask(32, 32)}})
		if err != nil {
			return nil, fmt.Errorf("tunnel: create exit tun: %w", err)
		}
		a.defer_(func() { _ = exitTun.Close() })

		if err := a.installRouting(routing.Config{
			Kind:        routing.KindWireguardTunTun,
			EntryGwIP:   net.ParseIP(entry.Host),
			EntryTunDev: entryTun.Name(),
			ExitTunDev:  exitTun.Name(),
			ExitGwIP:    net.ParseIP(exit.Host),
		}); err != nil {
			return nil, err
		}
		return []TunDevice{entryTun, exitTun}, nil
	}

	// Netstack: only the exit half is a real OS device; the entry hop
	// runs in userspace bound to the outer UDP socket (spec §4.I step 7).
	exitTun, err := a.deps.TunProvider.Create("nymwg1", WireguardExitMTU, []net.IPNet{{IP: exitData.PrivateIPv4, Mask: net.CIDRMask(32, 32)}})
	if err != nil {
		return nil, fmt.Errorf("tunnel: create exit tun: %w", err)
	}
	a.defer_(func() { _ = exitTun.Close() })

	if err := a.installRouting(routing.Config{
		Kind:        routing.KindWireguardNetstack,
		EntryGwIP:   net.ParseIP(entry.Host),
		ExitTunDev:  exitTun.Name(),
	}); err != nil {
		return nil, err
	}
	return []TunDevice{exitTun}, nil
}

func (a *Attempt) installRouting(cfg routing.Config) error {
	if err := a.deps.RouteHandler.AddRoutes(cfg); err != nil {
		return fmt.Errorf("tunnel: install routes: %w", err)
	}
	a.defer_(func() {
		if err := a.deps.RouteHandler.RemoveRoutes(); err != nil {
			a.deps.Log.Error("tunnel: error removing routes during unwind", "error", err)
		}
	})

	if len(a.settings.DNSServers) > 0 {
		dev := cfg.MixnetTunDev
		if dev == "" {
			dev = cfg.ExitTunDev
		}
		if err := a.deps.DNSHandler.Set(dev, a.settings.DNSServers); err != nil {
			return fmt.Errorf("tunnel: install dns: %w", err)
		}
		a.defer_(func() {
			if err := a.deps.DNSHandler.Reset(); err != nil {
				a.deps.Log.Error("tunnel: error resetting dns during unwind", "error", err)
			}
		})
	}
	return nil
}

func randomBeaconID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
