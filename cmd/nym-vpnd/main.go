//go:build linux

// Command nym-vpnd is the VPN client daemon: it owns the account
// controller, the tunnel state machine, the gateway directory, and the
// Unix-socket control surface every frontend (CLI, GUI, mobile binding)
// talks to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nymtech/nym-vpnd-core/internal/account"
	"github.com/nymtech/nym-vpnd-core/internal/config"
	"github.com/nymtech/nym-vpnd-core/internal/control"
	"github.com/nymtech/nym-vpnd-core/internal/credentials"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
	"github.com/nymtech/nym-vpnd-core/internal/routing"
	"github.com/nymtech/nym-vpnd-core/internal/tunnel"
	"github.com/nymtech/nym-vpnd-core/internal/vpn"
)

const directoryCacheTTL = 30 * time.Second

var (
	sockFile             = flag.String("sock-file", "/var/run/nym-vpnd/nym-vpnd.sock", "path to the control surface's domain socket")
	env                  = flag.String("env", config.EnvMainnet, "network environment to start on (mainnet, canary, qa, sandbox)")
	envFile              = flag.String("env-file", "", "path to a YAML network environment file, overriding -env for a custom/private deployment")
	dataDir              = flag.String("data-dir", "", "override the data directory (credentials, account, device key)")
	enableVerboseLogging = flag.Bool("v", false, "enable debug logging")
	jsonLogging          = flag.Bool("json-logs", false, "emit structured JSON logs instead of the human-readable console format")
	metricsEnable        = flag.Bool("metrics-enable", false, "enable a Prometheus /metrics listener")
	metricsAddr          = flag.String("metrics-addr", "localhost:0", "address to listen on for Prometheus metrics")
	versionFlag          = flag.Bool("version", false, "print build version and exit")

	// set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
		os.Exit(0)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	if *metricsEnable {
		startMetrics(logger)
	}

	if err := run(logger); err != nil {
		logger.Error("nym-vpnd exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if *enableVerboseLogging {
		level = slog.LevelDebug
	}
	if *jsonLogging {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
}

func startMetrics(logger *slog.Logger) {
	buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nym_vpnd_build_info",
		Help: "Build information of nym-vpnd.",
	}, []string{"version", "commit", "date"})
	buildInfo.WithLabelValues(version, commit, date).Set(1)

	go func() {
		listener, err := net.Listen("tcp", *metricsAddr)
		if err != nil {
			logger.Error("failed to start metrics listener", "error", err)
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "address", listener.Addr().String())
		if err := http.Serve(listener, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

func run(logger *slog.Logger) error {
	var (
		networkEnv *config.NetworkEnvironment
		err        error
	)
	if *envFile != "" {
		networkEnv, err = config.LoadEnvironmentFile(*envFile)
	} else {
		networkEnv, err = config.EnvironmentForName(*env)
	}
	if err != nil {
		return fmt.Errorf("resolve network environment: %w", err)
	}

	resolvedDataDir := *dataDir
	if resolvedDataDir == "" {
		resolvedDataDir, err = config.DataDir()
		if err != nil {
			return fmt.Errorf("resolve data directory: %w", err)
		}
	}
	if err := config.EnsureDir(resolvedDataDir); err != nil {
		return fmt.Errorf("ensure data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credStore, err := credentials.Open(filepath.Join(resolvedDataDir, "credentials.db"))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer credStore.Close()

	storage := account.NewStorage(resolvedDataDir)
	apiClient := account.NewHTTPAPIClient(networkEnv.VpnAPIURL, nil)
	accountCtrl := account.NewController(storage, credStore, apiClient, logger,
		account.WithBackgroundZkNymRefresh(true),
		account.WithClock(clockwork.NewRealClock()),
	)
	defer accountCtrl.Close()
	go accountCtrl.Run(ctx)

	directoryProvider := gateway.NewHTTPProvider(networkEnv.NymAPIURL, nil)
	directory := gateway.NewDirectory(directoryProvider, directoryCacheTTL, logger)
	defer directory.Close()

	routeHandler := routing.NewRouteHandler(routing.LinuxNetlink{}, logger)
	dnsHandler := routing.NewDnsHandler(logger)

	connectionStatus := control.NewConnectionStatusBroadcaster()

	vpnCtrl := vpn.NewController(tunnel.Deps{
		Directory:       directory,
		MixnetConnector: unimplementedMixnetConnector{},
		TunProvider:     unimplementedTunProvider{},
		RouteHandler:    routeHandler,
		DNSHandler:      dnsHandler,
		Clock:           clockwork.NewRealClock(),
		Log:             logger,
		DataDir:         resolvedDataDir,
		StatusReporter:  connectionStatus.Broadcast,
	}, accountCtrl.ReadyToConnect, logger)
	defer vpnCtrl.Close()

	server := control.NewServer(control.Deps{
		VPN:              vpnCtrl,
		Account:          accountCtrl,
		Gateways:         directory,
		Log:              logger,
		ConnectionStatus: connectionStatus,
		SetNetwork: func(name string) error {
			_, err := config.EnvironmentForName(name)
			return err
		},
	}, control.WithSockFile(*sockFile))

	return server.Serve(ctx)
}

// unimplementedTunProvider is the platform tun-device seam (spec §9:
// "dynamic dispatch for platform TUN providers"); a concrete binding is
// outside this core's scope and is supplied by platform-specific
// integration code, not this daemon.
type unimplementedTunProvider struct{}

func (unimplementedTunProvider) Create(name string, mtu int, addrs []net.IPNet) (tunnel.TunDevice, error) {
	return nil, errors.New("nym-vpnd: no platform TUN provider wired into this build")
}

// unimplementedMixnetConnector is the mixnet-dialing seam (spec §1
// excludes the concrete mixnet SDK primitives); a real binding dials the
// platform mixnet SDK and is supplied by integration code outside this
// core.
type unimplementedMixnetConnector struct{}

func (unimplementedMixnetConnector) Connect(ctx context.Context, opts tunnel.MixnetConnectOptions) (*mixnet.Handle, error) {
	return nil, errors.New("nym-vpnd: no mixnet connector wired into this build")
}
