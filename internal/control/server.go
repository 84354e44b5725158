// Package control implements the command/event control surface (spec
// §4.M): a Unix domain socket exposing the daemon's account and tunnel
// operations as JSON HTTP calls, plus two server-sent-event streams for
// state changes and connection status.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nymtech/nym-vpnd-core/internal/account"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/monitor"
	"github.com/nymtech/nym-vpnd-core/internal/vpn"
)

// Deps wires the control surface to the daemon's long-lived subsystems.
type Deps struct {
	VPN       *vpn.Controller
	Account   *account.Controller
	Gateways  *gateway.Directory
	Log       *slog.Logger

	// SetNetwork reconfigures the daemon's API/mixnet/gateway endpoints
	// for the named environment. Actually swapping those subsystems live
	// is a daemon-level concern outside this package's scope.
	SetNetwork func(name string) error

	// ConnectionStatus fans monitor.Status events out to every
	// listenConnectionStatus subscriber. The daemon wires
	// ConnectionStatus.Broadcast in as the monitor.Monitor's onStatus
	// callback.
	ConnectionStatus *statusBroadcaster[monitor.Status]
}

// Server is the Unix-socket-bound HTTP control surface.
type Server struct {
	sockFile string
	srv      *http.Server
	log      *slog.Logger
	status   *statusBroadcaster[monitor.Status]
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithSockFile sets the Unix socket path the Server listens on.
func WithSockFile(path string) Option {
	return func(s *Server) { s.sockFile = path }
}

// NewServer builds a Server wired to deps. Callers must supply
// WithSockFile.
func NewServer(deps Deps, opts ...Option) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.ConnectionStatus == nil {
		deps.ConnectionStatus = newStatusBroadcaster[monitor.Status]()
	}

	h := &handler{deps: deps, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/info", h.serveInfo)
	mux.HandleFunc("/v1/network", h.serveSetNetwork)
	mux.HandleFunc("/v1/connect", h.serveConnect)
	mux.HandleFunc("/v1/disconnect", h.serveDisconnect)
	mux.HandleFunc("/v1/status", h.serveStatus)
	mux.HandleFunc("/v1/gateways", h.serveListGateways)
	mux.HandleFunc("/v1/countries", h.serveListCountries)
	mux.HandleFunc("/v1/account", h.serveAccount)
	mux.HandleFunc("/v1/account/forget", h.serveForgetAccount)
	mux.HandleFunc("/v1/account/ready", h.serveIsReadyToConnect)
	mux.HandleFunc("/v1/account/usage", h.serveGetUsage)
	mux.HandleFunc("/v1/devices", h.serveDevices)
	mux.HandleFunc("/v1/devices/active", h.serveActiveDevices)
	mux.HandleFunc("/v1/devices/register", h.serveRegisterDevice)
	mux.HandleFunc("/v1/devices/identity", h.serveDeviceIdentity)
	mux.HandleFunc("/v1/zknym/request", h.serveRequestZkNym)
	mux.HandleFunc("/v1/zknym/get", h.serveGetZkNymByID)
	mux.HandleFunc("/v1/zknym/confirm", h.serveConfirmZkNymDownloaded)
	mux.HandleFunc("/v1/tickets", h.serveGetAvailableTickets)
	mux.HandleFunc("/v1/state/changes", h.serveListenStateChanges)
	mux.HandleFunc("/v1/status/events", h.serveListenConnectionStatus)

	s := &Server{
		log:    log,
		srv:    &http.Server{Handler: mux},
		status: deps.ConnectionStatus,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReportStatus fans a monitor.Status event out to every
// listenConnectionStatus subscriber. Wire this in as the daemon's
// tunnel.Deps.StatusReporter.
func (s *Server) ReportStatus(status monitor.Status) {
	s.status.Broadcast(status)
}

// Serve listens on the configured socket and blocks until ctx is
// cancelled or the HTTP server fails.
func (s *Server) Serve(ctx context.Context) error {
	if s.sockFile == "" {
		return errors.New("control: no sock file configured")
	}
	_ = os.Remove(s.sockFile)

	ln, err := net.Listen("unix", s.sockFile)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.sockFile, 0o666); err != nil {
		ln.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	s.log.Info("control surface listening", "sock", s.sockFile)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("control surface shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close stops the server immediately without waiting out in-flight
// requests.
func (s *Server) Close() error {
	return s.srv.Close()
}
