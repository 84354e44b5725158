package routing

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// resolvConfPath is the file DnsHandler overwrites while a tunnel is up.
// Overridable in tests.
var resolvConfPath = "/etc/resolv.conf"

// DnsHandler points host DNS resolution at the tunnel's resolvers while
// connected and restores whatever was there before on every exit path
// (spec §4.H). Acquisition is scoped: Set saves the prior contents before
// writing, and Reset is safe to call even if Set was never called or
// already failed partway.
type DnsHandler struct {
	mu       sync.Mutex
	log      *slog.Logger
	saved    []byte
	hasSaved bool
}

func NewDnsHandler(log *slog.Logger) *DnsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DnsHandler{log: log}
}

// Set points resolv.conf at the given nameservers. tunName is recorded
// only for logging; resolution is host-wide, not interface-scoped, since
// the platform resolver has no per-interface DNS concept here.
func (d *DnsHandler) Set(tunName string, nameservers []net.IP) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSaved {
		prior, err := os.ReadFile(resolvConfPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("dns: error reading existing resolv.conf: %w", err)
		}
		d.saved = prior
		d.hasSaved = true
	}

	var buf []byte
	buf = append(buf, fmt.Sprintf("# managed by nym-vpnd while %s is up\n", tunName)...)
	for _, ns := range nameservers {
		buf = append(buf, fmt.Sprintf("nameserver %s\n", ns.String())...)
	}

	if err := os.WriteFile(resolvConfPath, buf, 0o644); err != nil {
		return fmt.Errorf("dns: error writing resolv.conf: %w", err)
	}
	d.log.Info("dns: resolvers set", "tun", tunName, "count", len(nameservers))
	return nil
}

// Reset restores whatever resolv.conf held before the most recent Set.
// Idempotent: a second call with nothing saved is a no-op.
func (d *DnsHandler) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSaved {
		return nil
	}
	if err := os.WriteFile(resolvConfPath, d.saved, 0o644); err != nil {
		return fmt.Errorf("dns: error restoring resolv.conf: %w", err)
	}
	d.saved = nil
	d.hasSaved = false
	d.log.Info("dns: resolvers reset")
	return nil
}
