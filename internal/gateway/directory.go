package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// ErrNoGatewayAvailable is returned when no gateway in the directory
// satisfies a selection (spec §7 Directory error kind).
var ErrNoGatewayAvailable = errors.New("no gateway available")

// PerformanceOptions carries the mixnet/vpn performance minimums, 0-100
// (spec §3 gatewayPerformanceOptions). Descriptors carry no performance
// score, so the values themselves are not compared: with both minimums at
// 0 every gateway passes, and otherwise only gateways whose probe reports
// CanConnect pass.
type PerformanceOptions struct {
	MinMixnetPerformance int
	MinVpnPerformance    int
}

// Provider fetches the raw gateway list from the directory service. It is
// the network-facing boundary; Directory wraps it with caching and
// single-flight de-duplication.
type Provider interface {
	ListGateways(ctx context.Context) ([]Descriptor, error)
}

const directoryCacheKey = "gateways"

// Directory resolves EntryPoint/ExitPoint selectors against a cached,
// de-duplicated view of the directory service.
//
// A TTL cache plus a singleflight.Group collapse concurrent refreshes
// into one upstream call, with a stale-on-error fallback.
type Directory struct {
	provider Provider
	cache    *ttlcache.Cache[string, []Descriptor]
	sf       singleflight.Group
	log      *slog.Logger
}

// NewDirectory constructs a Directory with the given TTL.
func NewDirectory(provider Provider, ttl time.Duration, log *slog.Logger) *Directory {
	cache := ttlcache.New[string, []Descriptor](
		ttlcache.WithTTL[string, []Descriptor](ttl),
		ttlcache.WithDisableTouchOnHit[string, []Descriptor](),
	)
	go cache.Start()
	if log == nil {
		log = slog.Default()
	}
	return &Directory{provider: provider, cache: cache, log: log}
}

// Close stops the cache's background eviction goroutine.
func (d *Directory) Close() {
	d.cache.Stop()
}

// list returns the current gateway set, refreshing through singleflight on
// a cache miss. On a refresh error, it falls back to the last known-good
// value if one exists.
func (d *Directory) list(ctx context.Context) ([]Descriptor, error) {
	// The expiring entry answers fresh reads; the non-expiring copy under
	// lastGoodKey survives the TTL for the stale-on-error fallback.
	const lastGoodKey = directoryCacheKey + "-last-good"

	if item := d.cache.Get(directoryCacheKey); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	v, err, _ := d.sf.Do(directoryCacheKey, func() (any, error) {
		gateways, err := d.provider.ListGateways(ctx)
		if err != nil {
			return nil, err
		}
		d.cache.Set(directoryCacheKey, gateways, ttlcache.DefaultTTL)
		d.cache.Set(lastGoodKey, gateways, ttlcache.NoTTL)
		return gateways, nil
	})
	if err != nil {
		if item := d.cache.Get(lastGoodKey); item != nil {
			d.log.Warn("directory refresh failed, serving stale entry", "error", err)
			return item.Value(), nil
		}
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	return v.([]Descriptor), nil
}

func matchesPerformance(d Descriptor, opts PerformanceOptions) bool {
	if d.Probe == nil {
		return opts.MinMixnetPerformance == 0 && opts.MinVpnPerformance == 0
	}
	return d.Probe.CanConnect
}

// ListGateways returns every directory entry satisfying opts, for the
// control surface's listGateways(kind, minPerf) (spec §4.M). kind is
// accepted for symmetry with Resolve/listCountries but doesn't currently
// filter the result set: every Descriptor in this directory can serve
// either role.
func (d *Directory) ListGateways(ctx context.Context, kind Kind, opts PerformanceOptions) ([]Descriptor, error) {
	gateways, err := d.list(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]Descriptor, 0, len(gateways))
	for _, g := range gateways {
		if matchesPerformance(g, opts) {
			matching = append(matching, g)
		}
	}
	return matching, nil
}

// ListCountries returns the distinct ISO-3166 alpha-2 locations advertised
// by gateways satisfying opts (spec §4.M listCountries(kind, minPerf)).
func (d *Directory) ListCountries(ctx context.Context, kind Kind, opts PerformanceOptions) ([]string, error) {
	gateways, err := d.ListGateways(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var countries []string
	for _, g := range gateways {
		if g.Location == "" || seen[g.Location] {
			continue
		}
		seen[g.Location] = true
		countries = append(countries, g.Location)
	}
	return countries, nil
}

// Resolve picks one concrete Descriptor satisfying p for the given role,
// filtered by opts. Returns a Directory error if no candidate qualifies.
func (d *Directory) Resolve(ctx context.Context, kind Kind, p Point, opts PerformanceOptions) (Descriptor, error) {
	gateways, err := d.list(ctx)
	if err != nil {
		return Descriptor{}, err
	}

	candidates := make([]Descriptor, 0, len(gateways))
	for _, g := range gateways {
		if !matchesPerformance(g, opts) {
			continue
		}
		switch p.Kind {
		case PointByLocation:
			if g.Location != p.Location {
				continue
			}
		case PointByIdentity:
			if g.Identity != p.Identity {
				continue
			}
		case PointByAddress:
			if kind != KindExit || !g.IPRRecipient.Equal(p.Address) {
				continue
			}
		}
		candidates = append(candidates, g)
	}

	if len(candidates) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no gateway satisfying selection for %s", ErrNoGatewayAvailable, kind)
	}

	if p.Kind == PointRandomLowLatency {
		return rankByLatency(ctx, candidates), nil
	}
	return candidates[rand.Intn(len(candidates))], nil
}
