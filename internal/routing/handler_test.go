package routing

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNetlinker struct {
	routes map[string]Route
	rules  []IPRule

	failRouteAddDev string
}

func newFakeNetlinker() *fakeNetlinker {
	return &fakeNetlinker{routes: map[string]Route{}}
}

func (f *fakeNetlinker) RouteAdd(r *Route) error {
	if f.failRouteAddDev != "" && r.Dev == f.failRouteAddDev {
		return errors.New("simulated failure")
	}
	f.routes[r.Dst.String()+"|"+r.Dev] = *r
	return nil
}

func (f *fakeNetlinker) RouteDelete(r *Route) error {
	delete(f.routes, r.Dst.String()+"|"+r.Dev)
	return nil
}

func (f *fakeNetlinker) RuleAdd(r *IPRule) error {
	f.rules = append(f.rules, *r)
	return nil
}

func (f *fakeNetlinker) RuleDel(r *IPRule) error {
	var kept []IPRule
	for _, existing := range f.rules {
		if existing != *r {
			kept = append(kept, existing)
		}
	}
	f.rules = kept
	return nil
}

func TestRouteHandler_AddAndRemove(t *testing.T) {
	nl := newFakeNetlinker()
	h := NewRouteHandler(nl, nil)

	err := h.AddRoutes(Config{
		Kind:         KindMixnet,
		PhysicalDev:  "eth0",
		EntryGwIP:    net.IPv4(10, 0, 0, 1),
		MixnetTunDev: "nymtun0",
	})
	require.NoError(t, err)
	require.Len(t, nl.routes, 3)
	require.Len(t, nl.rules, 1)

	require.NoError(t, h.RemoveRoutes())
	require.Empty(t, nl.routes)
	require.Empty(t, nl.rules)
}

func TestRouteHandler_AddRoutes_UnwindsOnPartialFailure(t *testing.T) {
	nl := newFakeNetlinker()
	nl.failRouteAddDev = "nymtun0"
	h := NewRouteHandler(nl, nil)

	err := h.AddRoutes(Config{
		Kind:         KindMixnet,
		PhysicalDev:  "eth0",
		EntryGwIP:    net.IPv4(10, 0, 0, 1),
		MixnetTunDev: "nymtun0",
	})
	require.Error(t, err)
	// the eth0 host route that succeeded before the failure must be
	// unwound, and the rule must never have been added.
	require.Empty(t, nl.routes)
	require.Empty(t, nl.rules)
}

func TestRouteHandler_RemoveRoutes_IdempotentWhenNothingInstalled(t *testing.T) {
	h := NewRouteHandler(newFakeNetlinker(), nil)
	require.NoError(t, h.RemoveRoutes())
	require.NoError(t, h.RemoveRoutes())
}
