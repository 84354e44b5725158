package routing

import (
	"fmt"
	"log/slog"
)

// RouteHandler installs the routes and policy rules a single tunnel
// attempt needs and guarantees every acquisition it makes is released,
// whether by an explicit Remove call or by AddRoutes unwinding its own
// partial progress on failure (spec §4.H).
type RouteHandler struct {
	nl  Netlinker
	log *slog.Logger

	installedRoutes []Route
	installedRules  []IPRule
}

// NewRouteHandler constructs a handler bound to a Netlinker backend. On
// Linux this is LinuxNetlink; tests substitute a fake.
func NewRouteHandler(nl Netlinker, log *slog.Logger) *RouteHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RouteHandler{nl: nl, log: log}
}

// AddRoutes installs every route the config's topology requires (spec
// §4.H's three branches), plus the policy rule steering default traffic
// into the dedicated table. If any step fails, everything already
// installed during this call is withdrawn before the error is returned —
// a handler that failed to add routes must leave no residue behind.
func (h *RouteHandler) AddRoutes(cfg Config) (err error) {
	routes := PlanRoutes(cfg)

	var added []Route
	defer func() {
		if err != nil {
			for i := len(added) - 1; i >= 0; i-- {
				if dErr := h.nl.RouteDelete(&added[i]); dErr != nil {
					h.log.Error("routing: failed to unwind route after partial failure", "route", added[i], "err", dErr)
				}
			}
		}
	}()

	for _, r := range routes {
		route := r
		h.log.Info("routing: adding route", "dst", route.Dst.String(), "dev", route.Dev, "table", route.Table)
		if e := h.nl.RouteAdd(&route); e != nil {
			return fmt.Errorf("routing: error adding route %s via %s: %w", route.Dst.String(), route.Dev, e)
		}
		added = append(added, route)
	}

	rule := IPRule{Priority: RulePriority, Table: TableTunnelDefault}
	h.log.Info("routing: adding ip rule", "priority", rule.Priority, "table", rule.Table)
	if e := h.nl.RuleAdd(&rule); e != nil {
		return fmt.Errorf("routing: error adding ip rule: %w", e)
	}

	h.installedRoutes = append(h.installedRoutes, added...)
	h.installedRules = append(h.installedRules, rule)
	return nil
}

// RemoveRoutes withdraws everything this handler has installed. It is
// idempotent and safe to call multiple times, including after a failed
// AddRoutes (which leaves nothing installed to remove).
func (h *RouteHandler) RemoveRoutes() error {
	var firstErr error
	for i := len(h.installedRules) - 1; i >= 0; i-- {
		rule := h.installedRules[i]
		if err := h.nl.RuleDel(&rule); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("routing: error removing ip rule: %w", err)
		}
	}
	h.installedRules = nil

	for i := len(h.installedRoutes) - 1; i >= 0; i-- {
		route := h.installedRoutes[i]
		if err := h.nl.RouteDelete(&route); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("routing: error removing route %s: %w", route.Dst.String(), err)
		}
	}
	h.installedRoutes = nil

	return firstErr
}
