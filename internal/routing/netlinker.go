package routing

import "errors"

var (
	ErrRouteExists = errors.New("route already exists")
	ErrRuleExists  = errors.New("ip rule already exists")
)

// Netlinker is the seam RouteHandler installs/withdraws routes and rules
// through, so tests can substitute a fake instead of touching the real
// kernel routing table.
type Netlinker interface {
	RouteAdd(*Route) error
	RouteDelete(*Route) error
	RuleAdd(*IPRule) error
	RuleDel(*IPRule) error
}
