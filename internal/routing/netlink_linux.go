//go:build linux

package routing

import (
	"errors"
	"syscall"

	nl "github.com/vishvananda/netlink"
)

// LinuxNetlink implements Netlinker over the real kernel routing table via
// vishvananda/netlink.
type LinuxNetlink struct{}

func (LinuxNetlink) RouteAdd(r *Route) error {
	route := &nl.Route{
		Table: r.Table,
		Dst:   &r.Dst,
		Gw:    r.Via,
	}
	if r.Dev != "" {
		link, err := nl.LinkByName(r.Dev)
		if err != nil {
			return err
		}
		route.LinkIndex = link.Attrs().Index
	}
	err := nl.RouteReplace(route)
	if err != nil && errors.Is(err, syscall.EEXIST) {
		return ErrRouteExists
	}
	return err
}

func (LinuxNetlink) RouteDelete(r *Route) error {
	route := &nl.Route{
		Table: r.Table,
		Dst:   &r.Dst,
		Gw:    r.Via,
	}
	if r.Dev != "" {
		link, err := nl.LinkByName(r.Dev)
		if err != nil {
			return err
		}
		route.LinkIndex = link.Attrs().Index
	}
	return nl.RouteDel(route)
}

func (LinuxNetlink) RuleAdd(r *IPRule) error {
	rule := nl.NewRule()
	rule.Priority = r.Priority
	rule.Table = r.Table
	rule.Src = r.SrcNet
	rule.Dst = r.DstNet
	// kernel protocol so systemd-networkd doesn't purge these on restart.
	rule.Protocol = syscall.RTPROT_KERNEL
	err := nl.RuleAdd(rule)
	if err != nil && errors.Is(err, syscall.EEXIST) {
		return ErrRuleExists
	}
	return err
}

func (LinuxNetlink) RuleDel(r *IPRule) error {
	rule := nl.NewRule()
	rule.Priority = r.Priority
	rule.Table = r.Table
	rule.Src = r.SrcNet
	rule.Dst = r.DstNet
	rule.Protocol = syscall.RTPROT_KERNEL
	return nl.RuleDel(rule)
}
