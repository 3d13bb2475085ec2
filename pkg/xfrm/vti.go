package xfrm

import (
	"context"
	"fmt"
	"net"

	"github.com/containerd/log"
	"github.com/vishvananda/netlink"
)

// VTIConfig is the subset of a connection record's vti/vti-interface
// fields needed to create a route-based VTI device for the tunnel,
// instead of (or alongside) the policy-based SP installed by
// EstablishTunnel.
type VTIConfig struct {
	Name       string
	LocalAddr  net.IP
	RemoteAddr net.IP
	IKey, OKey uint32
	MTU        int
}

// EnsureVTI creates (if absent) and brings up a VTI link for the given
// configuration, adapted from setupDevice/setupDeviceUp's
// create-then-up bridge sequence.
func EnsureVTI(ctx context.Context, handle *netlink.Handle, cfg VTIConfig) (netlink.Link, error) {
	if handle == nil {
		handle = &netlink.Handle{}
	}

	if existing, err := handle.LinkByName(cfg.Name); err == nil {
		return existing, setupVTIUp(ctx, handle, existing)
	}

	link := &netlink.Vti{
		LinkAttrs: netlink.LinkAttrs{
			Name: cfg.Name,
			MTU:  cfg.MTU,
		},
		Local:  cfg.LocalAddr,
		Remote: cfg.RemoteAddr,
		IKey:   cfg.IKey,
		OKey:   cfg.OKey,
	}

	log.G(ctx).Debugf("xfrm: creating VTI device %s (%s -> %s)", cfg.Name, cfg.LocalAddr, cfg.RemoteAddr)
	if err := handle.LinkAdd(link); err != nil {
		log.G(ctx).WithError(err).Errorf("xfrm: failed to create VTI device %s via netlink", cfg.Name)
		return nil, fmt.Errorf("xfrm: creating VTI device %s: %w", cfg.Name, err)
	}

	return link, setupVTIUp(ctx, handle, link)
}

func setupVTIUp(ctx context.Context, handle *netlink.Handle, link netlink.Link) error {
	if err := handle.LinkSetUp(link); err != nil {
		return fmt.Errorf("xfrm: failed to set link up for %s: %w", link.Attrs().Name, err)
	}
	return nil
}

// RemoveVTI tears down a VTI device by name. Absence is not an error.
func RemoveVTI(ctx context.Context, handle *netlink.Handle, name string) error {
	if handle == nil {
		handle = &netlink.Handle{}
	}
	link, err := handle.LinkByName(name)
	if err != nil {
		return nil
	}
	log.G(ctx).Debugf("xfrm: removing VTI device %s", name)
	if err := handle.LinkDel(link); err != nil {
		return fmt.Errorf("xfrm: removing VTI device %s: %w", name, err)
	}
	return nil
}
