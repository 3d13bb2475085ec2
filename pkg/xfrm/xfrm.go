// Package xfrm gives the "named only at their interface" PF_KEY/XFRM
// kernel collaborator a concrete, optional implementation: installing
// the tunnel-mode Security Associations and Security Policies an IKE
// SA negotiates, keyed by the initiator/responder SPI pair the state
// registry indexes on.
package xfrm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/containerd/log"
	"github.com/vishvananda/netlink"

	"github.com/libreswan/pluto/state"
)

// Algorithm describes the cipher/auth transform negotiated for an SA.
// Name follows the XFRM algorithm-name convention (e.g.
// "rfc4106(gcm(aes))" for combined-mode AEAD ciphers).
type Algorithm struct {
	Name   string
	Key    []byte
	ICVLen int // bits, AEAD only
}

// SAParams describes one direction of a tunnel-mode IPsec SA.
type SAParams struct {
	Src, Dst net.IP
	SPI      state.SPI
	ReqID    uint32
	Aead     *Algorithm
}

// SPParams describes the Security Policy that steers traffic between
// two inner subnets into a tunnel-mode SA pair.
type SPParams struct {
	SrcNet, DstNet *net.IPNet
	TunnelSrc      net.IP
	TunnelDst      net.IP
	SPI            state.SPI
	ReqID          uint32
	Dir            netlink.Dir
}

// KernelSA is the PF_KEY/XFRM collaborator spec.md names only at its
// interface (§1): programming and tearing down the Security
// Associations and Security Policies an established IKE SA implies.
// Out-of-scope crypto negotiation feeds this interface its inputs; it
// does no negotiation of its own.
type KernelSA interface {
	AddSA(ctx context.Context, p SAParams) error
	DeleteSA(ctx context.Context, p SAParams) error
	AddPolicy(ctx context.Context, p SPParams) error
	DeletePolicy(ctx context.Context, p SPParams) error
}

func spiValue(s state.SPI) int {
	return int(binary.BigEndian.Uint32(s[4:8]))
}

// netlinkSA is the netlink-backed KernelSA implementation, adapted
// from the overlay network driver's transport-mode ESP SA/SP
// programming to tunnel-mode SAs/SPs addressed by the negotiated
// initiator/responder SPI pair instead of a per-node key tag.
type netlinkSA struct {
	handle *netlink.Handle
}

// NewNetlinkKernelSA wraps a netlink handle for programming kernel
// IPsec state. Pass nil to use the default (non-namespaced) handle.
func NewNetlinkKernelSA(h *netlink.Handle) KernelSA {
	if h == nil {
		h = &netlink.Handle{}
	}
	return &netlinkSA{handle: h}
}

func (k *netlinkSA) xfrmState(p SAParams) *netlink.XfrmState {
	st := &netlink.XfrmState{
		Src:   p.Src,
		Dst:   p.Dst,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TUNNEL,
		Spi:   spiValue(p.SPI),
		Reqid: int(p.ReqID),
	}
	if p.Aead != nil {
		st.Aead = &netlink.XfrmStateAlgo{
			Name:   p.Aead.Name,
			Key:    p.Aead.Key,
			ICVLen: p.Aead.ICVLen,
		}
	}
	return st
}

func (k *netlinkSA) saExists(sa *netlink.XfrmState) (bool, error) {
	_, err := k.handle.XfrmStateGet(sa)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("xfrm: checking SA existence: %w", err)
	}
}

func (k *netlinkSA) AddSA(ctx context.Context, p SAParams) error {
	sa := k.xfrmState(p)
	exists, err := k.saExists(sa)
	if err != nil {
		log.G(ctx).Warn(err)
	}
	if exists {
		return nil
	}
	log.G(ctx).Debugf("xfrm: adding SA %s->%s spi=0x%x reqid=%d", p.Src, p.Dst, sa.Spi, p.ReqID)
	if err := k.handle.XfrmStateAdd(sa); err != nil {
		return fmt.Errorf("xfrm: adding SA %s->%s: %w", p.Src, p.Dst, err)
	}
	return nil
}

func (k *netlinkSA) DeleteSA(ctx context.Context, p SAParams) error {
	sa := k.xfrmState(p)
	log.G(ctx).Debugf("xfrm: deleting SA %s->%s spi=0x%x", p.Src, p.Dst, sa.Spi)
	if err := k.handle.XfrmStateDel(sa); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("xfrm: deleting SA %s->%s: %w", p.Src, p.Dst, err)
	}
	return nil
}

func (k *netlinkSA) xfrmPolicy(p SPParams) *netlink.XfrmPolicy {
	return &netlink.XfrmPolicy{
		Src: p.SrcNet,
		Dst: p.DstNet,
		Dir: p.Dir,
		Tmpls: []netlink.XfrmPolicyTmpl{
			{
				Src:   p.TunnelSrc,
				Dst:   p.TunnelDst,
				Proto: netlink.XFRM_PROTO_ESP,
				Mode:  netlink.XFRM_MODE_TUNNEL,
				Spi:   spiValue(p.SPI),
				Reqid: int(p.ReqID),
			},
		},
	}
}

func (k *netlinkSA) spExists(sp *netlink.XfrmPolicy) (bool, error) {
	_, err := k.handle.XfrmPolicyGet(sp)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ENOENT):
		return false, nil
	default:
		return false, fmt.Errorf("xfrm: checking SP existence: %w", err)
	}
}

func (k *netlinkSA) AddPolicy(ctx context.Context, p SPParams) error {
	pol := k.xfrmPolicy(p)
	exists, err := k.spExists(pol)
	if err != nil {
		log.G(ctx).Warn(err)
	}
	if exists {
		return nil
	}
	log.G(ctx).Debugf("xfrm: adding policy %s -> %s dir=%d", p.SrcNet, p.DstNet, p.Dir)
	if err := k.handle.XfrmPolicyAdd(pol); err != nil {
		return fmt.Errorf("xfrm: adding policy %s->%s: %w", p.SrcNet, p.DstNet, err)
	}
	return nil
}

func (k *netlinkSA) DeletePolicy(ctx context.Context, p SPParams) error {
	pol := k.xfrmPolicy(p)
	log.G(ctx).Debugf("xfrm: deleting policy %s -> %s dir=%d", p.SrcNet, p.DstNet, p.Dir)
	if err := k.handle.XfrmPolicyDel(pol); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil
		}
		return fmt.Errorf("xfrm: deleting policy %s->%s: %w", p.SrcNet, p.DstNet, err)
	}
	return nil
}

// EstablishTunnel programs the pair of SAs (one per direction) and the
// outbound policy for a negotiated IKE SA's child SA, given the
// already-derived SPI pair and AEAD keys for each direction.
func EstablishTunnel(ctx context.Context, k KernelSA, localIP, remoteIP net.IP, spis state.SPIPair, localKey, remoteKey *Algorithm, reqID uint32, srcNet, dstNet *net.IPNet) error {
	out := SAParams{Src: localIP, Dst: remoteIP, SPI: spis.Initiator, ReqID: reqID, Aead: localKey}
	in := SAParams{Src: remoteIP, Dst: localIP, SPI: spis.Responder, ReqID: reqID, Aead: remoteKey}

	if err := k.AddSA(ctx, out); err != nil {
		return err
	}
	if err := k.AddSA(ctx, in); err != nil {
		return err
	}

	return k.AddPolicy(ctx, SPParams{
		SrcNet:    srcNet,
		DstNet:    dstNet,
		TunnelSrc: localIP,
		TunnelDst: remoteIP,
		SPI:       spis.Initiator,
		ReqID:     reqID,
		Dir:       netlink.XFRM_DIR_OUT,
	})
}

// TeardownTunnel removes the SA pair and outbound policy
// EstablishTunnel installed.
func TeardownTunnel(ctx context.Context, k KernelSA, localIP, remoteIP net.IP, spis state.SPIPair, reqID uint32, srcNet, dstNet *net.IPNet) error {
	var lastErr error
	if err := k.DeletePolicy(ctx, SPParams{
		SrcNet: srcNet, DstNet: dstNet,
		TunnelSrc: localIP, TunnelDst: remoteIP,
		SPI: spis.Initiator, ReqID: reqID, Dir: netlink.XFRM_DIR_OUT,
	}); err != nil {
		lastErr = err
	}
	if err := k.DeleteSA(ctx, SAParams{Src: localIP, Dst: remoteIP, SPI: spis.Initiator, ReqID: reqID}); err != nil {
		lastErr = err
	}
	if err := k.DeleteSA(ctx, SAParams{Src: remoteIP, Dst: localIP, SPI: spis.Responder, ReqID: reqID}); err != nil {
		lastErr = err
	}
	return lastErr
}
