package xfrm

import (
	"context"
	"net"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/libreswan/pluto/state"
)

type fakeKernelSA struct {
	addedSA       []SAParams
	deletedSA     []SAParams
	addedPolicy   []SPParams
	deletedPolicy []SPParams
}

func (f *fakeKernelSA) AddSA(ctx context.Context, p SAParams) error {
	f.addedSA = append(f.addedSA, p)
	return nil
}

func (f *fakeKernelSA) DeleteSA(ctx context.Context, p SAParams) error {
	f.deletedSA = append(f.deletedSA, p)
	return nil
}

func (f *fakeKernelSA) AddPolicy(ctx context.Context, p SPParams) error {
	f.addedPolicy = append(f.addedPolicy, p)
	return nil
}

func (f *fakeKernelSA) DeletePolicy(ctx context.Context, p SPParams) error {
	f.deletedPolicy = append(f.deletedPolicy, p)
	return nil
}

func testSPIs() state.SPIPair {
	return state.SPIPair{
		Initiator: state.SPI{0, 0, 0, 0, 0x11, 0x22, 0x33, 0x44},
		Responder: state.SPI{0, 0, 0, 0, 0x55, 0x66, 0x77, 0x88},
	}
}

func TestSPIValueUsesLowFourBytes(t *testing.T) {
	t.Parallel()

	spi := state.SPI{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}
	assert.Check(t, is.Equal(spiValue(spi), 1))
}

func TestEstablishTunnelProgramsBothDirectionsAndOnePolicy(t *testing.T) {
	t.Parallel()

	k := &fakeKernelSA{}
	local := net.ParseIP("198.51.100.1")
	remote := net.ParseIP("203.0.113.1")
	_, srcNet, _ := net.ParseCIDR("10.0.1.0/24")
	_, dstNet, _ := net.ParseCIDR("10.0.2.0/24")

	err := EstablishTunnel(context.Background(), k, local, remote, testSPIs(),
		&Algorithm{Name: "rfc4106(gcm(aes))", Key: []byte{1, 2, 3, 4}, ICVLen: 128},
		&Algorithm{Name: "rfc4106(gcm(aes))", Key: []byte{5, 6, 7, 8}, ICVLen: 128},
		42, srcNet, dstNet)

	assert.NilError(t, err)
	assert.Check(t, is.Len(k.addedSA, 2))
	assert.Check(t, is.Len(k.addedPolicy, 1))
	assert.Check(t, is.Equal(k.addedSA[0].Src.String(), local.String()))
	assert.Check(t, is.Equal(k.addedSA[0].Dst.String(), remote.String()))
	assert.Check(t, is.Equal(k.addedSA[1].Src.String(), remote.String()))
	assert.Check(t, is.Equal(k.addedSA[1].Dst.String(), local.String()))
}

func TestTeardownTunnelRemovesPolicyThenBothSAs(t *testing.T) {
	t.Parallel()

	k := &fakeKernelSA{}
	local := net.ParseIP("198.51.100.1")
	remote := net.ParseIP("203.0.113.1")
	_, srcNet, _ := net.ParseCIDR("10.0.1.0/24")
	_, dstNet, _ := net.ParseCIDR("10.0.2.0/24")

	err := TeardownTunnel(context.Background(), k, local, remote, testSPIs(), 42, srcNet, dstNet)

	assert.NilError(t, err)
	assert.Check(t, is.Len(k.deletedSA, 2))
	assert.Check(t, is.Len(k.deletedPolicy, 1))
}
