package ikev1

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/libreswan/pluto/pkg/certverify"
	"github.com/libreswan/pluto/state"
)

func selfSignedChain(t *testing.T, dnsNames []string, cn string) certverify.VerifiedChain {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NilError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     dnsNames,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	assert.NilError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	chain, err := certverify.ParsePEMChain(pemBytes)
	assert.NilError(t, err)
	return chain
}

func newTestState() *state.State {
	r := state.NewRegistry()
	st := r.Allocate()
	st.Version = state.IKEv1
	return st
}

func TestDecodePeerIDInitiatorNarrowsFromCertNoCert(t *testing.T) {
	t.Parallel()

	st := newTestState()
	conn := &Connection{ThatID: Identity{Kind: IdentityFromCert}}
	md := &MessageDigest{ID: IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "peer.example.com"}}}

	err := DecodePeerIDInitiator(context.Background(), st, md, conn)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(conn.ThatID, md.ID.Peer))
}

func TestDecodePeerIDInitiatorRejectsMismatch(t *testing.T) {
	t.Parallel()

	st := newTestState()
	conn := &Connection{ThatID: Identity{Kind: IdentityFQDN, Value: "expected.example.com"}}
	md := &MessageDigest{ID: IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "someone-else.example.com"}}}

	err := DecodePeerIDInitiator(context.Background(), st, md, conn)
	assert.Assert(t, err != nil)
}

func TestDecodePeerIDInitiatorAcceptsMatchingID(t *testing.T) {
	t.Parallel()

	st := newTestState()
	id := Identity{Kind: IdentityFQDN, Value: "peer.example.com"}
	conn := &Connection{ThatID: id}
	md := &MessageDigest{ID: IDPayload{Peer: id}}

	err := DecodePeerIDInitiator(context.Background(), st, md, conn)
	assert.NilError(t, err)
}

func TestDecodePeerIDAggressiveResponderLatchesFoundPeerID(t *testing.T) {
	t.Parallel()

	st := newTestState()
	chain := selfSignedChain(t, []string{"peer.example.com"}, "peer.example.com")
	conn := &Connection{ThatID: Identity{Kind: IdentityFromCert}}
	md := &MessageDigest{
		ID:             IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "peer.example.com"}},
		HasCertPayload: true,
		VerifiedCerts:  &chain,
	}

	err := DecodePeerIDAggressiveResponder(context.Background(), st, md, conn)
	assert.NilError(t, err)
	assert.Check(t, st.V1AggrModeResponderFoundPeerID)
}

func TestDecodePeerIDAggressiveResponderSANMismatchFails(t *testing.T) {
	t.Parallel()

	st := newTestState()
	chain := selfSignedChain(t, []string{"peer.example.com"}, "peer.example.com")
	conn := &Connection{ThatID: Identity{Kind: IdentityFQDN, Value: "not-in-cert.example.com"}}
	md := &MessageDigest{
		ID:             IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "peer.example.com"}},
		HasCertPayload: true,
		VerifiedCerts:  &chain,
	}

	err := DecodePeerIDAggressiveResponder(context.Background(), st, md, conn)
	assert.Assert(t, err != nil)
	assert.Check(t, !st.V1AggrModeResponderFoundPeerID)
}

type fakeRefiner struct {
	result RefinementResult
	err    error
}

func (f fakeRefiner) RefineHostConnection(ctx context.Context, st *state.State, authby AuthByMask, peer Identity) (RefinementResult, error) {
	return f.result, f.err
}

type fakeInstantiator struct{}

func (fakeInstantiator) Instantiate(ctx context.Context, tmpl *Connection, peerAddr string, peer Identity) (*Connection, error) {
	inst := *tmpl
	inst.Kind = ConnectionInstance
	inst.ThatID = peer
	return &inst, nil
}

type fakeSwitcher struct {
	switched *Connection
}

func (f *fakeSwitcher) Switch(ctx context.Context, st *state.State, to *Connection) {
	f.switched = to
}

// TestMainModeResponderScenario6 is spec.md §8 scenario 6: the
// connection's that.id is %fromcert and the verified end-cert CN
// matches the peer's declared id; the resolver must update that.id to
// the cert-derived identity and must not touch
// V1AggrModeResponderFoundPeerID.
func TestMainModeResponderScenario6(t *testing.T) {
	t.Parallel()

	st := newTestState()
	chain := selfSignedChain(t, []string{"peer.example.com"}, "peer.example.com")
	current := &Connection{ThatID: Identity{Kind: IdentityFromCert}}
	md := &MessageDigest{
		ID:             IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "peer.example.com"}},
		HasCertPayload: true,
		VerifiedCerts:  &chain,
	}

	refiner := fakeRefiner{result: RefinementResult{Connection: current}}
	sw := &fakeSwitcher{}

	got, err := DecodePeerIDMainModeResponder(context.Background(), st, md, current,
		AuthPresharedKey, refiner, fakeInstantiator{}, sw)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(got, current))
	assert.Check(t, is.Equal(got.ThatID.Kind, IdentityFQDN))
	assert.Check(t, is.Equal(got.ThatID.Value, "peer.example.com"))
	assert.Check(t, !st.V1AggrModeResponderFoundPeerID)
	assert.Check(t, sw.switched == nil, "no connection switch when refinement returns the current connection")
}

func TestMainModeResponderSwitchesToRefinedConnection(t *testing.T) {
	t.Parallel()

	st := newTestState()
	current := &Connection{Serial: 1, ThatID: Identity{Kind: IdentityFQDN, Value: "wrong.example.com"}}
	refined := &Connection{Serial: 2, Kind: ConnectionTemplate, HostAddr: "203.0.113.5"}
	peer := Identity{Kind: IdentityFQDN, Value: "peer.example.com"}
	md := &MessageDigest{ID: IDPayload{Peer: peer}}

	refiner := fakeRefiner{result: RefinementResult{Connection: refined}}
	sw := &fakeSwitcher{}

	got, err := DecodePeerIDMainModeResponder(context.Background(), st, md, current,
		AuthPresharedKey, refiner, fakeInstantiator{}, sw)
	assert.NilError(t, err)
	assert.Check(t, got != current)
	assert.Check(t, is.Equal(got.Kind, ConnectionInstance))
	assert.Check(t, is.Equal(got.ThatID, peer))
	assert.Check(t, sw.switched == got)
}

func TestMainModeResponderUnsupportedAuthMethod(t *testing.T) {
	t.Parallel()

	st := newTestState()
	current := &Connection{}
	md := &MessageDigest{ID: IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "peer.example.com"}}}

	_, err := DecodePeerIDMainModeResponder(context.Background(), st, md, current,
		AuthDSSSig, fakeRefiner{}, fakeInstantiator{}, &fakeSwitcher{})
	assert.Assert(t, err != nil)
}

func TestMainModeResponderNoCandidateKeepsCurrentOnMatch(t *testing.T) {
	t.Parallel()

	st := newTestState()
	peer := Identity{Kind: IdentityFQDN, Value: "peer.example.com"}
	current := &Connection{ThatID: peer}
	md := &MessageDigest{ID: IDPayload{Peer: peer}}

	got, err := DecodePeerIDMainModeResponder(context.Background(), st, md, current,
		AuthPresharedKey, fakeRefiner{result: RefinementResult{}}, fakeInstantiator{}, &fakeSwitcher{})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(got, current))
}

func TestMainModeResponderNoCandidateFailsOnMismatch(t *testing.T) {
	t.Parallel()

	st := newTestState()
	current := &Connection{ThatID: Identity{Kind: IdentityFQDN, Value: "expected.example.com"}}
	md := &MessageDigest{ID: IDPayload{Peer: Identity{Kind: IdentityFQDN, Value: "someone-else.example.com"}}}

	_, err := DecodePeerIDMainModeResponder(context.Background(), st, md, current,
		AuthPresharedKey, fakeRefiner{result: RefinementResult{}}, fakeInstantiator{}, &fakeSwitcher{})
	assert.Assert(t, err != nil)
}
