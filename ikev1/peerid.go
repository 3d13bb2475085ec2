package ikev1

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/libreswan/pluto/internal/errdefs"
	"github.com/libreswan/pluto/internal/logging"
	"github.com/libreswan/pluto/pkg/certverify"
	"github.com/libreswan/pluto/state"
)

// Protocol/port values a Phase 1 ID payload is expected to carry, per
// decode_peer_id's comment that RFC2407 4.6.2's protocol/port fields
// don't really apply to Phase 1.
const (
	protoUDP        = 17
	ikeUDPPort      = 500
	natIKEUDPPort   = 4500
	protoPortUnused = 0
)

// IDPayload is the already-decoded ID payload delivered by the (out of
// scope, per spec.md §1) wire codec: the identity itself plus the raw
// protocol/port fields decode_peer_id cross-checks.
type IDPayload struct {
	Peer     Identity
	Protocol int
	Port     int
}

// MessageDigest is the subset of libreswan's msg_digest this package
// needs: the decoded ID payload, whether a CERT payload was present,
// and the verified certificate chain the out-of-scope crypto/TLS
// collaborator produced (nil if verification didn't run or produced
// nothing).
type MessageDigest struct {
	ID             IDPayload
	HasCertPayload bool
	VerifiedCerts  *certverify.VerifiedChain
	NATTraversal   bool
}

// ConnectionKind distinguishes a concrete instance from a template or
// group connection, per spec.md's Connection record; templates/groups
// must be instantiated before a state can be bound to them.
type ConnectionKind int

const (
	ConnectionInstance ConnectionKind = iota
	ConnectionTemplate
	ConnectionGroup
)

// Connection is the subset of a connection's `that` endpoint this
// package reads and mutates while resolving peer identity: the
// declared id, whether it carries wildcards, the "allow no SAN" policy
// bit, and the stored peer certificate.
type Connection struct {
	Serial             uint64
	Kind               ConnectionKind
	ThatID             Identity
	ThatHasIDWildcards bool
	ThatCert           *certverify.VerifiedChain
	AllowNoSAN         bool
	HostAddr           string
}

// RefinementResult is what the connection-table refinement collaborator
// (refine_host_connection_on_responder, named only at its interface
// per spec.md §1/§4.5 step 3) returns: a candidate connection, or nil
// if none fit, plus whether the caller should prefer the certificate's
// identity over the connection's configured one.
type RefinementResult struct {
	Connection    *Connection
	GetIDFromCert bool
}

// Refiner is consulted only by the main-mode-responder variant, once
// the peer's id and authby mask are known, per spec.md §4.5 step 3.
type Refiner interface {
	RefineHostConnection(ctx context.Context, st *state.State, authby AuthByMask, peer Identity) (RefinementResult, error)
}

// Instantiator turns a template/group connection into a concrete
// instance bound to the peer's address and id (rw_instantiate).
type Instantiator interface {
	Instantiate(ctx context.Context, tmpl *Connection, peerAddr string, peer Identity) (*Connection, error)
}

// Switcher migrates a state to a different connection
// (connswitch_state_and_log), logging the change.
type Switcher interface {
	Switch(ctx context.Context, st *state.State, to *Connection)
}

// decodePeerID is the common pre-step shared by all three resolver
// variants (decode_peer_id in ikev1_peer_id.c). The ID payload is
// assumed already decoded by the wire layer; this step only validates
// the Phase 1 protocol/port convention and records it on the state for
// later AUTH hashing. Violations are logged but never fail the
// exchange, matching known interop workarounds for buggy peers.
func decodePeerID(ctx context.Context, st *state.State, md *MessageDigest) {
	proto, port := md.ID.Protocol, md.ID.Port

	zero := proto == protoPortUnused && port == protoPortUnused
	plainIKE := proto == protoUDP && port == ikeUDPPort
	naTFloat := md.NATTraversal && proto == protoUDP && (port == 0 || port == natIKEUDPPort)

	if !zero && !plainIKE && !naTFloat {
		logging.ForState(ctx, st.Serial).Warnf(
			"protocol/port in Phase 1 ID Payload MUST be 0/0 or %d/%d but are %d/%d (attempting to continue)",
			protoUDP, ikeUDPPort, proto, port)
	}

	st.PeerIdentityProtocol = proto
	st.PeerIdentityPort = port

	logging.ForState(ctx, st.Serial).Debugf("Peer ID is %s: %q", md.ID.Peer.Kind, md.ID.Peer.Value)
}

// sanKindForIdentity maps a peer identity kind onto the subjectAltName
// kind it would appear as in a certificate, for match_end_cert_id.
func sanKindForIdentity(id Identity) (certverify.SANKind, string) {
	switch id.Kind {
	case IdentityFQDN:
		return certverify.SANDNSName, id.Value
	case IdentityUserFQDN:
		return certverify.SANEmail, id.Value
	case IdentityIPv4Addr, IdentityIPv6Addr:
		return certverify.SANIPAddress, id.Value
	default:
		return certverify.SANSubjectDN, id.Value
	}
}

// identityFromMatch converts a certverify match back into the peer
// -identity tagged union.
func identityFromMatch(m certverify.MatchResult) Identity {
	switch m.Kind {
	case certverify.SANDNSName:
		return Identity{Kind: IdentityFQDN, Value: m.Value}
	case certverify.SANEmail:
		return Identity{Kind: IdentityUserFQDN, Value: m.Value}
	case certverify.SANIPAddress:
		return Identity{Kind: IdentityIPv4Addr, Value: m.Value}
	case certverify.SANSubjectDN:
		return Identity{Kind: IdentityDERASN1DN, Value: m.Value}
	default:
		return Identity{}
	}
}

// remoteIDForCertMatch picks the identity match_end_cert_id is matched
// against, per spec.md §4.5 step 4: the decoded peer id when the
// current id is FROMCERT, when getIDFromCert is set, or (main-mode
// -responder only) when the current id carries wildcards; otherwise
// the connection's current id.
func remoteIDForCertMatch(conn *Connection, peer Identity, getIDFromCert, checkWildcards bool) Identity {
	if conn.ThatID.Kind == IdentityFromCert || getIDFromCert {
		return peer
	}
	if checkWildcards && conn.ThatHasIDWildcards {
		return peer
	}
	return conn.ThatID
}

// certificateCheck is the "check for certificates" block common to all
// three resolver variants. It reports whether an alternate,
// certificate-derived identity was accepted (peerAltID), mutating conn
// in place on a SAN match.
func certificateCheck(ctx context.Context, st *state.State, conn *Connection, md *MessageDigest, getIDFromCert, checkWildcards bool) (peerAltID bool, err error) {
	if !md.HasCertPayload {
		logging.ForState(ctx, st.Serial).Debug("Peer ID has no certs")
		return false, nil
	}
	if md.VerifiedCerts == nil {
		logging.ForState(ctx, st.Serial).Debug("Peer ID has no verified certs")
		return false, nil
	}

	chain := *md.VerifiedCerts
	end := chain.End()
	if end != nil {
		logging.ForState(ctx, st.Serial).Debugf("certificate verified OK: %s", end.Subject)
	}

	if conn.AllowNoSAN {
		logging.ForState(ctx, st.Serial).Debug("SAN ID matching skipped due to policy (require-id-on-certificate=no)")
	} else {
		remoteID := remoteIDForCertMatch(conn, md.ID.Peer, getIDFromCert, checkWildcards)
		kind, value := sanKindForIdentity(remoteID)
		m, merr := chain.MatchEndCertID(kind, value)
		if merr != nil {
			logging.ForState(ctx, st.Serial).Debug("SAN ID did not match")
			return false, errdefs.Forbidden(errors.Wrap(merr, "X509: CERT payload does not match connection ID"))
		}
		logging.ForState(ctx, st.Serial).Debug("SAN ID matched, updating that.cert")
		certID := identityFromMatch(m)
		if certID.Kind != IdentityNone {
			conn.ThatID = certID
		}
	}

	conn.ThatCert = &chain
	return true, nil
}

// DecodePeerIDInitiator is ikev1_decode_peer_id_initiator: the
// initiator already chose its connection and may only narrow an id
// that was FROMCERT.
func DecodePeerIDInitiator(ctx context.Context, st *state.State, md *MessageDigest, conn *Connection) error {
	decodePeerID(ctx, st, md)
	peer := md.ID.Peer

	if conn.ThatID.Kind == IdentityFromCert {
		conn.ThatID = peer
	}

	peerAltID, err := certificateCheck(ctx, st, conn, md, false, false)
	if err != nil {
		return err
	}

	switch {
	case !peerAltID && !conn.ThatID.Equal(peer) && conn.ThatID.Kind != IdentityFromCert:
		return errdefs.InvalidParameter(fmt.Errorf(
			"we require IKEv1 peer to have ID %q, but peer declares %q", conn.ThatID, peer))
	case conn.ThatID.Kind == IdentityFromCert:
		if peer.Kind != IdentityDERASN1DN {
			return errdefs.InvalidParameter(errors.New("peer ID is not a certificate type"))
		}
		conn.ThatID = peer
	}

	return nil
}

// DecodePeerIDAggressiveResponder is
// ikev1_decode_peer_id_aggr_mode_responder: aggressive mode carries the
// ID in message 1, so the connection is already pinned and cannot be
// switched; it may only be narrowed by a FROMCERT match. Latches
// st.V1AggrModeResponderFoundPeerID to prevent double processing.
func DecodePeerIDAggressiveResponder(ctx context.Context, st *state.State, md *MessageDigest, conn *Connection) error {
	decodePeerID(ctx, st, md)
	peer := md.ID.Peer

	if conn.ThatID.Kind == IdentityFromCert {
		conn.ThatID = peer
	}

	if _, err := certificateCheck(ctx, st, conn, md, false, false); err != nil {
		return err
	}

	st.V1AggrModeResponderFoundPeerID = true
	return nil
}

// DecodePeerIDMainModeResponder is
// ikev1_decode_peer_id_main_mode_responder: the only variant allowed to
// switch connections, since the ID arrives in message 3 after an
// address-only connection selection. May instantiate a template/group
// connection and migrate the state onto it.
func DecodePeerIDMainModeResponder(ctx context.Context, st *state.State, md *MessageDigest, current *Connection, method AuthMethod, refiner Refiner, instantiator Instantiator, switcher Switcher) (*Connection, error) {
	decodePeerID(ctx, st, md)
	peer := md.ID.Peer

	authby, err := TranslateAuthBy(method)
	if err != nil {
		return nil, err
	}

	refined, err := refiner.RefineHostConnection(ctx, st, authby, peer)
	if err != nil {
		return nil, err
	}
	r := refined.Connection

	effective := current
	if r != nil {
		effective = r
	}

	peerAltID, err := certificateCheck(ctx, st, effective, md, refined.GetIDFromCert, true)
	if err != nil {
		return nil, err
	}

	if r == nil {
		if !peerAltID && !current.ThatID.Equal(peer) && current.ThatID.Kind != IdentityFromCert {
			return nil, errdefs.InvalidParameter(errors.New(
				"peer mismatch on first found connection and no better connection found"))
		}
		logging.ForState(ctx, st.Serial).Debug("Peer ID matches and no better connection found - continuing with existing connection")
		r = current
	}

	if r != current {
		if r.Kind == ConnectionTemplate || r.Kind == ConnectionGroup {
			instantiated, err := instantiator.Instantiate(ctx, r, r.HostAddr, peer)
			if err != nil {
				return nil, errors.Wrap(err, "ikev1: instantiating refined connection")
			}
			r = instantiated
		}
		switcher.Switch(ctx, st, r)
	} else if r.ThatHasIDWildcards {
		r.ThatID = peer
		r.ThatHasIDWildcards = false
	} else if refined.GetIDFromCert {
		logging.ForState(ctx, st.Serial).Debug("copying ID for get_id_from_cert")
		r.ThatID = peer
	}

	return r, nil
}
