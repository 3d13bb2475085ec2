// Package state implements the five-index live-state registry described
// in spec.md §4.4: a monotone serial arena plus four secondary hash
// indexes (owning connection, reqid, IKE initiator SPI, and the
// initiator+responder SPI pair), with a deletion-safe bidirectional
// iterator.
package state

import (
	"container/list"

	"github.com/google/uuid"
)

// Version distinguishes IKEv1 ISAKMP SAs from IKEv2 IKE SAs, per
// spec.md's glossary ("IKE SA / CHILD SA: ... IKEv1 uses ISAKMP SA /
// IPsec SA; treated uniformly here").
type Version int

const (
	IKEv1 Version = 1
	IKEv2 Version = 2
)

// Role is which end of the exchange a state played, per spec.md §4.4's
// plausibility filter ("optional role match").
type Role int

const (
	RoleUndetermined Role = iota
	RoleInitiator
	RoleResponder
)

// SPI is an 8-byte Security Parameter Index, one per direction, per the
// glossary.
type SPI [8]byte

// IsZero reports whether the SPI is all-zero, the value a freshly
// allocated state carries before the wire layer assigns it.
func (s SPI) IsZero() bool {
	return s == SPI{}
}

// SPIPair is the initiator+responder SPI pair that together identify an
// IKE SA on the wire, per spec.md §4.4.
type SPIPair struct {
	Initiator SPI
	Responder SPI
}

// NoSerial is the reserved "nobody" serial: it is never assigned, and
// looking it up always misses, per spec.md §4.4 and §6.
const NoSerial uint64 = 0

// State is a live instance of an IKE or CHILD SA, per spec.md §3. Its
// Serial is assigned once at allocation and never mutated; ClonedFrom
// distinguishes a CHILD SA (non-zero, naming its parent's Serial) from
// an IKE SA (zero).
type State struct {
	Version          Version
	Serial           uint64
	ClonedFrom       uint64 // 0 for an IKE SA, parent serial for a CHILD SA
	ConnectionSerial uint64
	ReqID            uint32
	IKESPIs          SPIPair
	V1MsgID          uint32
	Role             Role
	ShortName        string

	// Cookie is a correlation id independent of the serial number,
	// useful for cross-referencing a state across log aggregation
	// systems that don't preserve process-local counters.
	Cookie uuid.UUID

	// PeerIdentityProtocol/Port record the raw protocol/port carried
	// in the peer's ID payload, per spec.md §4.5's decode_peer_id,
	// needed later for AUTH hashing.
	PeerIdentityProtocol int
	PeerIdentityPort     int

	// V1AggrModeResponderFoundPeerID latches once an aggressive-mode
	// responder has accepted a peer id, preventing double processing,
	// per spec.md §4.5.
	V1AggrModeResponderFoundPeerID bool

	// index bookkeeping: back-pointers into the registry's bucket
	// lists so delete and rehash are O(1), per spec.md §4.4's
	// "intrusive doubly-linked list per bucket" and the Design Notes'
	// side-table alternative (elements, not raw bucket indices, so a
	// rehash never needs to know the prior key).
	elSerial      *list.Element
	refConnection bucketRef
	refReqID      bucketRef
	refSPIi       bucketRef
	refSPIPair    bucketRef

	inDB bool // true once Add has enrolled the state in the four secondary indexes
}

// bucketRef names the list and element a State occupies in one
// secondary index, so removal and rehash never need to recompute which
// bucket an entry was hashed into.
type bucketRef struct {
	list *list.List
	elem *list.Element
}

func (r bucketRef) valid() bool { return r.list != nil && r.elem != nil }
