package state

import (
	"container/list"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/libreswan/pluto/internal/logging"
)

// Registry is the five-index live-state registry of spec.md §4.4: a
// monotone serial arena (the authoritative store, used for full scans)
// plus four secondary hash indexes kept consistent with it on every
// Add, Delete and Rehash*.
type Registry struct {
	nextSerial uint64
	bySerial   map[uint64]*State
	serialList *list.List // oldest at Front, newest at Back

	byConnection hashTable
	byReqID      hashTable
	bySPIi       hashTable
	bySPIPair    hashTable
}

// NewRegistry returns an empty registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		bySerial:   make(map[uint64]*State),
		serialList: list.New(),
	}
}

// Allocate assigns a new State a fresh, never-reused, never-zero serial
// and enrolls it only in the serial arena; the caller must still
// populate ConnectionSerial/ReqID/IKESPIs/etc and call Add to enroll it
// in the four secondary indexes, per spec.md §4.4's two-step
// allocate-then-enroll lifecycle (alloc_state does not itself call
// add_state_to_db in state_db.c).
func (r *Registry) Allocate() *State {
	r.nextSerial++
	if r.nextSerial == NoSerial {
		panic("state: serial counter wrapped past zero")
	}
	st := &State{
		Serial: r.nextSerial,
		Cookie: uuid.New(),
	}
	r.bySerial[st.Serial] = st
	st.elSerial = r.serialList.PushBack(st)
	return st
}

// Add enrolls an already-Allocate'd state into the four secondary
// indexes (connection, reqid, initiator SPI, SPI pair), keyed by
// whatever fields are non-zero at the time of the call. A zero
// ConnectionSerial/ReqID/SPI is never indexed: a zero value means "not
// yet known" per spec.md §4.4, and indexing it would make every
// not-yet-keyed state collide in the same bucket.
func (r *Registry) Add(ctx context.Context, st *State) {
	if st.inDB {
		panic("state: Add called twice on the same state")
	}
	if st.ConnectionSerial != NoSerial {
		st.refConnection = r.byConnection.insert(hashUint64(st.ConnectionSerial), st)
	}
	if st.ReqID != 0 {
		st.refReqID = r.byReqID.insert(hashUint32(st.ReqID), st)
	}
	if !st.IKESPIs.Initiator.IsZero() {
		st.refSPIi = r.bySPIi.insert(hashSPI(st.IKESPIs.Initiator), st)
	}
	if !st.IKESPIs.Initiator.IsZero() && !st.IKESPIs.Responder.IsZero() {
		st.refSPIPair = r.bySPIPair.insert(hashSPIPair(st.IKESPIs), st)
	}
	st.inDB = true
	logging.ForState(ctx, st.Serial).Debug("state added to db")
}

// Delete removes st from the serial arena and every secondary index it
// currently occupies. Deleting an unknown or already-deleted state is a
// no-op, mirroring del_state_from_db's tolerance of a state not yet (or
// no longer) in the hash tables.
func (r *Registry) Delete(ctx context.Context, st *State) {
	if st == nil {
		return
	}
	if st.elSerial != nil {
		r.serialList.Remove(st.elSerial)
		st.elSerial = nil
	}
	delete(r.bySerial, st.Serial)

	r.byConnection.remove(st.refConnection)
	r.byReqID.remove(st.refReqID)
	r.bySPIi.remove(st.refSPIi)
	r.bySPIPair.remove(st.refSPIPair)
	st.refConnection = bucketRef{}
	st.refReqID = bucketRef{}
	st.refSPIi = bucketRef{}
	st.refSPIPair = bucketRef{}
	st.inDB = false
	logging.ForState(ctx, st.Serial).Debug("state deleted from db")
}

// RehashConnection re-indexes st under its current ConnectionSerial,
// touching only the by-connection index, per spec.md §4.4's "rehash
// touches only the affected index" requirement (rehash_state_cookies
// -in_db's narrow scope in state_db.c).
func (r *Registry) RehashConnection(st *State) {
	r.byConnection.remove(st.refConnection)
	st.refConnection = bucketRef{}
	if st.ConnectionSerial != NoSerial {
		st.refConnection = r.byConnection.insert(hashUint64(st.ConnectionSerial), st)
	}
}

// RehashReqID re-indexes st under its current ReqID, touching only the
// by-reqid index.
func (r *Registry) RehashReqID(st *State) {
	r.byReqID.remove(st.refReqID)
	st.refReqID = bucketRef{}
	if st.ReqID != 0 {
		st.refReqID = r.byReqID.insert(hashUint32(st.ReqID), st)
	}
}

// RehashSPIs re-indexes st under its current IKESPIs, touching only the
// by-SPIi and by-SPI-pair indexes. Called once the responder's SPI
// becomes known and the zero-valued placeholder must be replaced.
func (r *Registry) RehashSPIs(st *State) {
	r.bySPIi.remove(st.refSPIi)
	st.refSPIi = bucketRef{}
	if !st.IKESPIs.Initiator.IsZero() {
		st.refSPIi = r.bySPIi.insert(hashSPI(st.IKESPIs.Initiator), st)
	}

	r.bySPIPair.remove(st.refSPIPair)
	st.refSPIPair = bucketRef{}
	if !st.IKESPIs.Initiator.IsZero() && !st.IKESPIs.Responder.IsZero() {
		st.refSPIPair = r.bySPIPair.insert(hashSPIPair(st.IKESPIs), st)
	}
}

// Plausible is the optional secondary match used to narrow a hash
// lookup beyond its key, per spec.md §4.4's plausibility filter
// (state_plausable in state_db.c): IKEVersion, V1MsgID, Role and
// ClonedFrom are each ignored when nil, and the overall match is the
// conjunction of whichever fields are set.
type Plausible struct {
	IKEVersion *Version
	V1MsgID    *uint32
	Role       *Role
	ClonedFrom *uint64
}

func (p *Plausible) matches(st *State) bool {
	if p == nil {
		return true
	}
	if p.IKEVersion != nil && st.Version != *p.IKEVersion {
		return false
	}
	if p.V1MsgID != nil && st.V1MsgID != *p.V1MsgID {
		return false
	}
	if p.Role != nil && st.Role != *p.Role {
		return false
	}
	if p.ClonedFrom != nil && st.ClonedFrom != *p.ClonedFrom {
		return false
	}
	return true
}

// BySerial looks up a state by its exact serial number. Serial 0
// (NoSerial) always misses, per spec.md §4.4 and §6.
func (r *Registry) BySerial(serial uint64) (*State, bool) {
	if serial == NoSerial {
		return nil, false
	}
	st, ok := r.bySerial[serial]
	return st, ok
}

// ByConnection returns every state whose ConnectionSerial matches,
// satisfying the optional plausibility filter.
func (r *Registry) ByConnection(serial uint64, plaus *Plausible) []*State {
	return r.collect(&r.byConnection, hashUint64(serial), func(st *State) bool {
		return st.ConnectionSerial == serial && plaus.matches(st)
	})
}

// ByReqID returns the state(s) whose ReqID matches, satisfying the
// optional plausibility filter.
func (r *Registry) ByReqID(reqid uint32, plaus *Plausible) []*State {
	return r.collect(&r.byReqID, hashUint32(reqid), func(st *State) bool {
		return st.ReqID == reqid && plaus.matches(st)
	})
}

// ByInitiatorSPI looks up by the initiator's SPI alone, used while the
// responder's SPI is still unknown.
func (r *Registry) ByInitiatorSPI(spi SPI, plaus *Plausible) []*State {
	return r.collect(&r.bySPIi, hashSPI(spi), func(st *State) bool {
		return st.IKESPIs.Initiator == spi && plaus.matches(st)
	})
}

// BySPIPair looks up by the full initiator+responder SPI pair, the
// most selective index, per spec.md §4.4.
func (r *Registry) BySPIPair(pair SPIPair, plaus *Plausible) []*State {
	return r.collect(&r.bySPIPair, hashSPIPair(pair), func(st *State) bool {
		return st.IKESPIs == pair && plaus.matches(st)
	})
}

func (r *Registry) collect(h *hashTable, key uint64, match func(*State) bool) []*State {
	idx := key % tableSize
	b := h.buckets[idx]
	if b == nil {
		return nil
	}
	var out []*State
	for e := b.Front(); e != nil; e = e.Next() {
		st := e.Value.(*State)
		if match(st) {
			out = append(out, st)
		}
	}
	return out
}

// Stats is the SPEC_FULL.md-supplemented introspection snapshot of
// registry occupancy, fed to the prometheus gauges in internal/metrics.
type Stats struct {
	Total        int
	ByConnection int
	ByReqID      int
	BySPIInit    int
	BySPIPair    int
}

func (r *Registry) Stat() Stats {
	return Stats{
		Total:        len(r.bySerial),
		ByConnection: r.byConnection.occupancy(),
		ByReqID:      r.byReqID.occupancy(),
		BySPIInit:    r.bySPIi.occupancy(),
		BySPIPair:    r.bySPIPair.occupancy(),
	}
}

// Snapshot returns every live state ordered oldest-allocated first, a
// point-in-time copy of the serial arena safe for a caller to range
// over while the registry continues to mutate. It is the SPEC_FULL.md
// -supplemented bulk-read counterpart to the Filter iterator.
func (r *Registry) Snapshot() []*State {
	out := make([]*State, 0, r.serialList.Len())
	for e := r.serialList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*State))
	}
	return out
}

func (r *Registry) String() string {
	return fmt.Sprintf("state.Registry{total=%d}", len(r.bySerial))
}
