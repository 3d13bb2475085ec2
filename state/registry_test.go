package state

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestAllocateNeverReusesOrReturnsZero(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		st := r.Allocate()
		assert.Check(t, st.Serial != NoSerial)
		assert.Check(t, !seen[st.Serial], "serial %d reused", st.Serial)
		seen[st.Serial] = true
		r.Delete(context.Background(), st)
	}
}

func TestAddThenDeleteMissesEveryIndex(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	st := r.Allocate()
	st.ConnectionSerial = 7
	st.ReqID = 42
	st.IKESPIs = SPIPair{Initiator: SPI{1}, Responder: SPI{2}}
	r.Add(context.Background(), st)

	_, ok := r.BySerial(st.Serial)
	assert.Check(t, ok)
	assert.Check(t, is.Len(r.ByConnection(7, nil), 1))
	assert.Check(t, is.Len(r.ByReqID(42, nil), 1))
	assert.Check(t, is.Len(r.ByInitiatorSPI(SPI{1}, nil), 1))
	assert.Check(t, is.Len(r.BySPIPair(st.IKESPIs, nil), 1))

	r.Delete(context.Background(), st)

	_, ok = r.BySerial(st.Serial)
	assert.Check(t, !ok)
	assert.Check(t, is.Len(r.ByConnection(7, nil), 0))
	assert.Check(t, is.Len(r.ByReqID(42, nil), 0))
	assert.Check(t, is.Len(r.ByInitiatorSPI(SPI{1}, nil), 0))
	assert.Check(t, is.Len(r.BySPIPair(st.IKESPIs, nil), 0))
}

func TestZeroKeysAreNeverIndexed(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	r.Add(context.Background(), a)
	b := r.Allocate()
	r.Add(context.Background(), b)

	assert.Check(t, is.Len(r.ByConnection(NoSerial, nil), 0))
	assert.Check(t, is.Len(r.ByReqID(0, nil), 0))
}

func TestRehashConnectionTouchesOnlyThatIndex(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	st := r.Allocate()
	st.ConnectionSerial = 1
	st.ReqID = 5
	r.Add(context.Background(), st)

	st.ConnectionSerial = 2
	r.RehashConnection(st)

	assert.Check(t, is.Len(r.ByConnection(1, nil), 0))
	assert.Check(t, is.Len(r.ByConnection(2, nil), 1))
	assert.Check(t, is.Len(r.ByReqID(5, nil), 1))
}

func TestRehashSPIsReplacesResponderSPI(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	st := r.Allocate()
	st.IKESPIs = SPIPair{Initiator: SPI{9}}
	r.Add(context.Background(), st)

	assert.Check(t, is.Len(r.BySPIPair(st.IKESPIs, nil), 0), "pair index must stay empty until responder SPI known")

	st.IKESPIs.Responder = SPI{10}
	r.RehashSPIs(st)

	assert.Check(t, is.Len(r.ByInitiatorSPI(SPI{9}, nil), 1))
	assert.Check(t, is.Len(r.BySPIPair(st.IKESPIs, nil), 1))
}

func TestPlausibleFilterNarrowsLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	a.ReqID = 1
	a.Version = IKEv1
	r.Add(context.Background(), a)
	b := r.Allocate()
	b.ReqID = 1
	b.Version = IKEv2
	r.Add(context.Background(), b)

	v2 := IKEv2
	got := r.ByReqID(1, &Plausible{IKEVersion: &v2})
	assert.Check(t, is.Len(got, 1))
	assert.Check(t, is.Equal(got[0].Serial, b.Serial))
}

func TestSnapshotIsOldestFirst(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	b := r.Allocate()
	c := r.Allocate()

	snap := r.Snapshot()
	assert.Check(t, is.Len(snap, 3))
	assert.Check(t, is.Equal(snap[0].Serial, a.Serial))
	assert.Check(t, is.Equal(snap[1].Serial, b.Serial))
	assert.Check(t, is.Equal(snap[2].Serial, c.Serial))
}

func TestStatReflectsOccupancy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	st := r.Allocate()
	st.ConnectionSerial = 3
	r.Add(context.Background(), st)

	s := r.Stat()
	assert.Check(t, is.Equal(s.Total, 1))
	assert.Check(t, is.Equal(s.ByConnection, 1))
	assert.Check(t, is.Equal(s.ByReqID, 0))
}
