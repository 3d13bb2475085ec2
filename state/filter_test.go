package state

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func serials(states []*State) []uint64 {
	out := make([]uint64, len(states))
	for i, st := range states {
		out[i] = st.Serial
	}
	return out
}

func drain(f *Filter) []*State {
	var out []*State
	for {
		st, ok := f.Next()
		if !ok {
			return out
		}
		out = append(out, st)
	}
}

func TestFilterFullScanOldToNew(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a, b, c := r.Allocate(), r.Allocate(), r.Allocate()
	r.Add(context.Background(), a)
	r.Add(context.Background(), b)
	r.Add(context.Background(), c)

	f := NewFilter(r, Filter{}, OldToNew)
	got := drain(f)
	assert.Check(t, is.DeepEqual(serials(got), []uint64{a.Serial, b.Serial, c.Serial}))
}

func TestFilterFullScanNewToOld(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a, b, c := r.Allocate(), r.Allocate(), r.Allocate()
	r.Add(context.Background(), a)
	r.Add(context.Background(), b)
	r.Add(context.Background(), c)

	f := NewFilter(r, Filter{}, NewToOld)
	got := drain(f)
	assert.Check(t, is.DeepEqual(serials(got), []uint64{c.Serial, b.Serial, a.Serial}))
}

func TestFilterByConnectionSerial(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	a.ConnectionSerial = 1
	r.Add(context.Background(), a)
	b := r.Allocate()
	b.ConnectionSerial = 2
	r.Add(context.Background(), b)

	conn := uint64(1)
	f := NewFilter(r, Filter{ConnectionSerial: &conn}, OldToNew)
	got := drain(f)
	assert.Check(t, is.Len(got, 1))
	assert.Check(t, is.Equal(got[0].Serial, a.Serial))
}

func TestFilterByIKESPIsTakesPriorityOverConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	a.ConnectionSerial = 1
	a.IKESPIs = SPIPair{Initiator: SPI{1}, Responder: SPI{2}}
	r.Add(context.Background(), a)
	b := r.Allocate()
	b.ConnectionSerial = 1
	b.IKESPIs = SPIPair{Initiator: SPI{3}, Responder: SPI{4}}
	r.Add(context.Background(), b)

	pair := a.IKESPIs
	f := NewFilter(r, Filter{IKESPIs: &pair, ConnectionSerial: &a.ConnectionSerial}, OldToNew)
	got := drain(f)
	assert.Check(t, is.Len(got, 1))
	assert.Check(t, is.Equal(got[0].Serial, a.Serial))
}

func TestFilterIsDeleteSafeDuringIteration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a, b, c := r.Allocate(), r.Allocate(), r.Allocate()
	r.Add(context.Background(), a)
	r.Add(context.Background(), b)
	r.Add(context.Background(), c)

	f := NewFilter(r, Filter{}, OldToNew)
	first, ok := f.Next()
	assert.Assert(t, ok)
	assert.Check(t, is.Equal(first.Serial, a.Serial))

	r.Delete(context.Background(), first)
	r.Delete(context.Background(), b)

	rest := drain(f)
	assert.Check(t, is.DeepEqual(serials(rest), []uint64{b.Serial, c.Serial}),
		"iteration must still visit states deleted mid-scan; it snapshots the bucket up front")
}

func TestFilterPredicateNarrowsFurther(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Allocate()
	a.ShortName = "keep"
	r.Add(context.Background(), a)
	b := r.Allocate()
	b.ShortName = "drop"
	r.Add(context.Background(), b)

	f := NewFilter(r, Filter{Predicate: func(st *State) bool { return st.ShortName == "keep" }}, OldToNew)
	got := drain(f)
	assert.Check(t, is.Len(got, 1))
	assert.Check(t, is.Equal(got[0].Serial, a.Serial))
}
