package state

// Direction selects which way a Filter walks the serial arena, per
// spec.md §4.4's "bidirectional" requirement.
type Direction int

const (
	OldToNew Direction = iota
	NewToOld
)

// Filter is a delete-safe iterator over a subset of the registry,
// grounded on filter_head/next_state in state_db.c. The bucket it walks
// is chosen once, at NewFilter time, by priority: an exact IKESPIs pair
// beats a single state's by-connection bucket, which beats a bare
// ConnectionSerial's by-connection bucket, which beats a full scan of
// every live state. Whichever bucket is chosen, every visited state is
// still re-checked against Plausible and any extra Predicate, since a
// hash bucket can (and usually does) hold unrelated collisions.
type Filter struct {
	IKESPIs          *SPIPair
	IKE              *State // narrows to this state's own connection bucket
	ConnectionSerial *uint64
	Plausible        *Plausible
	Predicate        func(*State) bool

	dir  Direction
	r    *Registry
	todo []*State // snapshot of the chosen bucket, in iteration order
	pos  int
}

// NewFilter builds an iterator over r using f's selection fields and
// walks it in the given direction. The bucket is snapshotted at call
// time so that deleting the current or an already-visited state mid
// -iteration never skips or repeats a still-pending one, per spec.md
// §4.4's delete-safety requirement (next_state's look-ahead save of the
// next pointer before yielding, here replaced by a full up-front copy
// since Go's container/list does not expose raw bucket arrays for
// direct iteration once an element may be removed concurrently).
func NewFilter(r *Registry, f Filter, dir Direction) *Filter {
	f.dir = dir
	f.r = r

	switch {
	case f.IKESPIs != nil:
		f.todo = r.BySPIPair(*f.IKESPIs, f.Plausible)
	case f.IKE != nil:
		f.todo = r.ByConnection(f.IKE.ConnectionSerial, f.Plausible)
	case f.ConnectionSerial != nil:
		f.todo = r.ByConnection(*f.ConnectionSerial, f.Plausible)
	default:
		f.todo = r.Snapshot()
		f.todo = filterSlice(f.todo, f.Plausible)
	}

	if f.Predicate != nil {
		f.todo = filterPredicate(f.todo, f.Predicate)
	}

	if dir == NewToOld {
		reverse(f.todo)
	}
	return &f
}

func filterSlice(in []*State, p *Plausible) []*State {
	if p == nil {
		return in
	}
	out := in[:0:0]
	for _, st := range in {
		if p.matches(st) {
			out = append(out, st)
		}
	}
	return out
}

func filterPredicate(in []*State, pred func(*State) bool) []*State {
	out := in[:0:0]
	for _, st := range in {
		if pred(st) {
			out = append(out, st)
		}
	}
	return out
}

func reverse(s []*State) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Next returns the next state in the iteration, or (nil, false) once
// exhausted. It is safe to call Registry.Delete on the state Next just
// returned before calling Next again.
func (f *Filter) Next() (*State, bool) {
	if f.pos >= len(f.todo) {
		return nil, false
	}
	st := f.todo[f.pos]
	f.pos++
	return st, true
}
