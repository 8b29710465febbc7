package ssacfg

import "sort"

// ValueSet is a set of SSA values. Live sets only ever contain ordinary
// and phi values: literals are rematerialized on demand and unreachable
// values never exist at run time.
type ValueSet map[ValueID]struct{}

// NewValueSet returns a set holding the given values.
func NewValueSet(vs ...ValueID) ValueSet {
	s := make(ValueSet, len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether v is in the set.
func (s ValueSet) Contains(v ValueID) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v into the set.
func (s ValueSet) Add(v ValueID) {
	s[v] = struct{}{}
}

// Sorted returns the members in ascending order.
func (s ValueSet) Sorted() []ValueID {
	out := make([]ValueID, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s ValueSet) clone() ValueSet {
	out := make(ValueSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

func (s ValueSet) equal(o ValueSet) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if !o.Contains(v) {
			return false
		}
	}
	return true
}

// Liveness answers, for one graph, which values are live at each block
// entry and after each operation. A phi result counts as defined at the
// entry of its block; on an incoming edge the corresponding argument is
// live in the predecessor instead of the result. Sets are computed once
// by a backward fixpoint over the graph.
type Liveness struct {
	g      *Graph
	liveIn []ValueSet
	opLive [][]ValueSet
}

// NewLiveness computes liveness for g.
func NewLiveness(g *Graph) *Liveness {
	l := &Liveness{g: g, liveIn: make([]ValueSet, g.NumBlocks())}
	for b := range l.liveIn {
		l.liveIn[b] = ValueSet{}
	}
	for changed := true; changed; {
		changed = false
		for b := g.NumBlocks() - 1; b >= 0; b-- {
			in := l.blockLiveIn(BlockID(b))
			if !in.equal(l.liveIn[b]) {
				l.liveIn[b] = in
				changed = true
			}
		}
	}
	l.opLive = make([][]ValueSet, g.NumBlocks())
	for b := range l.opLive {
		l.opLive[b] = l.opsLiveOut(BlockID(b))
	}
	return l
}

// BlockLiveIn returns the values that must be available when b is
// entered, including live phi results defined by b itself.
func (l *Liveness) BlockLiveIn(b BlockID) ValueSet {
	if b < 0 || int(b) >= len(l.liveIn) {
		fault("block b%d out of range", b)
	}
	return l.liveIn[b]
}

// OperationsLiveOut returns one set per operation of b, in operation
// order: the values live immediately after that operation executes.
func (l *Liveness) OperationsLiveOut(b BlockID) []ValueSet {
	if b < 0 || int(b) >= len(l.opLive) {
		fault("block b%d out of range", b)
	}
	return l.opLive[b]
}

func (l *Liveness) addTracked(s ValueSet, v ValueID) {
	switch l.g.ValueInfo(v).Kind {
	case ValueOrdinary, ValuePhi:
		s.Add(v)
	}
}

// liveExit returns the values live immediately after the last operation
// of b: everything its successors need on their incoming edges, plus
// what the exit itself consumes.
func (l *Liveness) liveExit(b BlockID) ValueSet {
	live := ValueSet{}
	for _, s := range l.g.Successors(b) {
		for v := range l.liveIn[s] {
			if !l.g.IsPhiOf(v, s) {
				live.Add(v)
			}
		}
		preds := l.g.Predecessors(s)
		for _, p := range l.g.Block(s).Phis {
			args := l.g.ValueInfo(p).PhiArgs
			for k := range preds {
				if preds[k] == b && l.liveIn[s].Contains(p) {
					l.addTracked(live, args[k])
				}
			}
		}
	}
	switch e := l.g.Block(b).Exit.(type) {
	case CondJump:
		l.addTracked(live, e.Cond)
	case Return:
		for _, v := range e.Values {
			l.addTracked(live, v)
		}
	}
	return live
}

func (l *Liveness) transfer(live ValueSet, op *Operation) ValueSet {
	out := live.clone()
	for _, o := range op.Out {
		delete(out, o)
	}
	for _, in := range op.In {
		l.addTracked(out, in)
	}
	return out
}

func (l *Liveness) blockLiveIn(b BlockID) ValueSet {
	live := l.liveExit(b)
	ops := l.g.Block(b).Ops
	for i := len(ops) - 1; i >= 0; i-- {
		live = l.transfer(live, &ops[i])
	}
	return live
}

func (l *Liveness) opsLiveOut(b BlockID) []ValueSet {
	ops := l.g.Block(b).Ops
	sets := make([]ValueSet, len(ops))
	live := l.liveExit(b)
	for i := len(ops) - 1; i >= 0; i-- {
		sets[i] = live
		live = l.transfer(live, &ops[i])
	}
	return sets
}
