package ssacfg

import (
	"testing"

	"github.com/holiman/uint256"
)

func sortedIDs(s ValueSet) []ValueID {
	return s.Sorted()
}

func sameIDs(got []ValueID, want ...ValueID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestValueSet(t *testing.T) {
	s := NewValueSet(3, 1)
	s.Add(2)
	s.Add(1)
	if !s.Contains(1) || !s.Contains(2) || !s.Contains(3) {
		t.Errorf("set misses members: %v", s.Sorted())
	}
	if s.Contains(4) {
		t.Error("set contains 4")
	}
	if got := s.Sorted(); !sameIDs(got, 1, 2, 3) {
		t.Errorf("sorted = %v, want [1 2 3]", got)
	}
}

func TestLivenessStraightLine(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	b0 := gb.AddBlock()
	zero := gb.AddLiteral(uint256.NewInt(0))
	v := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v})
	gb.AppendBuiltin(b0, dialect.MustBuiltin("sstore"), []ValueID{zero, v}, nil)
	gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
	p, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	live := NewLiveness(p.Main)
	if got := sortedIDs(live.BlockLiveIn(b0)); !sameIDs(got) {
		t.Errorf("live-in = %v, want empty", got)
	}
	out := live.OperationsLiveOut(b0)
	if len(out) != 3 {
		t.Fatalf("live-out sets = %d, want 3", len(out))
	}
	// Only v survives its definition; literals are not tracked.
	if got := sortedIDs(out[0]); !sameIDs(got, v) {
		t.Errorf("after callvalue: %v, want [v%d]", got, v)
	}
	if got := sortedIDs(out[1]); !sameIDs(got) {
		t.Errorf("after sstore: %v, want empty", got)
	}
	if got := sortedIDs(out[2]); !sameIDs(got) {
		t.Errorf("after stop: %v, want empty", got)
	}
}

func TestLivenessDiamondPhi(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	b0 := gb.AddBlock()
	b1 := gb.AddBlock()
	b2 := gb.AddBlock()
	b3 := gb.AddBlock()

	cond := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{cond})
	x := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("calldatasize"), nil, []ValueID{x})
	gb.SealBranch(b0, cond, b1, b2)
	gb.SealJump(b1, b3)
	gb.SealJump(b2, b3)

	p := gb.AddPhi(b3)
	gb.SetPhiArgs(p, x, cond)
	gb.AppendBuiltin(b3, dialect.MustBuiltin("sstore"), []ValueID{p, p}, nil)
	gb.AppendBuiltin(b3, dialect.MustBuiltin("stop"), nil, nil)

	prog, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	live := NewLiveness(prog.Main)

	// Each edge into the join keeps only its own phi argument alive.
	if got := sortedIDs(live.BlockLiveIn(b1)); !sameIDs(got, x) {
		t.Errorf("live-in(b1) = %v, want [v%d]", got, x)
	}
	if got := sortedIDs(live.BlockLiveIn(b2)); !sameIDs(got, cond) {
		t.Errorf("live-in(b2) = %v, want [v%d]", got, cond)
	}
	// The phi result itself is live at its block's entry.
	if got := sortedIDs(live.BlockLiveIn(b3)); !sameIDs(got, p) {
		t.Errorf("live-in(b3) = %v, want [v%d]", got, p)
	}
	if got := sortedIDs(live.BlockLiveIn(b0)); !sameIDs(got) {
		t.Errorf("live-in(b0) = %v, want empty", got)
	}
	// After the branch decides, both arguments are still needed in b0.
	out := live.OperationsLiveOut(b0)
	if got := sortedIDs(out[1]); !sameIDs(got, cond, x) {
		t.Errorf("after calldatasize: %v, want [v%d v%d]", got, cond, x)
	}
}

func TestLivenessLoop(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	b0 := gb.AddBlock()
	b1 := gb.AddBlock()
	b2 := gb.AddBlock()
	b3 := gb.AddBlock()

	one := gb.AddLiteral(uint256.NewInt(1))
	zero := gb.AddLiteral(uint256.NewInt(0))

	v0 := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v0})
	gb.SealJump(b0, b1)

	i := gb.AddPhi(b1)
	gb.SealBranch(b1, i, b2, b3)

	next := gb.AddValue()
	gb.AppendBuiltin(b2, dialect.MustBuiltin("add"), []ValueID{i, one}, []ValueID{next})
	gb.SealJump(b2, b1)

	gb.SetPhiArgs(i, v0, next)

	gb.AppendBuiltin(b3, dialect.MustBuiltin("sstore"), []ValueID{zero, i}, nil)
	gb.AppendBuiltin(b3, dialect.MustBuiltin("stop"), nil, nil)

	prog, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	live := NewLiveness(prog.Main)

	// The back edge keeps the induction value alive around the loop.
	if got := sortedIDs(live.BlockLiveIn(b1)); !sameIDs(got, i) {
		t.Errorf("live-in(b1) = %v, want [v%d]", got, i)
	}
	if got := sortedIDs(live.BlockLiveIn(b2)); !sameIDs(got, i) {
		t.Errorf("live-in(b2) = %v, want [v%d]", got, i)
	}
	if got := sortedIDs(live.BlockLiveIn(b3)); !sameIDs(got, i) {
		t.Errorf("live-in(b3) = %v, want [v%d]", got, i)
	}
	if got := sortedIDs(live.BlockLiveIn(b0)); !sameIDs(got) {
		t.Errorf("live-in(b0) = %v, want empty", got)
	}
	out := live.OperationsLiveOut(b2)
	if got := sortedIDs(out[0]); !sameIDs(got, next) {
		t.Errorf("after add: %v, want [v%d]", got, next)
	}
}

func TestLivenessFunctionParams(t *testing.T) {
	pb := NewProgramBuilder()
	_, fb := pb.AddFunction("square", 1)
	x := fb.AddParam()
	b0 := fb.AddBlock()
	y := fb.AddValue()
	fb.AppendBuiltin(b0, dialect.MustBuiltin("mul"), []ValueID{x, x}, []ValueID{y})
	fb.SealReturn(b0, y)
	sealMain(pb)

	prog, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	g := prog.Function(0)
	live := NewLiveness(g)
	if got := sortedIDs(live.BlockLiveIn(b0)); !sameIDs(got, x) {
		t.Errorf("live-in = %v, want [v%d]", got, x)
	}
	out := live.OperationsLiveOut(b0)
	if got := sortedIDs(out[0]); !sameIDs(got, y) {
		t.Errorf("after mul: %v, want [v%d]", got, y)
	}
}
