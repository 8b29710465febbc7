package ssacfg

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/Chulaverse/solidity/evmasm"
)

var dialect = evmasm.DefaultDialect()

func TestBuildStraightLine(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	b0 := gb.AddBlock()
	two := gb.AddLiteral(uint256.NewInt(2))
	v := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v})
	gb.AppendBuiltin(b0, dialect.MustBuiltin("sstore"), []ValueID{two, v}, nil)
	gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)

	p, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	g := p.Main
	if g.NumBlocks() != 1 {
		t.Fatalf("blocks = %d, want 1", g.NumBlocks())
	}
	blk := g.Block(b0)
	if len(blk.Ops) != 3 {
		t.Fatalf("ops = %d, want 3", len(blk.Ops))
	}
	bc, ok := blk.Ops[0].Effect.(BuiltinCall)
	if !ok || bc.Builtin.Name != "callvalue" {
		t.Errorf("op[0] effect = %#v, want callvalue", blk.Ops[0].Effect)
	}
	// A terminal builtin seals the block.
	if _, ok := blk.Exit.(Terminated); !ok {
		t.Errorf("exit = %#v, want Terminated", blk.Exit)
	}
	if got := g.ValueInfo(two).Kind; got != ValueLiteral {
		t.Errorf("literal kind = %s, want literal", got)
	}
	if got := g.ValueInfo(two).Literal.Uint64(); got != 2 {
		t.Errorf("literal = %d, want 2", got)
	}
	if got := g.ValueInfo(v).Block; got != b0 {
		t.Errorf("defining block of v%d = b%d, want b0", v, got)
	}
}

func TestLiteralsDeduplicate(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	a := gb.AddLiteral(uint256.NewInt(7))
	b := gb.AddLiteral(uint256.NewInt(7))
	c := gb.AddLiteral(uint256.NewInt(8))
	if a != b {
		t.Errorf("same literal produced v%d and v%d", a, b)
	}
	if a == c {
		t.Errorf("distinct literals share v%d", a)
	}
}

func TestBuildDiamond(t *testing.T) {
	pb := NewProgramBuilder()
	gb := pb.Main()
	b0 := gb.AddBlock()
	b1 := gb.AddBlock()
	b2 := gb.AddBlock()
	b3 := gb.AddBlock()

	cond := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{cond})
	gb.SealBranch(b0, cond, b1, b2)

	x := gb.AddValue()
	gb.AppendBuiltin(b1, dialect.MustBuiltin("calldatasize"), nil, []ValueID{x})
	gb.SealJump(b1, b3)

	y := gb.AddValue()
	gb.AppendBuiltin(b2, dialect.MustBuiltin("gas"), nil, []ValueID{y})
	gb.SealJump(b2, b3)

	p := gb.AddPhi(b3)
	gb.SetPhiArgs(p, x, y)
	gb.AppendBuiltin(b3, dialect.MustBuiltin("sstore"), []ValueID{p, p}, nil)
	gb.AppendBuiltin(b3, dialect.MustBuiltin("stop"), nil, nil)

	prog, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	g := prog.Main

	// Predecessors follow block scan order.
	if got := g.Predecessors(b3); len(got) != 2 || got[0] != b1 || got[1] != b2 {
		t.Errorf("preds(b3) = %v, want [b1 b2]", got)
	}
	if got := g.Successors(b0); len(got) != 2 || got[0] != b1 || got[1] != b2 {
		t.Errorf("succs(b0) = %v, want [nonzero b1, zero b2]", got)
	}
	if !g.IsPhiOf(p, b3) {
		t.Errorf("v%d is not recognized as a phi of b3", p)
	}
	if args := g.ValueInfo(p).PhiArgs; len(args) != 2 || args[0] != x || args[1] != y {
		t.Errorf("phi args = %v, want [v%d v%d]", args, x, y)
	}
	if e, ok := g.Block(b0).Exit.(CondJump); !ok || e.Cond != cond || e.NonZero != b1 || e.Zero != b2 {
		t.Errorf("exit(b0) = %#v", g.Block(b0).Exit)
	}
}

func TestBuildFunctionAndCall(t *testing.T) {
	pb := NewProgramBuilder()
	sq, fb := pb.AddFunction("square", 1)
	x := fb.AddParam()
	fb0 := fb.AddBlock()
	y := fb.AddValue()
	fb.AppendBuiltin(fb0, dialect.MustBuiltin("mul"), []ValueID{x, x}, []ValueID{y})
	fb.SealReturn(fb0, y)

	gb := pb.Main()
	b0 := gb.AddBlock()
	v := gb.AddValue()
	r := gb.AddValue()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v})
	gb.AppendCall(b0, sq, []ValueID{v}, []ValueID{r})
	gb.AppendBuiltin(b0, dialect.MustBuiltin("sstore"), []ValueID{r, r}, nil)
	gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)

	prog, err := pb.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	fn := prog.Function(sq)
	if fn.Name != "square" || len(fn.Params) != 1 || fn.Returns != 1 {
		t.Errorf("square = %q params %d returns %d", fn.Name, len(fn.Params), fn.Returns)
	}
	if got := prog.Main.Callees(); len(got) != 1 || got[0] != sq {
		t.Errorf("main callees = %v, want [%d]", got, sq)
	}
	call, ok := prog.Main.Block(b0).Ops[1].Effect.(Call)
	if !ok || call.Func != sq {
		t.Errorf("op[1] effect = %#v, want call %d", prog.Main.Block(b0).Ops[1].Effect, sq)
	}
	if e, ok := fn.Block(fb0).Exit.(Return); !ok || len(e.Values) != 1 || e.Values[0] != y {
		t.Errorf("square exit = %#v, want return v%d", fn.Block(fb0).Exit, y)
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func(pb *ProgramBuilder)
		wantErr string
	}{
		{
			name: "no exit",
			build: func(pb *ProgramBuilder) {
				pb.Main().AddBlock()
			},
			wantErr: "block b0 has no exit",
		},
		{
			name: "value never defined",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "value v0 is never defined",
		},
		{
			name: "phi never bound",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				gb.AddPhi(b0)
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "phi v0 has no arguments bound",
		},
		{
			name: "phi arity",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				b1 := gb.AddBlock()
				b2 := gb.AddBlock()
				b3 := gb.AddBlock()
				cond := gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{cond})
				gb.SealBranch(b0, cond, b1, b2)
				gb.SealJump(b1, b3)
				gb.SealJump(b2, b3)
				p := gb.AddPhi(b3)
				gb.SetPhiArgs(p, cond)
				gb.AppendBuiltin(b3, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "phi v1 has 1 arguments for 2 incoming edges",
		},
		{
			name: "phi without incoming edges",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				p := gb.AddPhi(b0)
				gb.SetPhiArgs(p)
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "block b0 has phis but no incoming edges",
		},
		{
			name: "entry unit takes params",
			build: func(pb *ProgramBuilder) {
				pb.Main().AddParam()
			},
			wantErr: "the entry unit takes no parameters",
		},
		{
			name: "entry unit returns",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				gb.SealReturn(b0)
			},
			wantErr: "the entry unit cannot return",
		},
		{
			name: "return arity",
			build: func(pb *ProgramBuilder) {
				_, fb := pb.AddFunction("two", 2)
				x := fb.AddParam()
				b0 := fb.AddBlock()
				fb.SealReturn(b0, x)
				sealMain(pb)
			},
			wantErr: "return carries 1 values, function returns 2",
		},
		{
			name: "defined twice",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				v := gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v})
				gb.AppendBuiltin(b0, dialect.MustBuiltin("gas"), nil, []ValueID{v})
			},
			wantErr: "value v0 defined twice",
		},
		{
			name: "const output not literal",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				v := gb.AddValue()
				gb.AppendConst(b0, []ValueID{v})
			},
			wantErr: "const output v0 is not a literal",
		},
		{
			name: "builtin arity",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				v := gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("add"), []ValueID{v}, nil)
			},
			wantErr: "builtin add takes 2 arguments, got 1",
		},
		{
			name: "sealed twice",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				b1 := gb.AddBlock()
				gb.SealJump(b0, b1)
				gb.SealJump(b0, b1)
			},
			wantErr: "block b0 is already sealed",
		},
		{
			name: "append after terminal",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "block b0 is already sealed",
		},
		{
			name: "call arity",
			build: func(pb *ProgramBuilder) {
				sq, fb := pb.AddFunction("square", 1)
				x := fb.AddParam()
				fb0 := fb.AddBlock()
				fb.SealReturn(fb0, x)

				gb := pb.Main()
				b0 := gb.AddBlock()
				v := gb.AddValue()
				r := gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{v})
				gb.AppendCall(b0, sq, []ValueID{v, v}, []ValueID{r})
				gb.AppendBuiltin(b0, dialect.MustBuiltin("pop"), []ValueID{r}, nil)
				gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "function square takes 1 arguments, got 2",
		},
		{
			name: "use without dominating definition",
			build: func(pb *ProgramBuilder) {
				gb := pb.Main()
				b0 := gb.AddBlock()
				b1 := gb.AddBlock()
				b2 := gb.AddBlock()
				b3 := gb.AddBlock()
				cond := gb.AddValue()
				gb.AppendBuiltin(b0, dialect.MustBuiltin("callvalue"), nil, []ValueID{cond})
				gb.SealBranch(b0, cond, b1, b2)
				w := gb.AddValue()
				gb.AppendBuiltin(b1, dialect.MustBuiltin("calldatasize"), nil, []ValueID{w})
				gb.SealJump(b1, b3)
				gb.SealJump(b2, b3)
				gb.AppendBuiltin(b3, dialect.MustBuiltin("sstore"), []ValueID{cond, w}, nil)
				gb.AppendBuiltin(b3, dialect.MustBuiltin("stop"), nil, nil)
			},
			wantErr: "value v1 is used but not defined on every path from entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := NewProgramBuilder()
			tt.build(pb)
			_, err := pb.Finish()
			if err == nil {
				t.Fatalf("finish succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

// sealMain gives the entry unit a trivial body so that Finish reports
// the error under test rather than the missing main.
func sealMain(pb *ProgramBuilder) {
	gb := pb.Main()
	b0 := gb.AddBlock()
	gb.AppendBuiltin(b0, dialect.MustBuiltin("stop"), nil, nil)
}
