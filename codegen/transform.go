package codegen

import (
	"log/slog"

	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

// blockState is what generation knows about one block: its label, once
// allocated, and the stack layout control flow must arrive with, fixed
// by the first predecessor that reaches the block.
type blockState struct {
	label     evmasm.LabelID
	stackIn   []stackSlot
	hasLayout bool
}

// transform generates code for a single unit, walking its blocks in
// reverse postorder and tracking a model of the operand stack across
// every instruction it appends.
type transform struct {
	asm     evmasm.Assembly
	dialect *evmasm.Dialect
	graph   *ssacfg.Graph
	live    LivenessOracle
	funcs   *functionLabels

	blocks []blockState
	stack  []stackSlot

	currentBlock ssacfg.BlockID
	currentOp    int // -1 while handling the exit
	reported     bool
	errs         []StackTooDeepError
}

func newTransform(asm evmasm.Assembly, g *ssacfg.Graph, live LivenessOracle, d *evmasm.Dialect, funcs *functionLabels) *transform {
	t := &transform{
		asm:       asm,
		dialect:   d,
		graph:     g,
		live:      live,
		funcs:     funcs,
		blocks:    make([]blockState, g.NumBlocks()),
		currentOp: -1,
	}
	for i := range t.blocks {
		t.blocks[i].label = evmasm.NoLabel
	}
	return t
}

func (t *transform) unitName() string {
	if t.graph.Name == "" {
		return "main"
	}
	return t.graph.Name
}

// run generates the whole unit. The entry block starts from the given
// layout; entryLabel is its label when one was allocated up front, as
// for function entries.
func (t *transform) run(entryLabel evmasm.LabelID, entryStack []stackSlot) {
	entry := &t.blocks[ssacfg.EntryBlock]
	entry.label = entryLabel
	entry.stackIn = entryStack
	entry.hasLayout = true
	order := reversePostorder(t.graph)
	for i, b := range order {
		next := ssacfg.BlockID(-1)
		if i+1 < len(order) {
			next = order[i+1]
		}
		t.visitBlock(b, next)
	}
}

// blockLabel returns the label of b, allocating one on first use.
func (t *transform) blockLabel(b ssacfg.BlockID) evmasm.LabelID {
	bs := &t.blocks[b]
	if bs.label == evmasm.NoLabel {
		bs.label = t.asm.NewLabel()
	}
	return bs.label
}

func (t *transform) visitBlock(b, next ssacfg.BlockID) {
	bs := &t.blocks[b]
	if !bs.hasLayout {
		fault("no starting layout for block b%d", b)
	}
	t.currentBlock = b
	t.currentOp = -1
	t.reported = false
	t.asm.AppendLabel(t.blockLabel(b))
	t.stack = append(t.stack[:0:0], bs.stackIn...)
	t.asm.SetStackHeight(len(t.stack))
	slog.Debug("generate block",
		"unit", t.unitName(),
		"block", int(b),
		"stack", stackString(t.graph, t.stack))

	blk := t.graph.Block(b)
	liveOuts := t.live.OperationsLiveOut(b)
	if len(liveOuts) != len(blk.Ops) {
		fault("block b%d has %d operations but %d liveness records", b, len(blk.Ops), len(liveOuts))
	}
	for i := range blk.Ops {
		t.currentOp = i
		t.reported = false
		t.emitOperation(&blk.Ops[i], liveOuts[i])
	}
	t.currentOp = -1
	t.reported = false
	t.emitExit(blk, next)
}

// slotFor maps a value to its stack slot form; provably unobservable
// values travel as junk.
func (t *transform) slotFor(v ssacfg.ValueID) stackSlot {
	if t.graph.ValueInfo(v).Kind == ssacfg.ValueUnreachable {
		return junkSlot()
	}
	return valueSlot(v)
}

func (t *transform) emitOperation(op *ssacfg.Operation, liveOut ssacfg.ValueSet) {
	switch e := op.Effect.(type) {
	case ssacfg.BuiltinCall:
		// Operands sit on top with the first input topmost.
		group := make([]stackSlot, len(op.In))
		for i, in := range op.In {
			group[len(op.In)-1-i] = t.slotFor(in)
		}
		t.createStackTop(group, liveOut, !e.Builtin.Terminal)
		t.assertGroupOnTop(group)
		t.asm.AppendInstruction(e.Builtin.Op)
		t.stack = t.stack[:len(t.stack)-len(op.In)]
		for _, out := range op.Out {
			t.stack = append(t.stack, valueSlot(out))
		}
	case ssacfg.Call:
		// The callee finds its return address below the arguments, with
		// the last argument on top.
		ret := t.asm.NewLabel()
		group := make([]stackSlot, 0, len(op.In)+1)
		group = append(group, labelSlot(ret))
		for _, in := range op.In {
			group = append(group, t.slotFor(in))
		}
		t.createStackTop(group, liveOut, true)
		t.assertGroupOnTop(group)
		t.asm.AppendJump(t.funcs.entryOf(e.Func))
		t.stack = t.stack[:len(t.stack)-len(group)]
		for _, out := range op.Out {
			t.stack = append(t.stack, valueSlot(out))
		}
		t.asm.AppendLabel(ret)
		t.asm.SetStackHeight(len(t.stack))
	case ssacfg.Const:
		// Pin the literals to fresh slots so later uses can dup them
		// instead of re-pushing.
		for _, out := range op.Out {
			t.pushSlot(valueSlot(out))
		}
	default:
		fault("unknown effect %T", op.Effect)
	}
}

// assertGroupOnTop checks the arranged operand group. Once a shortfall
// has been recorded the arrangement is best effort and unchecked.
func (t *transform) assertGroupOnTop(group []stackSlot) {
	if len(t.errs) > 0 {
		return
	}
	base := len(t.stack) - len(group)
	if base < 0 {
		fault("stack of %d cannot hold %d operands", len(t.stack), len(group))
	}
	for i, want := range group {
		got := t.stack[base+i]
		if got != want && got.kind != slotJunk && want.kind != slotJunk {
			fault("operand %d is %s, want %s", i, slotString(t.graph, got), slotString(t.graph, want))
		}
	}
}

func (t *transform) emitExit(blk *ssacfg.Block, next ssacfg.BlockID) {
	switch e := blk.Exit.(type) {
	case ssacfg.Jump:
		t.adaptAndJump(t.leaveLayout(e.To, 0), e.To, next)
	case ssacfg.CondJump:
		t.emitCondJump(e, next)
	case ssacfg.Return:
		// Results in order with the return address on top, then an
		// indirect jump through it.
		target := make([]stackSlot, 0, len(e.Values)+1)
		for _, v := range e.Values {
			target = append(target, t.slotFor(v))
		}
		target = append(target, retAddrSlot())
		t.createExactStack(target)
		t.asm.AppendInstruction(evmasm.JUMP)
		t.stack = t.stack[:len(t.stack)-1]
	case ssacfg.Terminated:
		// The terminal operation already ended this code path.
	default:
		fault("unknown exit %T", blk.Exit)
	}
}

func (t *transform) emitCondJump(e ssacfg.CondJump, next ssacfg.BlockID) {
	nz := t.leaveLayout(e.NonZero, 0)
	zeroNth := 0
	if e.Zero == e.NonZero {
		zeroNth = 1
	}
	z := t.leaveLayout(e.Zero, zeroNth)
	cond := t.slotFor(e.Cond)

	if t.coveredBy(z, nz) {
		// Arranging the taken edge's layout under the condition leaves
		// everything the fallthrough edge needs in place.
		target := append(append([]stackSlot(nil), nz...), cond)
		t.createExactStack(target)
		t.asm.AppendCondJump(t.blockLabel(e.NonZero))
		t.stack = t.stack[:len(t.stack)-1]
		t.adaptAndJump(z, e.Zero, next)
		return
	}

	// The fallthrough edge needs values the taken layout drops, so the
	// taken edge adapts behind a trampoline of its own.
	protect := slotValues(t.graph, nz)
	for v := range slotValues(t.graph, z) {
		protect.Add(v)
	}
	t.createStackTop([]stackSlot{cond}, protect, true)
	shim := t.asm.NewLabel()
	t.asm.AppendCondJump(shim)
	t.stack = t.stack[:len(t.stack)-1]
	snapshot := append([]stackSlot(nil), t.stack...)

	t.createExactStack(z)
	t.asm.AppendJump(t.blockLabel(e.Zero))

	t.asm.AppendLabel(shim)
	t.stack = snapshot
	t.asm.SetStackHeight(len(t.stack))
	t.createExactStack(nz)
	t.asm.AppendJump(t.blockLabel(e.NonZero))
}

func (t *transform) adaptAndJump(layout []stackSlot, to, next ssacfg.BlockID) {
	t.createExactStack(layout)
	if to != next {
		t.asm.AppendJump(t.blockLabel(to))
	}
}

// coveredBy reports whether every tracked value of layout a is present
// somewhere in layout b, so that adapting to b loses nothing a needs.
func (t *transform) coveredBy(a, b []stackSlot) bool {
	have := slotValues(t.graph, b)
	for v := range slotValues(t.graph, a) {
		if !have.Contains(v) {
			return false
		}
	}
	return true
}

// leaveLayout returns the entry layout of to with this edge's phi
// arguments substituted for the phi slots, sealing the layout first if
// this edge is the first to reach the block. nth distinguishes the two
// edges of a branch whose arms coincide.
func (t *transform) leaveLayout(to ssacfg.BlockID, nth int) []stackSlot {
	in := t.entryLayout(to)
	edge := t.predIndex(to, nth)
	out := make([]stackSlot, len(in))
	for i, s := range in {
		if s.kind == slotValue && t.graph.IsPhiOf(s.value, to) {
			out[i] = t.slotFor(t.graph.ValueInfo(s.value).PhiArgs[edge])
		} else {
			out[i] = s
		}
	}
	return out
}

func (t *transform) entryLayout(to ssacfg.BlockID) []stackSlot {
	bs := &t.blocks[to]
	if !bs.hasLayout {
		bs.stackIn = t.sealEntryLayout(to)
		bs.hasLayout = true
	}
	return bs.stackIn
}

// sealEntryLayout fixes the layout to is entered with, chosen so the
// first predecessor to arrive can produce it cheaply: every slot it
// must keep, in current stack order, topped by the live phi results of
// the target.
func (t *transform) sealEntryLayout(to ssacfg.BlockID) []stackSlot {
	liveIn := t.live.BlockLiveIn(to)
	var layout []stackSlot
	kept := make(map[stackSlot]bool)
	for _, s := range t.stack {
		switch s.kind {
		case slotLabel, slotRetAddr, slotJunk:
			layout = append(layout, s)
		case slotValue:
			if liveIn.Contains(s.value) && !kept[s] {
				kept[s] = true
				layout = append(layout, s)
			}
		}
	}
	for _, p := range t.graph.Block(to).Phis {
		if liveIn.Contains(p) {
			layout = append(layout, valueSlot(p))
		}
	}
	return layout
}

// predIndex returns the position of the nth edge from the current block
// in the predecessor list of to, which is also the phi argument index
// for that edge.
func (t *transform) predIndex(to ssacfg.BlockID, nth int) int {
	seen := 0
	for i, p := range t.graph.Predecessors(to) {
		if p == t.currentBlock {
			if seen == nth {
				return i
			}
			seen++
		}
	}
	fault("no edge from b%d to b%d", t.currentBlock, to)
	return -1
}

// reversePostorder returns the blocks reachable from the entry, each
// before any block it dominates. Blocks no edge reaches are skipped.
func reversePostorder(g *ssacfg.Graph) []ssacfg.BlockID {
	order := make([]ssacfg.BlockID, 0, g.NumBlocks())
	seen := make([]bool, g.NumBlocks())
	var walk func(b ssacfg.BlockID)
	walk = func(b ssacfg.BlockID) {
		seen[b] = true
		for _, s := range g.Successors(b) {
			if !seen[s] {
				walk(s)
			}
		}
		order = append(order, b)
	}
	walk(ssacfg.EntryBlock)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
