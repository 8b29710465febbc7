package ssacfg

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Chulaverse/solidity/evmasm"
)

// ProgramBuilder assembles a validated Program from one entry unit and
// any number of functions. Functions are declared with their signature
// up front so call sites can reference a function before its body is
// complete.
type ProgramBuilder struct {
	main  *GraphBuilder
	funcs []*GraphBuilder
}

// NewProgramBuilder returns a builder holding an empty entry unit.
func NewProgramBuilder() *ProgramBuilder {
	pb := &ProgramBuilder{}
	pb.main = newGraphBuilder(pb, "", 0, InvalidFunc)
	return pb
}

// Main returns the builder of the entry unit.
func (pb *ProgramBuilder) Main() *GraphBuilder {
	return pb.main
}

// AddFunction declares a function with its name and return count and
// returns its id together with the builder for its body. Parameters
// are added to the returned builder with AddParam.
func (pb *ProgramBuilder) AddFunction(name string, returns int) (FuncID, *GraphBuilder) {
	id := FuncID(len(pb.funcs))
	gb := newGraphBuilder(pb, name, returns, id)
	if name == "" {
		gb.errorf("function %d has no name", id)
	}
	if returns < 0 {
		gb.errorf("negative return count %d", returns)
	}
	pb.funcs = append(pb.funcs, gb)
	return id, gb
}

// Finish validates every unit and returns the assembled program. The
// first validation failure is reported with its unit named.
func (pb *ProgramBuilder) Finish() (*Program, error) {
	all := append([]*GraphBuilder{pb.main}, pb.funcs...)
	for _, gb := range all {
		if err := gb.finish(); err != nil {
			return nil, fmt.Errorf("%s: %w", gb.unitName(), err)
		}
	}
	prog := &Program{Main: pb.main.g}
	for _, gb := range pb.funcs {
		prog.Functions = append(prog.Functions, gb.g)
	}
	return prog, nil
}

// GraphBuilder assembles one unit graph. Validation failures accumulate
// and surface from Finish; every entity-creating method keeps returning
// usable ids so call sites stay linear.
type GraphBuilder struct {
	pb   *ProgramBuilder
	self FuncID
	g    *Graph

	defined  []bool // per value: has a defining site
	phiBound []bool // per value: phi arguments bound
	literals map[uint256.Int]ValueID
	unreach  ValueID
	callees  map[FuncID]bool
	errs     []error
}

func newGraphBuilder(pb *ProgramBuilder, name string, returns int, self FuncID) *GraphBuilder {
	return &GraphBuilder{
		pb:   pb,
		self: self,
		g: &Graph{
			Name:    name,
			Returns: returns,
		},
		literals: make(map[uint256.Int]ValueID),
		unreach:  InvalidValue,
		callees:  make(map[FuncID]bool),
	}
}

func (gb *GraphBuilder) isMain() bool {
	return gb.self == InvalidFunc
}

func (gb *GraphBuilder) unitName() string {
	if gb.isMain() {
		return "main"
	}
	return "function " + gb.g.Name
}

// SetAstID records the debug origin id of the unit.
func (gb *GraphBuilder) SetAstID(id int64) {
	gb.g.AstID = id
}

func (gb *GraphBuilder) errorf(format string, args ...any) {
	gb.errs = append(gb.errs, fmt.Errorf(format, args...))
}

func (gb *GraphBuilder) newValue(info ValueInfo, defined bool) ValueID {
	v := ValueID(len(gb.g.values))
	gb.g.values = append(gb.g.values, info)
	gb.defined = append(gb.defined, defined)
	gb.phiBound = append(gb.phiBound, false)
	return v
}

// AddParam declares the next parameter of a function unit.
func (gb *GraphBuilder) AddParam() ValueID {
	if gb.isMain() {
		gb.errorf("the entry unit takes no parameters")
	}
	v := gb.newValue(ValueInfo{Kind: ValueOrdinary, Block: EntryBlock}, true)
	gb.g.Params = append(gb.g.Params, v)
	return v
}

// AddLiteral declares a constant value. Equal constants share one id.
func (gb *GraphBuilder) AddLiteral(val *uint256.Int) ValueID {
	if v, ok := gb.literals[*val]; ok {
		return v
	}
	v := gb.newValue(ValueInfo{Kind: ValueLiteral, Literal: *val}, true)
	gb.literals[*val] = v
	return v
}

// AddUnreachable declares the unit's unreachable value, shared across
// all uses.
func (gb *GraphBuilder) AddUnreachable() ValueID {
	if gb.unreach == InvalidValue {
		gb.unreach = gb.newValue(ValueInfo{Kind: ValueUnreachable}, true)
	}
	return gb.unreach
}

// AddValue declares an ordinary value that a later operation defines as
// one of its outputs.
func (gb *GraphBuilder) AddValue() ValueID {
	return gb.newValue(ValueInfo{Kind: ValueOrdinary}, false)
}

// AddBlock appends an empty block. The first block added is the entry.
func (gb *GraphBuilder) AddBlock() BlockID {
	gb.g.blocks = append(gb.g.blocks, Block{})
	return BlockID(len(gb.g.blocks) - 1)
}

// AddPhi declares a phi value at the entry of b. Its per-edge arguments
// are bound later with SetPhiArgs.
func (gb *GraphBuilder) AddPhi(b BlockID) ValueID {
	if !gb.checkBlock(b) {
		return InvalidValue
	}
	v := gb.newValue(ValueInfo{Kind: ValuePhi, Block: b}, true)
	gb.g.blocks[b].Phis = append(gb.g.blocks[b].Phis, v)
	return v
}

// SetPhiArgs binds one argument per incoming edge of the phi's block,
// in predecessor order.
func (gb *GraphBuilder) SetPhiArgs(p ValueID, args ...ValueID) {
	if !gb.checkValues(args) || !gb.checkValue(p) {
		return
	}
	if gb.g.values[p].Kind != ValuePhi {
		gb.errorf("value v%d is not a phi", p)
		return
	}
	if gb.phiBound[p] {
		gb.errorf("phi v%d bound twice", p)
		return
	}
	gb.phiBound[p] = true
	gb.g.values[p].PhiArgs = append([]ValueID(nil), args...)
}

func (gb *GraphBuilder) checkBlock(b BlockID) bool {
	if b < 0 || int(b) >= len(gb.g.blocks) {
		gb.errorf("block b%d out of range", b)
		return false
	}
	return true
}

func (gb *GraphBuilder) checkValue(v ValueID) bool {
	if v < 0 || int(v) >= len(gb.g.values) {
		gb.errorf("value v%d out of range", v)
		return false
	}
	return true
}

func (gb *GraphBuilder) checkValues(vs []ValueID) bool {
	for _, v := range vs {
		if !gb.checkValue(v) {
			return false
		}
	}
	return true
}

// checkOpen reports whether b exists and is still unsealed.
func (gb *GraphBuilder) checkOpen(b BlockID) bool {
	if !gb.checkBlock(b) {
		return false
	}
	if gb.g.blocks[b].Exit != nil {
		gb.errorf("block b%d is already sealed", b)
		return false
	}
	return true
}

// defineOuts marks outs as defined by an operation in block b.
func (gb *GraphBuilder) defineOuts(b BlockID, outs []ValueID) bool {
	for _, o := range outs {
		if gb.g.values[o].Kind != ValueOrdinary {
			gb.errorf("%s value v%d cannot be an operation output", gb.g.values[o].Kind, o)
			return false
		}
		if gb.defined[o] {
			gb.errorf("value v%d defined twice", o)
			return false
		}
	}
	for _, o := range outs {
		gb.defined[o] = true
		gb.g.values[o].Block = b
	}
	return true
}

func (gb *GraphBuilder) appendOp(b BlockID, op Operation) {
	gb.g.blocks[b].Ops = append(gb.g.blocks[b].Ops, op)
}

// AppendBuiltin appends a builtin call. A terminal builtin seals the
// block with Terminated.
func (gb *GraphBuilder) AppendBuiltin(b BlockID, builtin *evmasm.Builtin, ins, outs []ValueID) {
	if builtin == nil {
		fault("nil builtin")
	}
	if !gb.checkOpen(b) || !gb.checkValues(ins) || !gb.checkValues(outs) {
		return
	}
	if len(ins) != builtin.Args {
		gb.errorf("builtin %s takes %d arguments, got %d", builtin.Name, builtin.Args, len(ins))
		return
	}
	if len(outs) != builtin.Rets {
		gb.errorf("builtin %s returns %d values, got %d outputs", builtin.Name, builtin.Rets, len(outs))
		return
	}
	if !gb.defineOuts(b, outs) {
		return
	}
	gb.appendOp(b, Operation{
		In:     append([]ValueID(nil), ins...),
		Out:    append([]ValueID(nil), outs...),
		Effect: BuiltinCall{Builtin: builtin},
	})
	if builtin.Terminal {
		gb.g.blocks[b].Exit = Terminated{}
	}
}

// AppendCall appends a call to a declared function of the program.
func (gb *GraphBuilder) AppendCall(b BlockID, fn FuncID, ins, outs []ValueID) {
	if !gb.checkOpen(b) || !gb.checkValues(ins) || !gb.checkValues(outs) {
		return
	}
	if fn < 0 || int(fn) >= len(gb.pb.funcs) {
		gb.errorf("call to undeclared function %d", fn)
		return
	}
	callee := gb.pb.funcs[fn]
	if len(outs) != callee.g.Returns {
		gb.errorf("function %s returns %d values, got %d outputs", callee.g.Name, callee.g.Returns, len(outs))
		return
	}
	if !gb.defineOuts(b, outs) {
		return
	}
	gb.appendOp(b, Operation{
		In:     append([]ValueID(nil), ins...),
		Out:    append([]ValueID(nil), outs...),
		Effect: Call{Func: fn},
	})
	if !gb.callees[fn] {
		gb.callees[fn] = true
		gb.g.callees = append(gb.g.callees, fn)
	}
}

// AppendConst appends an operation that pins the given literal values
// to fresh stack slots at this point.
func (gb *GraphBuilder) AppendConst(b BlockID, outs []ValueID) {
	if !gb.checkOpen(b) || !gb.checkValues(outs) {
		return
	}
	if len(outs) == 0 {
		gb.errorf("const operation needs at least one output")
		return
	}
	for _, o := range outs {
		if gb.g.values[o].Kind != ValueLiteral {
			gb.errorf("const output v%d is not a literal", o)
			return
		}
	}
	gb.appendOp(b, Operation{
		Out:    append([]ValueID(nil), outs...),
		Effect: Const{},
	})
}

func (gb *GraphBuilder) seal(b BlockID, e Exit) {
	if !gb.checkOpen(b) {
		return
	}
	gb.g.blocks[b].Exit = e
}

// SealJump ends b with an unconditional jump.
func (gb *GraphBuilder) SealJump(b, to BlockID) {
	if !gb.checkBlock(to) {
		return
	}
	gb.seal(b, Jump{To: to})
}

// SealBranch ends b with a conditional jump on cond.
func (gb *GraphBuilder) SealBranch(b BlockID, cond ValueID, nonZero, zero BlockID) {
	if !gb.checkValue(cond) || !gb.checkBlock(nonZero) || !gb.checkBlock(zero) {
		return
	}
	gb.seal(b, CondJump{Cond: cond, NonZero: nonZero, Zero: zero})
}

// SealReturn ends b by returning from the enclosing function.
func (gb *GraphBuilder) SealReturn(b BlockID, values ...ValueID) {
	if gb.isMain() {
		gb.errorf("the entry unit cannot return")
		return
	}
	if !gb.checkValues(values) {
		return
	}
	if len(values) != gb.g.Returns {
		gb.errorf("return carries %d values, function returns %d", len(values), gb.g.Returns)
		return
	}
	gb.seal(b, Return{Values: append([]ValueID(nil), values...)})
}

func (gb *GraphBuilder) finish() error {
	if len(gb.errs) > 0 {
		return gb.errs[0]
	}
	if len(gb.g.blocks) == 0 {
		return errors.New("unit has no blocks")
	}
	for b := range gb.g.blocks {
		if gb.g.blocks[b].Exit == nil {
			return fmt.Errorf("block b%d has no exit", b)
		}
	}
	for v, def := range gb.defined {
		if !def {
			return fmt.Errorf("value v%d is never defined", v)
		}
	}

	// Incoming edges, in the order Predecessors documents.
	gb.g.preds = make([][]BlockID, len(gb.g.blocks))
	for b := range gb.g.blocks {
		for _, s := range gb.g.Successors(BlockID(b)) {
			gb.g.preds[s] = append(gb.g.preds[s], BlockID(b))
		}
	}

	for b := range gb.g.blocks {
		for _, p := range gb.g.blocks[b].Phis {
			if !gb.phiBound[p] {
				return fmt.Errorf("phi v%d has no arguments bound", p)
			}
			if got, want := len(gb.g.values[p].PhiArgs), len(gb.g.preds[b]); got != want {
				return fmt.Errorf("phi v%d has %d arguments for %d incoming edges", p, got, want)
			}
		}
		if len(gb.g.blocks[b].Phis) > 0 && len(gb.g.preds[b]) == 0 {
			return fmt.Errorf("block b%d has phis but no incoming edges", b)
		}
	}

	for b := range gb.g.blocks {
		for i, op := range gb.g.blocks[b].Ops {
			call, ok := op.Effect.(Call)
			if !ok {
				continue
			}
			callee := gb.pb.funcs[call.Func].g
			if len(op.In) != len(callee.Params) {
				return fmt.Errorf("block b%d operation %d: function %s takes %d arguments, got %d",
					b, i, callee.Name, len(callee.Params), len(op.In))
			}
		}
	}

	// Any non-parameter value live into the entry block has a use that
	// its definition does not dominate.
	params := make(map[ValueID]bool, len(gb.g.Params))
	for _, p := range gb.g.Params {
		params[p] = true
	}
	for _, v := range NewLiveness(gb.g).BlockLiveIn(EntryBlock).Sorted() {
		if !params[v] {
			return fmt.Errorf("value v%d is used but not defined on every path from entry", v)
		}
	}
	return nil
}
