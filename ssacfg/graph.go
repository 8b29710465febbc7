// Package ssacfg models programs as SSA control-flow graphs: per-unit
// graphs of basic blocks whose operations consume and produce immutable
// values. It provides a validating builder, a liveness oracle and a YAML
// unit format, and is consumed by package codegen to schedule the graph
// onto the EVM operand stack.
package ssacfg

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Chulaverse/solidity/evmasm"
)

// ValueID identifies one SSA value within its graph. IDs are dense and
// start at zero.
type ValueID int32

// InvalidValue marks a value slot that carries no value.
const InvalidValue ValueID = -1

// BlockID identifies one basic block within its graph.
type BlockID int32

// EntryBlock is the designated entry block of every graph.
const EntryBlock BlockID = 0

// FuncID identifies one function of a Program.
type FuncID int32

// InvalidFunc marks an absent function reference.
const InvalidFunc FuncID = -1

// ValueKind discriminates the closed set of value definitions.
type ValueKind uint8

const (
	// ValueOrdinary is a value produced by an operation, or a function
	// parameter defined at entry.
	ValueOrdinary ValueKind = iota
	// ValuePhi is a value defined at a block entry, selecting one
	// argument per incoming edge.
	ValuePhi
	// ValueLiteral is a compile-time constant. Literals are never kept
	// on the stack across uses; the scheduler rematerializes them.
	ValueLiteral
	// ValueUnreachable marks a value that provably cannot be observed.
	// It is never scheduled onto the stack.
	ValueUnreachable
)

func (k ValueKind) String() string {
	switch k {
	case ValueOrdinary:
		return "ordinary"
	case ValuePhi:
		return "phi"
	case ValueLiteral:
		return "literal"
	case ValueUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// ValueInfo describes the defining form of one SSA value. Fields beyond
// Kind are populated per kind: Block for ordinary and phi values,
// Literal for literals, PhiArgs for phis.
type ValueInfo struct {
	Kind    ValueKind
	Block   BlockID
	Literal uint256.Int
	PhiArgs []ValueID
}

// Effect is the closed set of operation effects. An operation consumes
// its inputs from the stack, performs its effect and leaves its outputs.
type Effect interface{ effect() }

// BuiltinCall invokes a dialect builtin, lowering to one instruction.
type BuiltinCall struct {
	Builtin *evmasm.Builtin
}

// Call transfers control to a function of the program and back.
type Call struct {
	Func FuncID
}

// Const introduces its literal outputs onto the stack. It is the only
// effect whose outputs are literal values.
type Const struct{}

func (BuiltinCall) effect() {}
func (Call) effect()        {}
func (Const) effect()       {}

// Operation is one step of a block: the inputs it consumes, the outputs
// it defines and the effect it performs.
type Operation struct {
	In     []ValueID
	Out    []ValueID
	Effect Effect
}

// Exit is the closed set of block terminators.
type Exit interface{ exit() }

// Jump transfers control to a single successor.
type Jump struct {
	To BlockID
}

// CondJump transfers control to NonZero when Cond is nonzero and to
// Zero otherwise.
type CondJump struct {
	Cond    ValueID
	NonZero BlockID
	Zero    BlockID
}

// Return leaves the enclosing function with the given result values.
type Return struct {
	Values []ValueID
}

// Terminated ends a block whose last operation never returns control.
type Terminated struct{}

func (Jump) exit()       {}
func (CondJump) exit()   {}
func (Return) exit()     {}
func (Terminated) exit() {}

// Block is one basic block: phi values defined at entry, operations in
// execution order and a single exit.
type Block struct {
	Phis []ValueID
	Ops  []Operation
	Exit Exit
}

// Graph is the SSA control-flow graph of one unit: either the program
// entry sequence or a single function body. Block 0 is the entry.
type Graph struct {
	// Name is the function name; empty for the entry unit.
	Name string
	// AstID is an optional debug origin id, zero if absent.
	AstID int64
	// Params lists the argument values in declaration order.
	Params []ValueID
	// Returns is the number of values a Return exit must carry.
	Returns int

	blocks  []Block
	values  []ValueInfo
	preds   [][]BlockID
	callees []FuncID
}

// NumBlocks returns the number of blocks in the graph.
func (g *Graph) NumBlocks() int {
	return len(g.blocks)
}

// Block returns the block with the given id.
func (g *Graph) Block(b BlockID) *Block {
	if b < 0 || int(b) >= len(g.blocks) {
		fault("block b%d out of range", b)
	}
	return &g.blocks[b]
}

// NumValues returns the number of values in the graph.
func (g *Graph) NumValues() int {
	return len(g.values)
}

// ValueInfo returns the definition record of v.
func (g *Graph) ValueInfo(v ValueID) *ValueInfo {
	if v < 0 || int(v) >= len(g.values) {
		fault("value v%d out of range", v)
	}
	return &g.values[v]
}

// Predecessors returns the incoming edges of b in edge order: blocks
// are scanned by ascending id and each contributes its outgoing edges
// in exit order. A block branching to b on both edges of a CondJump
// appears twice. Phi arguments align with this order.
func (g *Graph) Predecessors(b BlockID) []BlockID {
	if b < 0 || int(b) >= len(g.preds) {
		fault("block b%d out of range", b)
	}
	return g.preds[b]
}

// Successors returns the targets of b's exit in exit order.
func (g *Graph) Successors(b BlockID) []BlockID {
	switch e := g.Block(b).Exit.(type) {
	case Jump:
		return []BlockID{e.To}
	case CondJump:
		return []BlockID{e.NonZero, e.Zero}
	case Return, Terminated:
		return nil
	}
	fault("block b%d has no exit", b)
	return nil
}

// Callees returns the functions this graph calls, in first-call order.
func (g *Graph) Callees() []FuncID {
	return g.callees
}

// IsPhiOf reports whether v is a phi defined at the entry of b.
func (g *Graph) IsPhiOf(v ValueID, b BlockID) bool {
	info := g.ValueInfo(v)
	return info.Kind == ValuePhi && info.Block == b
}

// Program is a complete compilation input: the entry unit plus all
// function bodies it may reach.
type Program struct {
	Main      *Graph
	Functions []*Graph
}

// Function returns the graph of f.
func (p *Program) Function(f FuncID) *Graph {
	if f < 0 || int(f) >= len(p.Functions) {
		fault("function %d out of range", f)
	}
	return p.Functions[f]
}

func fault(format string, args ...any) {
	panic(fmt.Sprintf("ssacfg: "+format, args...))
}
