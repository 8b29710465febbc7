// Package codegen lowers SSA control-flow graphs onto the EVM operand
// stack. Units are generated block by block: operands are arranged with
// dups, swaps and pops against a liveness oracle, control edges carry
// fixed stack layouts sealed by the first predecessor to reach them,
// and functions follow a jump-based calling convention. Slots that end
// up beyond the reach of DUP and SWAP do not abort generation; they are
// collected as StackTooDeepErrors while the output degrades to junk.
package codegen

import (
	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

// LivenessOracle supplies the liveness facts generation consumes. It is
// satisfied by ssacfg.Liveness.
type LivenessOracle interface {
	// BlockLiveIn returns the values that must be available when b is
	// entered, including live phi results defined by b itself.
	BlockLiveIn(b ssacfg.BlockID) ssacfg.ValueSet
	// OperationsLiveOut returns one set per operation of b, in order:
	// the values live immediately after that operation.
	OperationsLiveOut(b ssacfg.BlockID) []ssacfg.ValueSet
}

// functionLabels maps every function of a program to its entry label.
// Labels are allocated once, before any unit is generated, so call
// sites and function bodies agree across units.
type functionLabels struct {
	labels []evmasm.LabelID
}

func registerFunctions(asm evmasm.Assembly, p *ssacfg.Program, naming evmasm.LabelNaming) *functionLabels {
	fl := &functionLabels{labels: make([]evmasm.LabelID, len(p.Functions))}
	for i, g := range p.Functions {
		fl.labels[i] = asm.NamedLabel(g.Name, len(g.Params), g.Returns, g.AstID, naming)
	}
	return fl
}

func (fl *functionLabels) entryOf(f ssacfg.FuncID) evmasm.LabelID {
	if f < 0 || int(f) >= len(fl.labels) {
		fault("function @%d out of range", f)
	}
	return fl.labels[f]
}

// Run generates code for p onto asm: the entry unit first, then every
// function in declaration order. The entry unit starts from an empty
// stack; a function body starts from its return address with the
// parameters above it, last parameter on top. The returned slice holds
// one record per program point where a slot sat beyond dup or swap
// reach; an empty slice means a clean schedule.
func Run(asm evmasm.Assembly, p *ssacfg.Program, d *evmasm.Dialect, naming evmasm.LabelNaming) []StackTooDeepError {
	funcs := registerFunctions(asm, p, naming)
	var errs []StackTooDeepError

	t := newTransform(asm, p.Main, ssacfg.NewLiveness(p.Main), d, funcs)
	t.run(evmasm.NoLabel, nil)
	errs = append(errs, t.errs...)

	for i, g := range p.Functions {
		entry := make([]stackSlot, 0, len(g.Params)+1)
		entry = append(entry, retAddrSlot())
		for _, param := range g.Params {
			entry = append(entry, valueSlot(param))
		}
		ft := newTransform(asm, g, ssacfg.NewLiveness(g), d, funcs)
		ft.run(funcs.entryOf(ssacfg.FuncID(i)), entry)
		errs = append(errs, ft.errs...)
	}
	return errs
}
