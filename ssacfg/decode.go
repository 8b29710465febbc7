package ssacfg

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/Chulaverse/solidity/evmasm"
)

// The YAML unit format. A unit is one main section plus any number of
// functions. Values are named; params, consts, unreachable declarations,
// phi outputs and operation outputs share one namespace per graph.
//
//	main:
//	  consts: {zero: 0}
//	  blocks:
//	    - ops:
//	        - {op: callvalue, out: [v]}
//	        - {op: sstore, in: [zero, v]}
//	        - {op: stop}
//	functions:
//	  - name: square
//	    params: [x]
//	    returns: 1
//	    blocks:
//	      - ops:
//	          - {op: mul, in: [x, x], out: [y]}
//	        exit: {return: [y]}
//
// Exits are {jump: N}, {branch: {cond: c, nonzero: N, zero: N}} or
// {return: [..]}; a block whose last operation is terminal needs none.
type unitYAML struct {
	Main      *graphYAML   `yaml:"main"`
	Functions []*graphYAML `yaml:"functions"`
}

type graphYAML struct {
	Name        string                `yaml:"name"`
	Params      []string              `yaml:"params"`
	Returns     int                   `yaml:"returns"`
	AstID       int64                 `yaml:"astid"`
	Consts      map[string]scalarYAML `yaml:"consts"`
	Unreachable []string              `yaml:"unreachable"`
	Blocks      []blockYAML           `yaml:"blocks"`
}

type blockYAML struct {
	Phis []phiYAML `yaml:"phis"`
	Ops  []opYAML  `yaml:"ops"`
	Exit *exitYAML `yaml:"exit"`
}

type phiYAML struct {
	Out  string   `yaml:"out"`
	Args []string `yaml:"args"`
}

type opYAML struct {
	Op    string   `yaml:"op"`
	Call  string   `yaml:"call"`
	Const []string `yaml:"const"`
	In    []string `yaml:"in"`
	Out   []string `yaml:"out"`
}

type exitYAML struct {
	Jump   *int        `yaml:"jump"`
	Branch *branchYAML `yaml:"branch"`
	Return *[]string   `yaml:"return"`
}

type branchYAML struct {
	Cond    string `yaml:"cond"`
	NonZero int    `yaml:"nonzero"`
	Zero    int    `yaml:"zero"`
}

// scalarYAML captures a scalar as its raw text so literal values may be
// written as integers or as strings.
type scalarYAML struct {
	text string
}

func (s *scalarYAML) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: literal must be a scalar", node.Line)
	}
	s.text = node.Value
	return nil
}

// funcSig is a function signature visible while decoding call sites.
type funcSig struct {
	id      FuncID
	params  int
	returns int
}

// Decode parses a YAML unit description and builds its program. Builtin
// names resolve against the given dialect. All validation failures are
// reported as errors naming the offending unit, block and operation.
func Decode(data []byte, dialect *evmasm.Dialect) (*Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var unit unitYAML
	if err := dec.Decode(&unit); err != nil {
		return nil, fmt.Errorf("parse unit: %w", err)
	}
	if unit.Main == nil {
		return nil, errors.New("unit has no main section")
	}
	if unit.Main.Name != "" || len(unit.Main.Params) > 0 || unit.Main.Returns != 0 {
		return nil, errors.New("main: name, params and returns belong to functions")
	}

	pb := NewProgramBuilder()
	sigs := make(map[string]funcSig, len(unit.Functions))
	builders := make([]*GraphBuilder, len(unit.Functions))
	for i, fy := range unit.Functions {
		if fy.Name == "" {
			return nil, fmt.Errorf("function %d has no name", i)
		}
		if _, ok := sigs[fy.Name]; ok {
			return nil, fmt.Errorf("duplicate function name %q", fy.Name)
		}
		fid, gb := pb.AddFunction(fy.Name, fy.Returns)
		sigs[fy.Name] = funcSig{id: fid, params: len(fy.Params), returns: fy.Returns}
		builders[i] = gb
	}

	if err := decodeGraph(pb.Main(), unit.Main, dialect, sigs); err != nil {
		return nil, fmt.Errorf("main: %w", err)
	}
	for i, fy := range unit.Functions {
		if err := decodeGraph(builders[i], fy, dialect, sigs); err != nil {
			return nil, fmt.Errorf("function %s: %w", fy.Name, err)
		}
	}
	return pb.Finish()
}

func decodeGraph(gb *GraphBuilder, y *graphYAML, dialect *evmasm.Dialect, sigs map[string]funcSig) error {
	if len(y.Blocks) == 0 {
		return errors.New("unit has no blocks")
	}
	gb.SetAstID(y.AstID)

	names := make(map[string]ValueID)
	declare := func(name string, v ValueID) error {
		if name == "" {
			return errors.New("empty value name")
		}
		if _, ok := names[name]; ok {
			return fmt.Errorf("value %q declared twice", name)
		}
		names[name] = v
		return nil
	}
	resolve := func(name string) (ValueID, error) {
		if v, ok := names[name]; ok {
			return v, nil
		}
		return InvalidValue, fmt.Errorf("unknown value %q", name)
	}
	resolveAll := func(ns []string) ([]ValueID, error) {
		out := make([]ValueID, len(ns))
		for i, n := range ns {
			v, err := resolve(n)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	for _, p := range y.Params {
		if err := declare(p, gb.AddParam()); err != nil {
			return err
		}
	}
	// Consts are declared in name order so value numbering does not
	// depend on map iteration.
	constNames := make([]string, 0, len(y.Consts))
	for name := range y.Consts {
		constNames = append(constNames, name)
	}
	sort.Strings(constNames)
	for _, name := range constNames {
		val, err := parseLiteral(y.Consts[name].text)
		if err != nil {
			return fmt.Errorf("const %s: %w", name, err)
		}
		if err := declare(name, gb.AddLiteral(val)); err != nil {
			return err
		}
	}
	for _, u := range y.Unreachable {
		if err := declare(u, gb.AddUnreachable()); err != nil {
			return err
		}
	}

	for range y.Blocks {
		gb.AddBlock()
	}

	// Declare every phi and operation output before resolving any use;
	// SSA lets a value be used in an earlier block than its definition.
	for bi, by := range y.Blocks {
		for _, py := range by.Phis {
			if err := declare(py.Out, gb.AddPhi(BlockID(bi))); err != nil {
				return fmt.Errorf("block b%d: %w", bi, err)
			}
		}
		for oi, oy := range by.Ops {
			if oy.Const != nil {
				continue // const outputs reference declared literals
			}
			for _, out := range oy.Out {
				if err := declare(out, gb.AddValue()); err != nil {
					return fmt.Errorf("block b%d operation %d: %w", bi, oi, err)
				}
			}
		}
	}

	for bi, by := range y.Blocks {
		b := BlockID(bi)
		for pi, py := range by.Phis {
			args, err := resolveAll(py.Args)
			if err != nil {
				return fmt.Errorf("block b%d phi %d: %w", bi, pi, err)
			}
			p, err := resolve(py.Out)
			if err != nil {
				return fmt.Errorf("block b%d phi %d: %w", bi, pi, err)
			}
			gb.SetPhiArgs(p, args...)
		}
		for oi, oy := range by.Ops {
			if err := decodeOp(gb, b, oy, dialect, sigs, resolveAll); err != nil {
				return fmt.Errorf("block b%d operation %d: %w", bi, oi, err)
			}
		}
		if err := decodeExit(gb, b, by.Exit, resolveAll, len(y.Blocks)); err != nil {
			return fmt.Errorf("block b%d: %w", bi, err)
		}
	}
	return nil
}

func decodeOp(gb *GraphBuilder, b BlockID, oy opYAML, dialect *evmasm.Dialect, sigs map[string]funcSig, resolveAll func([]string) ([]ValueID, error)) error {
	forms := 0
	if oy.Op != "" {
		forms++
	}
	if oy.Call != "" {
		forms++
	}
	if oy.Const != nil {
		forms++
	}
	if forms != 1 {
		return errors.New("operation needs exactly one of op, call or const")
	}

	ins, err := resolveAll(oy.In)
	if err != nil {
		return err
	}
	switch {
	case oy.Const != nil:
		if len(oy.In) > 0 || len(oy.Out) > 0 {
			return errors.New("const takes no inputs and names its outputs in the const key")
		}
		outs, err := resolveAll(oy.Const)
		if err != nil {
			return err
		}
		gb.AppendConst(b, outs)
	case oy.Call != "":
		sig, ok := sigs[oy.Call]
		if !ok {
			return fmt.Errorf("unknown function %q", oy.Call)
		}
		if len(ins) != sig.params {
			return fmt.Errorf("function %s takes %d arguments, got %d", oy.Call, sig.params, len(ins))
		}
		if len(oy.Out) != sig.returns {
			return fmt.Errorf("function %s returns %d values, got %d outputs", oy.Call, sig.returns, len(oy.Out))
		}
		outs, err := resolveAll(oy.Out)
		if err != nil {
			return err
		}
		gb.AppendCall(b, sig.id, ins, outs)
	default:
		builtin, ok := dialect.Builtin(oy.Op)
		if !ok {
			return fmt.Errorf("unknown builtin %q", oy.Op)
		}
		if len(ins) != builtin.Args {
			return fmt.Errorf("builtin %s takes %d arguments, got %d", builtin.Name, builtin.Args, len(ins))
		}
		if len(oy.Out) != builtin.Rets {
			return fmt.Errorf("builtin %s returns %d values, got %d outputs", builtin.Name, builtin.Rets, len(oy.Out))
		}
		outs, err := resolveAll(oy.Out)
		if err != nil {
			return err
		}
		gb.AppendBuiltin(b, builtin, ins, outs)
	}
	return nil
}

func decodeExit(gb *GraphBuilder, b BlockID, e *exitYAML, resolveAll func([]string) ([]ValueID, error), blocks int) error {
	sealed := gb.g.blocks[b].Exit != nil
	if e == nil {
		if !sealed {
			return errors.New("no exit and no terminal operation")
		}
		return nil
	}
	if sealed {
		return errors.New("exit conflicts with a terminal operation")
	}

	forms := 0
	if e.Jump != nil {
		forms++
	}
	if e.Branch != nil {
		forms++
	}
	if e.Return != nil {
		forms++
	}
	if forms != 1 {
		return errors.New("exit needs exactly one of jump, branch or return")
	}

	checkTarget := func(t int) error {
		if t < 0 || t >= blocks {
			return fmt.Errorf("jump to undefined block b%d", t)
		}
		return nil
	}
	switch {
	case e.Jump != nil:
		if err := checkTarget(*e.Jump); err != nil {
			return err
		}
		gb.SealJump(b, BlockID(*e.Jump))
	case e.Branch != nil:
		if err := checkTarget(e.Branch.NonZero); err != nil {
			return err
		}
		if err := checkTarget(e.Branch.Zero); err != nil {
			return err
		}
		cond, err := resolveAll([]string{e.Branch.Cond})
		if err != nil {
			return err
		}
		gb.SealBranch(b, cond[0], BlockID(e.Branch.NonZero), BlockID(e.Branch.Zero))
	case e.Return != nil:
		values, err := resolveAll(*e.Return)
		if err != nil {
			return err
		}
		gb.SealReturn(b, values...)
	}
	return nil
}

func parseLiteral(text string) (*uint256.Int, error) {
	if text == "" {
		return nil, errors.New("empty literal")
	}
	if strings.HasPrefix(text, "0x") {
		return uint256.FromHex(text)
	}
	v := new(uint256.Int)
	if err := v.SetFromDecimal(text); err != nil {
		return nil, err
	}
	return v, nil
}
