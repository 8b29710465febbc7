package ssacfg

import (
	"fmt"
	"strings"
)

// ValueString renders a value the way scheduler diagnostics and graph
// dumps do: literals as their decimal value, unreachable values as
// [unreachable] and everything else as v<id>.
func ValueString(g *Graph, v ValueID) string {
	if v == InvalidValue {
		return "INVALID"
	}
	info := g.ValueInfo(v)
	switch info.Kind {
	case ValueUnreachable:
		return "[unreachable]"
	case ValueLiteral:
		return info.Literal.Dec()
	}
	return fmt.Sprintf("v%d", v)
}

func valueList(g *Graph, vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = ValueString(g, v)
	}
	return strings.Join(parts, ", ")
}

func blockList(bs []BlockID) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprintf("b%d", b)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func setString(g *Graph, s ValueSet) string {
	vs := s.Sorted()
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = ValueString(g, v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func opString(g *Graph, op *Operation, fnName func(FuncID) string) string {
	switch e := op.Effect.(type) {
	case BuiltinCall:
		callText := fmt.Sprintf("%s(%s)", e.Builtin.Name, valueList(g, op.In))
		if len(op.Out) == 0 {
			return callText
		}
		return valueList(g, op.Out) + " = " + callText
	case Call:
		callText := fmt.Sprintf("call %s(%s)", fnName(e.Func), valueList(g, op.In))
		if len(op.Out) == 0 {
			return callText
		}
		return valueList(g, op.Out) + " = " + callText
	case Const:
		return "const " + valueList(g, op.Out)
	}
	return "<unknown operation>"
}

func exitString(g *Graph, e Exit) string {
	switch e := e.(type) {
	case Jump:
		return fmt.Sprintf("jump b%d", e.To)
	case CondJump:
		return fmt.Sprintf("branch %s -> b%d | b%d", ValueString(g, e.Cond), e.NonZero, e.Zero)
	case Return:
		if len(e.Values) == 0 {
			return "return"
		}
		return "return " + valueList(g, e.Values)
	}
	return ""
}

// FormatGraph renders g block by block. With a non-nil liveness each
// block line shows its live-in set and each operation the values live
// after it executes.
func FormatGraph(g *Graph, live *Liveness) string {
	return formatGraph(g, live, func(f FuncID) string {
		return fmt.Sprintf("@%d", f)
	})
}

func formatGraph(g *Graph, live *Liveness, fnName func(FuncID) string) string {
	var sb strings.Builder
	if g.Name != "" {
		fmt.Fprintf(&sb, "func %s(%s) -> %d", g.Name, valueList(g, g.Params), g.Returns)
		if g.AstID != 0 {
			fmt.Fprintf(&sb, " ast=%d", g.AstID)
		}
		sb.WriteByte('\n')
	}
	for bi := 0; bi < g.NumBlocks(); bi++ {
		b := BlockID(bi)
		blk := g.Block(b)
		fmt.Fprintf(&sb, "b%d: preds=%s", bi, blockList(g.Predecessors(b)))
		if live != nil {
			fmt.Fprintf(&sb, " live-in=%s", setString(g, live.BlockLiveIn(b)))
		}
		sb.WriteByte('\n')
		for _, p := range blk.Phis {
			fmt.Fprintf(&sb, "  %s = phi(%s)\n", ValueString(g, p), valueList(g, g.ValueInfo(p).PhiArgs))
		}
		var liveOuts []ValueSet
		if live != nil {
			liveOuts = live.OperationsLiveOut(b)
		}
		for i := range blk.Ops {
			sb.WriteString("  " + opString(g, &blk.Ops[i], fnName))
			if live != nil {
				sb.WriteString("  ; live " + setString(g, liveOuts[i]))
			}
			sb.WriteByte('\n')
		}
		if text := exitString(g, blk.Exit); text != "" {
			sb.WriteString("  " + text + "\n")
		}
	}
	return sb.String()
}

// FormatProgram renders every unit of p, main first.
func FormatProgram(p *Program, withLiveness bool) string {
	liveFor := func(g *Graph) *Liveness {
		if !withLiveness {
			return nil
		}
		return NewLiveness(g)
	}
	fnName := func(f FuncID) string {
		return p.Function(f).Name
	}
	var sb strings.Builder
	sb.WriteString("=== main ===\n")
	sb.WriteString(formatGraph(p.Main, liveFor(p.Main), fnName))
	for _, g := range p.Functions {
		fmt.Fprintf(&sb, "\n=== function %s ===\n", g.Name)
		sb.WriteString(formatGraph(g, liveFor(g), fnName))
	}
	return sb.String()
}
