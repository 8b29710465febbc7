package codegen

import (
	"fmt"
	"strings"

	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

type slotKind uint8

const (
	slotValue slotKind = iota
	slotLabel
	slotRetAddr
	slotJunk
)

// stackSlot is one cell of the modeled operand stack: a value of the
// unit being generated, a code label pushed as data, the return address
// of the enclosing function, or junk whose content no longer matters.
// Slots compare with ==.
type stackSlot struct {
	kind  slotKind
	value ssacfg.ValueID
	label evmasm.LabelID
}

func valueSlot(v ssacfg.ValueID) stackSlot { return stackSlot{kind: slotValue, value: v} }
func labelSlot(l evmasm.LabelID) stackSlot { return stackSlot{kind: slotLabel, label: l} }
func retAddrSlot() stackSlot               { return stackSlot{kind: slotRetAddr} }
func junkSlot() stackSlot                  { return stackSlot{kind: slotJunk} }

func slotString(g *ssacfg.Graph, s stackSlot) string {
	switch s.kind {
	case slotValue:
		return ssacfg.ValueString(g, s.value)
	case slotLabel:
		return fmt.Sprintf("LABEL[%d]", s.label)
	case slotRetAddr:
		return "RET"
	}
	return "JUNK"
}

func stackString(g *ssacfg.Graph, stack []stackSlot) string {
	parts := make([]string, len(stack))
	for i, s := range stack {
		parts[i] = slotString(g, s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func countSlot(stack []stackSlot, s stackSlot) int {
	n := 0
	for _, c := range stack {
		if c == s {
			n++
		}
	}
	return n
}

func slotCounts(slots []stackSlot) map[stackSlot]int {
	counts := make(map[stackSlot]int, len(slots))
	for _, s := range slots {
		counts[s]++
	}
	return counts
}

func sameSlots(a, b []stackSlot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// slotValues collects the ordinary and phi values a layout carries;
// literals, labels and junk can always be rebuilt and are left out.
func slotValues(g *ssacfg.Graph, layout []stackSlot) ssacfg.ValueSet {
	set := ssacfg.NewValueSet()
	for _, s := range layout {
		if s.kind != slotValue {
			continue
		}
		switch g.ValueInfo(s.value).Kind {
		case ssacfg.ValueOrdinary, ssacfg.ValuePhi:
			set.Add(s.value)
		}
	}
	return set
}
