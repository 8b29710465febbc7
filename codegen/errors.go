package codegen

import "fmt"

// StackTooDeepError records one spot where scheduling needed a slot
// beyond the dup or swap reach of the dialect. Generation continues past
// it, substituting junk for the unreachable slot, so one run collects
// every such spot. Op is the index of the offending operation, or -1
// when the block's exit needed the slot.
type StackTooDeepError struct {
	Unit    string // function name, empty for the entry unit
	Block   int
	Op      int
	Slot    string // rendered slot the scheduler could not reach
	Deficit int    // how many positions beyond reach the slot sat
}

func (e StackTooDeepError) Error() string {
	unit := e.Unit
	if unit == "" {
		unit = "main"
	}
	at := fmt.Sprintf("operation %d", e.Op)
	if e.Op < 0 {
		at = "exit"
	}
	return fmt.Sprintf("%s: block b%d %s: stack too deep: %s is %d slots out of reach", unit, e.Block, at, e.Slot, e.Deficit)
}

func fault(format string, args ...any) {
	panic(fmt.Sprintf("codegen: "+format, args...))
}
