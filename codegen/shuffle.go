package codegen

import (
	"github.com/holiman/uint256"

	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

func (t *transform) pop() {
	n := len(t.stack)
	if n == 0 {
		fault("pop on an empty stack")
	}
	t.asm.AppendInstruction(evmasm.POP)
	t.stack = t.stack[:n-1]
}

// dup copies the slot depth positions from the top (1 is the top itself)
// onto the top of the stack.
func (t *transform) dup(depth int) {
	n := len(t.stack)
	if depth < 1 || depth > n {
		fault("dup depth %d on a stack of %d", depth, n)
	}
	t.asm.AppendInstruction(evmasm.DupOp(depth))
	t.stack = append(t.stack, t.stack[n-depth])
}

// swap exchanges the top with the slot depth positions below it.
func (t *transform) swap(depth int) {
	n := len(t.stack)
	if depth < 1 || depth >= n {
		fault("swap depth %d on a stack of %d", depth, n)
	}
	t.asm.AppendInstruction(evmasm.SwapOp(depth))
	t.stack[n-1], t.stack[n-1-depth] = t.stack[n-1-depth], t.stack[n-1]
}

// pushSlot materializes s from nothing onto the stack: literals and
// label references by their push form, junk as a zero filler.
func (t *transform) pushSlot(s stackSlot) {
	switch s.kind {
	case slotValue:
		info := t.graph.ValueInfo(s.value)
		if info.Kind != ssacfg.ValueLiteral {
			fault("cannot materialize %s", slotString(t.graph, s))
		}
		lit := info.Literal
		t.asm.AppendConstant(&lit)
	case slotLabel:
		t.asm.AppendLabelRef(s.label)
	case slotJunk:
		t.asm.AppendConstant(new(uint256.Int))
	default:
		fault("cannot materialize %s", slotString(t.graph, s))
	}
	t.stack = append(t.stack, s)
}

func (t *transform) materializable(s stackSlot) bool {
	switch s.kind {
	case slotLabel, slotJunk:
		return true
	case slotValue:
		return t.graph.ValueInfo(s.value).Kind == ssacfg.ValueLiteral
	}
	return false
}

// nearestCopy returns the dup depth of the shallowest copy of s, with 1
// meaning the top of the stack.
func (t *transform) nearestCopy(s stackSlot) (int, bool) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == s {
			return len(t.stack) - i, true
		}
	}
	return 0, false
}

// bringUpSlot puts one more copy of s on top of the stack: a dup of the
// shallowest copy when one is in reach, else a fresh materialization.
// A copy that exists only beyond dup reach is recorded as a shortfall
// and replaced by junk so generation can continue.
func (t *transform) bringUpSlot(s stackSlot) {
	depth, onStack := t.nearestCopy(s)
	if onStack && depth <= t.dialect.MaxDup {
		t.dup(depth)
		return
	}
	if t.materializable(s) {
		t.pushSlot(s)
		return
	}
	if onStack {
		t.reportTooDeep(s, depth-t.dialect.MaxDup)
	} else if len(t.errs) == 0 {
		fault("%s is not on the stack %s", slotString(t.graph, s), stackString(t.graph, t.stack))
	}
	t.pushSlot(junkSlot())
}

// reportTooDeep records that s sat deficit slots beyond reach. Repeated
// shortfalls at the same operation or exit collapse into one record.
func (t *transform) reportTooDeep(s stackSlot, deficit int) {
	if t.reported {
		return
	}
	t.reported = true
	t.errs = append(t.errs, StackTooDeepError{
		Unit:    t.graph.Name,
		Block:   int(t.currentBlock),
		Op:      t.currentOp,
		Slot:    slotString(t.graph, s),
		Deficit: deficit,
	})
}

// createStackTop arranges the stack so that the operation's operand
// group sits on top in order, group[len-1] topmost. On the usual path
// the whole stack is reshaped: dead operands are consumed from where
// they sit, dead and junk slots stranded above the live region are shed
// and every value in liveOut keeps a copy below the group. Before a
// terminal operation (exact false) none of that cleanup pays off, so
// the group is piled onto the stack as it stands.
func (t *transform) createStackTop(group []stackSlot, liveOut ssacfg.ValueSet, exact bool) {
	if !exact {
		j := t.usableSuffix(group, liveOut)
		for _, s := range group[j:] {
			t.bringUpSlot(s)
		}
		return
	}
	t.createExactStack(append(t.keepPrefix(group, liveOut), group...))
}

// keepPrefix returns the slots that remain below an operation's operand
// group: the current stack minus the dead slots stranded on its top,
// which cost one pop each, and minus one copy of each dead operand,
// which the operation consumes where it sits. Dead slots buried under
// live ones stay; rotating them out costs more than the space they
// waste.
func (t *transform) keepPrefix(group []stackSlot, liveOut ssacfg.ValueSet) []stackSlot {
	inGroup := slotCounts(group)
	shed := len(t.stack)
	for shed > 0 {
		s := t.stack[shed-1]
		if inGroup[s] > 0 || !t.shedable(s, liveOut) {
			break
		}
		shed--
	}
	prefix := append([]stackSlot(nil), t.stack[:shed]...)
	for s, n := range inGroup {
		if s.kind != slotValue || liveOut.Contains(s.value) {
			continue
		}
		if t.graph.ValueInfo(s.value).Kind == ssacfg.ValueLiteral {
			continue // rematerialized, not consumed from the stack
		}
		for i := len(prefix) - 1; i >= 0 && n > 0; i-- {
			if prefix[i] == s {
				prefix = append(prefix[:i], prefix[i+1:]...)
				n--
			}
		}
	}
	return prefix
}

// shedable reports whether a slot may simply be dropped: junk always, a
// value once nothing after the operation needs it. Pinned literals,
// labels and the return address stay put.
func (t *transform) shedable(s stackSlot, liveOut ssacfg.ValueSet) bool {
	switch s.kind {
	case slotJunk:
		return true
	case slotValue:
		info := t.graph.ValueInfo(s.value)
		return info.Kind != ssacfg.ValueLiteral && !liveOut.Contains(s.value)
	}
	return false
}

// usableSuffix returns the length of the longest stack suffix equal to
// the start of group that may be consumed outright.
func (t *transform) usableSuffix(group []stackSlot, liveOut ssacfg.ValueSet) int {
	for j := min(len(group), len(t.stack)); j > 0; j-- {
		if !sameSlots(t.stack[len(t.stack)-j:], group[:j]) {
			continue
		}
		if t.consumableTail(j, liveOut) {
			return j
		}
	}
	return 0
}

// consumableTail reports whether the top j slots may all be consumed
// while every live value keeps a copy below them.
func (t *transform) consumableTail(j int, liveOut ssacfg.ValueSet) bool {
	base := len(t.stack) - j
	for _, s := range t.stack[base:] {
		if s.kind != slotValue || !liveOut.Contains(s.value) {
			continue
		}
		if countSlot(t.stack[:base], s) == 0 {
			return false
		}
	}
	return true
}

// createExactStack rearranges the working stack into exactly target:
// surplus slots are popped as they surface, misplaced slots swap into
// the positions that want them and missing slots are duplicated or
// rematerialized on top and sunk into place. A position the shuffle
// cannot serve within the dialect's swap and dup reach is recorded once
// per program point and surrendered to whatever occupies it, so the
// output degrades instead of generation failing.
func (t *transform) createExactStack(target []stackSlot) {
	tgt := append([]stackSlot(nil), target...)
	need := slotCounts(tgt)
	surrender := func(i int) {
		if i < len(t.stack) {
			tgt[i] = t.stack[i]
		} else {
			tgt[i] = junkSlot()
		}
		need = slotCounts(tgt)
	}
	guard := 4*(len(t.stack)+len(tgt)) + 16
	for !sameSlots(t.stack, tgt) {
		if guard--; guard < 0 {
			fault("stack shuffle does not converge: have %s, want %s",
				stackString(t.graph, t.stack), stackString(t.graph, tgt))
		}
		n := len(t.stack)
		if n > 0 && (n > len(tgt) || t.stack[n-1] != tgt[n-1]) {
			top := t.stack[n-1]
			// Swap the top into a position that wants it, shed it if
			// it is surplus, or surrender a position only a deeper
			// swap could serve.
			swapTo, giveUp := -1, -1
			for i := 0; i < min(n-1, len(tgt)); i++ {
				if tgt[i] != top || t.stack[i] == tgt[i] {
					continue
				}
				if n-1-i <= t.dialect.MaxSwap {
					swapTo = i
					break
				}
				giveUp = i
			}
			switch {
			case swapTo >= 0:
				t.swap(n - 1 - swapTo)
				continue
			case countSlot(t.stack, top) > need[top]:
				t.pop()
				continue
			case giveUp >= 0:
				if top.kind != slotJunk {
					t.reportTooDeep(top, n-1-giveUp-t.dialect.MaxSwap)
				}
				surrender(giveUp)
				continue
			}
			// The top belongs above positions still missing below it;
			// fall through and fill the deepest gap first.
		}
		i := t.deepestMismatch(tgt)
		s := tgt[i]
		if place := n - i; place > t.dialect.MaxSwap {
			// No fresh copy on top could sink this far.
			if s.kind != slotJunk {
				t.reportTooDeep(s, place-t.dialect.MaxSwap)
			}
			surrender(i)
			continue
		}
		depth, onStack := t.nearestCopy(s)
		switch {
		case onStack && depth <= t.dialect.MaxDup:
			t.dup(depth)
		case t.materializable(s):
			t.pushSlot(s)
		case onStack:
			t.reportTooDeep(s, depth-t.dialect.MaxDup)
			surrender(i)
		case len(t.errs) > 0:
			// The value was lost to an earlier shortfall; its position
			// degrades to whatever is in reach.
			surrender(i)
		default:
			fault("%s is not on the stack %s", slotString(t.graph, s), stackString(t.graph, t.stack))
		}
	}
}

func (t *transform) deepestMismatch(tgt []stackSlot) int {
	for i := range tgt {
		if i >= len(t.stack) || t.stack[i] != tgt[i] {
			return i
		}
	}
	fault("no mismatch between %s and %s", stackString(t.graph, t.stack), stackString(t.graph, tgt))
	return -1
}
