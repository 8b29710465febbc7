package evmasm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// LabelID identifies a jump target allocated by an Assembly. IDs are
// dense and start at zero.
type LabelID int32

// NoLabel marks a label slot that has not been allocated yet.
const NoLabel LabelID = -1

// LabelNaming selects how labels for named entities are allocated.
type LabelNaming int

const (
	// NamedLabelsNever allocates anonymous labels regardless of hints.
	NamedLabelsNever LabelNaming = iota
	// NamedLabelsIfAvailable names a label after its entity unless the
	// name is taken, in which case it falls back to an anonymous label.
	NamedLabelsIfAvailable
	// NamedLabelsForceUnique names every label and treats a duplicate
	// name as an internal fault.
	NamedLabelsForceUnique
)

// Assembly is the output sink of the stack scheduler. Implementations
// allocate labels, accept a linear instruction stream and track the
// scheduler's stack height for diagnostics.
type Assembly interface {
	// NewLabel allocates a fresh anonymous label.
	NewLabel() LabelID
	// NamedLabel allocates a label for a named entity such as a
	// function, honoring the given naming policy. The argument and
	// return counts and the debug origin id are recorded for listings.
	NamedLabel(name string, args, rets int, astID int64, naming LabelNaming) LabelID
	// AppendLabel places the label at the current position and emits
	// its JUMPDEST.
	AppendLabel(id LabelID)
	// AppendJump emits an unconditional jump to the label.
	AppendJump(id LabelID)
	// AppendCondJump emits a jump to the label taken when the value on
	// top of the stack is nonzero. The condition is consumed.
	AppendCondJump(id LabelID)
	// AppendLabelRef pushes the code offset of the label.
	AppendLabelRef(id LabelID)
	// AppendConstant pushes a constant using the narrowest PUSH.
	AppendConstant(val *uint256.Int)
	// AppendInstruction emits a bare instruction.
	AppendInstruction(op OpCode)
	// SetStackHeight resynchronizes the tracked stack height, used at
	// points where control flow joins and the running delta is stale.
	SetStackHeight(height int)
}

type itemKind uint8

const (
	itemOp itemKind = iota
	itemPush
	itemPushLabel
	itemLabel
)

// item is one element of the linear instruction stream. Label references
// are kept symbolic until Bytecode patches in concrete offsets.
type item struct {
	kind   itemKind
	op     OpCode
	data   []byte // push immediate, big-endian without leading zeros
	label  LabelID
	height int // tracked stack height after this item
}

type labelInfo struct {
	name  string
	args  int
	rets  int
	astID int64
	item  int // index of the defining item, -1 until placed
}

// Assembler is the concrete Assembly sink. It records the instruction
// stream symbolically and assembles it to bytecode on demand, encoding
// every label reference as a PUSH2.
type Assembler struct {
	items     []item
	labels    []labelInfo
	named     map[string]bool
	height    int
	maxHeight int
}

var _ Assembly = (*Assembler)(nil)

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{named: make(map[string]bool)}
}

func (a *Assembler) NewLabel() LabelID {
	id := LabelID(len(a.labels))
	a.labels = append(a.labels, labelInfo{item: -1})
	return id
}

func (a *Assembler) NamedLabel(name string, args, rets int, astID int64, naming LabelNaming) LabelID {
	if name == "" || naming == NamedLabelsNever {
		return a.NewLabel()
	}
	if a.named[name] {
		if naming == NamedLabelsForceUnique {
			fault("duplicate label name %q", name)
		}
		return a.NewLabel()
	}
	a.named[name] = true
	id := LabelID(len(a.labels))
	a.labels = append(a.labels, labelInfo{name: name, args: args, rets: rets, astID: astID, item: -1})
	return id
}

func (a *Assembler) AppendLabel(id LabelID) {
	li := a.label(id)
	if li.item >= 0 {
		fault("label %s defined twice", a.labelName(id))
	}
	li.item = len(a.items)
	a.appendItem(item{kind: itemLabel, op: JUMPDEST, label: id})
}

func (a *Assembler) AppendJump(id LabelID) {
	a.label(id)
	a.appendItem(item{kind: itemPushLabel, label: id})
	a.appendItem(item{kind: itemOp, op: JUMP})
}

func (a *Assembler) AppendCondJump(id LabelID) {
	a.label(id)
	a.appendItem(item{kind: itemPushLabel, label: id})
	a.appendItem(item{kind: itemOp, op: JUMPI})
}

func (a *Assembler) AppendLabelRef(id LabelID) {
	a.label(id)
	a.appendItem(item{kind: itemPushLabel, label: id})
}

func (a *Assembler) AppendConstant(val *uint256.Int) {
	data := val.Bytes()
	a.appendItem(item{kind: itemPush, op: PushOp(len(data)), data: data})
}

func (a *Assembler) AppendInstruction(op OpCode) {
	a.appendItem(item{kind: itemOp, op: op})
}

func (a *Assembler) SetStackHeight(height int) {
	a.height = height
	if height > a.maxHeight {
		a.maxHeight = height
	}
	// A resync directly after a label records the height control flow
	// arrives with, which is what the listing should show.
	if n := len(a.items); n > 0 && a.items[n-1].kind == itemLabel {
		a.items[n-1].height = height
	}
}

// MaxHeight returns the highest stack height observed while appending.
func (a *Assembler) MaxHeight() int {
	return a.maxHeight
}

func (a *Assembler) appendItem(it item) {
	switch it.kind {
	case itemPush, itemPushLabel:
		a.height++
	case itemOp:
		pops, pushes := StackDelta(it.op)
		a.height += pushes - pops
	}
	if a.height > a.maxHeight {
		a.maxHeight = a.height
	}
	it.height = a.height
	a.items = append(a.items, it)
}

func (a *Assembler) label(id LabelID) *labelInfo {
	if id < 0 || int(id) >= len(a.labels) {
		fault("label L%d was never allocated", id)
	}
	return &a.labels[id]
}

func (a *Assembler) labelName(id LabelID) string {
	if name := a.labels[id].name; name != "" {
		return name
	}
	return fmt.Sprintf("L%d", id)
}

func itemSize(it item) int {
	switch it.kind {
	case itemPush:
		return 1 + len(it.data)
	case itemPushLabel:
		return 3 // PUSH2 with a 16-bit offset
	default:
		return 1
	}
}

// Bytecode assembles the recorded stream, resolving every label
// reference to the code offset of its JUMPDEST.
func (a *Assembler) Bytecode() ([]byte, error) {
	offsets := make([]int, len(a.items))
	size := 0
	for i, it := range a.items {
		offsets[i] = size
		size += itemSize(it)
	}
	out := make([]byte, 0, size)
	for _, it := range a.items {
		switch it.kind {
		case itemLabel, itemOp:
			out = append(out, byte(it.op))
		case itemPush:
			out = append(out, byte(it.op))
			out = append(out, it.data...)
		case itemPushLabel:
			li := a.labels[it.label]
			if li.item < 0 {
				return nil, fmt.Errorf("label %s is referenced but never placed", a.labelName(it.label))
			}
			off := offsets[li.item]
			if off > 0xffff {
				return nil, fmt.Errorf("label %s at offset %d exceeds the PUSH2 range", a.labelName(it.label), off)
			}
			out = append(out, byte(PUSH1+1), byte(off>>8), byte(off))
		}
	}
	return out, nil
}

// Listing renders the recorded stream as assembly text with the tracked
// stack height after each line.
func (a *Assembler) Listing() string {
	var sb strings.Builder
	for _, it := range a.items {
		var text string
		switch it.kind {
		case itemLabel:
			text = a.labelName(it.label) + ":"
		case itemOp:
			text = "        " + it.op.String()
		case itemPush:
			if len(it.data) == 0 {
				text = "        PUSH0"
			} else {
				text = fmt.Sprintf("        %s 0x%s", it.op.String(), hex.EncodeToString(it.data))
			}
		case itemPushLabel:
			text = fmt.Sprintf("        PUSH [%s]", a.labelName(it.label))
		}
		fmt.Fprintf(&sb, "%-32s; %d\n", text, it.height)
	}
	return sb.String()
}

func fault(format string, args ...any) {
	panic(fmt.Sprintf("evmasm: "+format, args...))
}
