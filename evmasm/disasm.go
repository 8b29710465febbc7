package evmasm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Disassemble renders bytecode as one instruction per line, prefixed
// with the code offset. Unassigned opcodes are shown as raw bytes. It
// fails if a PUSH immediate runs past the end of the code.
func Disassemble(code []byte) (string, error) {
	var sb strings.Builder
	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		if n := PushSize(op); n > 0 {
			if pc+1+n > len(code) {
				return "", fmt.Errorf("truncated %s at offset %d", op, pc)
			}
			fmt.Fprintf(&sb, "%04x    %s 0x%s\n", pc, op, hex.EncodeToString(code[pc+1:pc+1+n]))
			pc += 1 + n
			continue
		}
		fmt.Fprintf(&sb, "%04x    %s\n", pc, op)
		pc++
	}
	return sb.String(), nil
}
