// Package evmasm provides the EVM instruction subset, the builtin dialect
// and the assembler that serves as the output sink for stack scheduling.
package evmasm

import "fmt"

// OpCode is a single EVM instruction byte.
type OpCode byte

// Instruction opcodes, Cancun revision.
const (
	STOP       OpCode = 0x00
	ADD        OpCode = 0x01
	MUL        OpCode = 0x02
	SUB        OpCode = 0x03
	DIV        OpCode = 0x04
	SDIV       OpCode = 0x05
	MOD        OpCode = 0x06
	SMOD       OpCode = 0x07
	ADDMOD     OpCode = 0x08
	MULMOD     OpCode = 0x09
	EXP        OpCode = 0x0a
	SIGNEXTEND OpCode = 0x0b

	LT     OpCode = 0x10
	GT     OpCode = 0x11
	SLT    OpCode = 0x12
	SGT    OpCode = 0x13
	EQ     OpCode = 0x14
	ISZERO OpCode = 0x15
	AND    OpCode = 0x16
	OR     OpCode = 0x17
	XOR    OpCode = 0x18
	NOT    OpCode = 0x19
	BYTE   OpCode = 0x1a
	SHL    OpCode = 0x1b
	SHR    OpCode = 0x1c
	SAR    OpCode = 0x1d

	KECCAK256 OpCode = 0x20

	ADDRESS        OpCode = 0x30
	BALANCE        OpCode = 0x31
	ORIGIN         OpCode = 0x32
	CALLER         OpCode = 0x33
	CALLVALUE      OpCode = 0x34
	CALLDATALOAD   OpCode = 0x35
	CALLDATASIZE   OpCode = 0x36
	CALLDATACOPY   OpCode = 0x37
	CODESIZE       OpCode = 0x38
	CODECOPY       OpCode = 0x39
	GASPRICE       OpCode = 0x3a
	EXTCODESIZE    OpCode = 0x3b
	EXTCODECOPY    OpCode = 0x3c
	RETURNDATASIZE OpCode = 0x3d
	RETURNDATACOPY OpCode = 0x3e
	EXTCODEHASH    OpCode = 0x3f

	BLOCKHASH   OpCode = 0x40
	COINBASE    OpCode = 0x41
	TIMESTAMP   OpCode = 0x42
	NUMBER      OpCode = 0x43
	PREVRANDAO  OpCode = 0x44
	GASLIMIT    OpCode = 0x45
	CHAINID     OpCode = 0x46
	SELFBALANCE OpCode = 0x47
	BASEFEE     OpCode = 0x48

	POP      OpCode = 0x50
	MLOAD    OpCode = 0x51
	MSTORE   OpCode = 0x52
	MSTORE8  OpCode = 0x53
	SLOAD    OpCode = 0x54
	SSTORE   OpCode = 0x55
	JUMP     OpCode = 0x56
	JUMPI    OpCode = 0x57
	PC       OpCode = 0x58
	MSIZE    OpCode = 0x59
	GAS      OpCode = 0x5a
	JUMPDEST OpCode = 0x5b
	TLOAD    OpCode = 0x5c
	TSTORE   OpCode = 0x5d
	MCOPY    OpCode = 0x5e

	PUSH0  OpCode = 0x5f
	PUSH1  OpCode = 0x60
	PUSH32 OpCode = 0x7f

	DUP1  OpCode = 0x80
	DUP16 OpCode = 0x8f

	SWAP1  OpCode = 0x90
	SWAP16 OpCode = 0x9f

	LOG0 OpCode = 0xa0
	LOG4 OpCode = 0xa4

	CREATE       OpCode = 0xf0
	CALL         OpCode = 0xf1
	CALLCODE     OpCode = 0xf2
	RETURN       OpCode = 0xf3
	DELEGATECALL OpCode = 0xf4
	CREATE2      OpCode = 0xf5
	STATICCALL   OpCode = 0xfa
	REVERT       OpCode = 0xfd
	INVALID      OpCode = 0xfe
	SELFDESTRUCT OpCode = 0xff
)

var opNames = map[OpCode]string{
	STOP: "STOP", ADD: "ADD", MUL: "MUL", SUB: "SUB", DIV: "DIV",
	SDIV: "SDIV", MOD: "MOD", SMOD: "SMOD", ADDMOD: "ADDMOD",
	MULMOD: "MULMOD", EXP: "EXP", SIGNEXTEND: "SIGNEXTEND",
	LT: "LT", GT: "GT", SLT: "SLT", SGT: "SGT", EQ: "EQ", ISZERO: "ISZERO",
	AND: "AND", OR: "OR", XOR: "XOR", NOT: "NOT", BYTE: "BYTE",
	SHL: "SHL", SHR: "SHR", SAR: "SAR", KECCAK256: "KECCAK256",
	ADDRESS: "ADDRESS", BALANCE: "BALANCE", ORIGIN: "ORIGIN",
	CALLER: "CALLER", CALLVALUE: "CALLVALUE", CALLDATALOAD: "CALLDATALOAD",
	CALLDATASIZE: "CALLDATASIZE", CALLDATACOPY: "CALLDATACOPY",
	CODESIZE: "CODESIZE", CODECOPY: "CODECOPY", GASPRICE: "GASPRICE",
	EXTCODESIZE: "EXTCODESIZE", EXTCODECOPY: "EXTCODECOPY",
	RETURNDATASIZE: "RETURNDATASIZE", RETURNDATACOPY: "RETURNDATACOPY",
	EXTCODEHASH: "EXTCODEHASH", BLOCKHASH: "BLOCKHASH", COINBASE: "COINBASE",
	TIMESTAMP: "TIMESTAMP", NUMBER: "NUMBER", PREVRANDAO: "PREVRANDAO",
	GASLIMIT: "GASLIMIT", CHAINID: "CHAINID", SELFBALANCE: "SELFBALANCE",
	BASEFEE: "BASEFEE", POP: "POP", MLOAD: "MLOAD", MSTORE: "MSTORE",
	MSTORE8: "MSTORE8", SLOAD: "SLOAD", SSTORE: "SSTORE", JUMP: "JUMP",
	JUMPI: "JUMPI", PC: "PC", MSIZE: "MSIZE", GAS: "GAS",
	JUMPDEST: "JUMPDEST", TLOAD: "TLOAD", TSTORE: "TSTORE", MCOPY: "MCOPY",
	CREATE: "CREATE", CALL: "CALL", CALLCODE: "CALLCODE", RETURN: "RETURN",
	DELEGATECALL: "DELEGATECALL", CREATE2: "CREATE2",
	STATICCALL: "STATICCALL", REVERT: "REVERT", INVALID: "INVALID",
	SELFDESTRUCT: "SELFDESTRUCT",
}

// String returns the canonical mnemonic for op, or its byte value in hex
// if the opcode is not assigned.
func (op OpCode) String() string {
	switch {
	case op == PUSH0:
		return "PUSH0"
	case op >= PUSH1 && op <= PUSH32:
		return fmt.Sprintf("PUSH%d", int(op-PUSH1)+1)
	case op >= DUP1 && op <= DUP16:
		return fmt.Sprintf("DUP%d", int(op-DUP1)+1)
	case op >= SWAP1 && op <= SWAP16:
		return fmt.Sprintf("SWAP%d", int(op-SWAP1)+1)
	case op >= LOG0 && op <= LOG4:
		return fmt.Sprintf("LOG%d", int(op-LOG0))
	}
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", byte(op))
}

// PushOp returns the PUSH instruction carrying an n-byte immediate,
// 0 <= n <= 32.
func PushOp(n int) OpCode {
	if n < 0 || n > 32 {
		fault("push width %d out of range", n)
	}
	if n == 0 {
		return PUSH0
	}
	return PUSH1 + OpCode(n-1)
}

// DupOp returns DUPn, duplicating the n-th stack slot counted from the top.
func DupOp(n int) OpCode {
	if n < 1 || n > 16 {
		fault("dup depth %d out of range", n)
	}
	return DUP1 + OpCode(n-1)
}

// SwapOp returns SWAPn, exchanging the top slot with the one n below it.
func SwapOp(n int) OpCode {
	if n < 1 || n > 16 {
		fault("swap depth %d out of range", n)
	}
	return SWAP1 + OpCode(n-1)
}

// PushSize returns the immediate width of a PUSH instruction in bytes,
// and -1 for any other instruction.
func PushSize(op OpCode) int {
	switch {
	case op == PUSH0:
		return 0
	case op >= PUSH1 && op <= PUSH32:
		return int(op-PUSH1) + 1
	}
	return -1
}

// Defined reports whether op is an assigned opcode of the instruction set.
func Defined(op OpCode) bool {
	switch {
	case op >= PUSH0 && op <= SWAP16:
		return true
	case op >= LOG0 && op <= LOG4:
		return true
	}
	_, ok := opNames[op]
	return ok
}

// StackDelta returns how many operand-stack slots op pops and pushes.
func StackDelta(op OpCode) (pops, pushes int) {
	switch {
	case op == PUSH0 || (op >= PUSH1 && op <= PUSH32):
		return 0, 1
	case op >= DUP1 && op <= DUP16:
		n := int(op-DUP1) + 1
		return n, n + 1
	case op >= SWAP1 && op <= SWAP16:
		n := int(op-SWAP1) + 2
		return n, n
	case op >= LOG0 && op <= LOG4:
		return int(op-LOG0) + 2, 0
	}
	switch op {
	case STOP, JUMPDEST, INVALID:
		return 0, 0
	case ADDRESS, ORIGIN, CALLER, CALLVALUE, CALLDATASIZE, CODESIZE,
		GASPRICE, RETURNDATASIZE, COINBASE, TIMESTAMP, NUMBER, PREVRANDAO,
		GASLIMIT, CHAINID, SELFBALANCE, BASEFEE, PC, MSIZE, GAS:
		return 0, 1
	case POP, JUMP, SELFDESTRUCT:
		return 1, 0
	case ISZERO, NOT, BALANCE, CALLDATALOAD, EXTCODESIZE, EXTCODEHASH,
		BLOCKHASH, MLOAD, SLOAD, TLOAD:
		return 1, 1
	case MSTORE, MSTORE8, SSTORE, TSTORE, JUMPI, RETURN, REVERT:
		return 2, 0
	case ADD, MUL, SUB, DIV, SDIV, MOD, SMOD, EXP, SIGNEXTEND, LT, GT,
		SLT, SGT, EQ, AND, OR, XOR, BYTE, SHL, SHR, SAR, KECCAK256:
		return 2, 1
	case CALLDATACOPY, CODECOPY, RETURNDATACOPY, MCOPY:
		return 3, 0
	case ADDMOD, MULMOD, CREATE:
		return 3, 1
	case EXTCODECOPY:
		return 4, 0
	case CREATE2:
		return 4, 1
	case DELEGATECALL, STATICCALL:
		return 6, 1
	case CALL, CALLCODE:
		return 7, 1
	}
	return 0, 0
}
