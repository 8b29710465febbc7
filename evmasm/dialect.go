package evmasm

// Builtin describes one dialect function callable from SSA operations.
// Each builtin lowers to a single EVM instruction.
type Builtin struct {
	Name     string
	Op       OpCode
	Args     int
	Rets     int
	Terminal bool // control never continues past this builtin
}

// Dialect fixes the operand-stack reach limits and the builtin set
// available to compiled units. MaxDup bounds how deep a DUP may copy
// from and MaxSwap how deep a SWAP may exchange with; accesses beyond
// either bound cannot be expressed and are reported by the scheduler.
type Dialect struct {
	MaxDup   int
	MaxSwap  int
	builtins map[string]*Builtin
	order    []string
}

var evmBuiltins = []Builtin{
	{Name: "stop", Op: STOP, Terminal: true},
	{Name: "add", Op: ADD, Args: 2, Rets: 1},
	{Name: "mul", Op: MUL, Args: 2, Rets: 1},
	{Name: "sub", Op: SUB, Args: 2, Rets: 1},
	{Name: "div", Op: DIV, Args: 2, Rets: 1},
	{Name: "sdiv", Op: SDIV, Args: 2, Rets: 1},
	{Name: "mod", Op: MOD, Args: 2, Rets: 1},
	{Name: "smod", Op: SMOD, Args: 2, Rets: 1},
	{Name: "addmod", Op: ADDMOD, Args: 3, Rets: 1},
	{Name: "mulmod", Op: MULMOD, Args: 3, Rets: 1},
	{Name: "exp", Op: EXP, Args: 2, Rets: 1},
	{Name: "signextend", Op: SIGNEXTEND, Args: 2, Rets: 1},
	{Name: "lt", Op: LT, Args: 2, Rets: 1},
	{Name: "gt", Op: GT, Args: 2, Rets: 1},
	{Name: "slt", Op: SLT, Args: 2, Rets: 1},
	{Name: "sgt", Op: SGT, Args: 2, Rets: 1},
	{Name: "eq", Op: EQ, Args: 2, Rets: 1},
	{Name: "iszero", Op: ISZERO, Args: 1, Rets: 1},
	{Name: "and", Op: AND, Args: 2, Rets: 1},
	{Name: "or", Op: OR, Args: 2, Rets: 1},
	{Name: "xor", Op: XOR, Args: 2, Rets: 1},
	{Name: "not", Op: NOT, Args: 1, Rets: 1},
	{Name: "byte", Op: BYTE, Args: 2, Rets: 1},
	{Name: "shl", Op: SHL, Args: 2, Rets: 1},
	{Name: "shr", Op: SHR, Args: 2, Rets: 1},
	{Name: "sar", Op: SAR, Args: 2, Rets: 1},
	{Name: "keccak256", Op: KECCAK256, Args: 2, Rets: 1},
	{Name: "address", Op: ADDRESS, Rets: 1},
	{Name: "balance", Op: BALANCE, Args: 1, Rets: 1},
	{Name: "origin", Op: ORIGIN, Rets: 1},
	{Name: "caller", Op: CALLER, Rets: 1},
	{Name: "callvalue", Op: CALLVALUE, Rets: 1},
	{Name: "calldataload", Op: CALLDATALOAD, Args: 1, Rets: 1},
	{Name: "calldatasize", Op: CALLDATASIZE, Rets: 1},
	{Name: "calldatacopy", Op: CALLDATACOPY, Args: 3},
	{Name: "codesize", Op: CODESIZE, Rets: 1},
	{Name: "codecopy", Op: CODECOPY, Args: 3},
	{Name: "gasprice", Op: GASPRICE, Rets: 1},
	{Name: "extcodesize", Op: EXTCODESIZE, Args: 1, Rets: 1},
	{Name: "extcodecopy", Op: EXTCODECOPY, Args: 4},
	{Name: "returndatasize", Op: RETURNDATASIZE, Rets: 1},
	{Name: "returndatacopy", Op: RETURNDATACOPY, Args: 3},
	{Name: "extcodehash", Op: EXTCODEHASH, Args: 1, Rets: 1},
	{Name: "blockhash", Op: BLOCKHASH, Args: 1, Rets: 1},
	{Name: "coinbase", Op: COINBASE, Rets: 1},
	{Name: "timestamp", Op: TIMESTAMP, Rets: 1},
	{Name: "number", Op: NUMBER, Rets: 1},
	{Name: "prevrandao", Op: PREVRANDAO, Rets: 1},
	{Name: "gaslimit", Op: GASLIMIT, Rets: 1},
	{Name: "chainid", Op: CHAINID, Rets: 1},
	{Name: "selfbalance", Op: SELFBALANCE, Rets: 1},
	{Name: "basefee", Op: BASEFEE, Rets: 1},
	{Name: "pop", Op: POP, Args: 1},
	{Name: "mload", Op: MLOAD, Args: 1, Rets: 1},
	{Name: "mstore", Op: MSTORE, Args: 2},
	{Name: "mstore8", Op: MSTORE8, Args: 2},
	{Name: "sload", Op: SLOAD, Args: 1, Rets: 1},
	{Name: "sstore", Op: SSTORE, Args: 2},
	{Name: "msize", Op: MSIZE, Rets: 1},
	{Name: "gas", Op: GAS, Rets: 1},
	{Name: "tload", Op: TLOAD, Args: 1, Rets: 1},
	{Name: "tstore", Op: TSTORE, Args: 2},
	{Name: "mcopy", Op: MCOPY, Args: 3},
	{Name: "log0", Op: LOG0, Args: 2},
	{Name: "log1", Op: LOG0 + 1, Args: 3},
	{Name: "log2", Op: LOG0 + 2, Args: 4},
	{Name: "log3", Op: LOG0 + 3, Args: 5},
	{Name: "log4", Op: LOG4, Args: 6},
	{Name: "create", Op: CREATE, Args: 3, Rets: 1},
	{Name: "call", Op: CALL, Args: 7, Rets: 1},
	{Name: "callcode", Op: CALLCODE, Args: 7, Rets: 1},
	{Name: "return", Op: RETURN, Args: 2, Terminal: true},
	{Name: "delegatecall", Op: DELEGATECALL, Args: 6, Rets: 1},
	{Name: "create2", Op: CREATE2, Args: 4, Rets: 1},
	{Name: "staticcall", Op: STATICCALL, Args: 6, Rets: 1},
	{Name: "revert", Op: REVERT, Args: 2, Terminal: true},
	{Name: "invalid", Op: INVALID, Terminal: true},
	{Name: "selfdestruct", Op: SELFDESTRUCT, Args: 1, Terminal: true},
}

// DefaultDialect returns the EVM dialect: DUP1..DUP16, SWAP1..SWAP16 and
// the builtin table above.
func DefaultDialect() *Dialect {
	d := &Dialect{
		MaxDup:   16,
		MaxSwap:  16,
		builtins: make(map[string]*Builtin, len(evmBuiltins)),
		order:    make([]string, 0, len(evmBuiltins)),
	}
	for i := range evmBuiltins {
		b := &evmBuiltins[i]
		d.builtins[b.Name] = b
		d.order = append(d.order, b.Name)
	}
	return d
}

// Builtin looks up a builtin by name.
func (d *Dialect) Builtin(name string) (*Builtin, bool) {
	b, ok := d.builtins[name]
	return b, ok
}

// MustBuiltin looks up a builtin by name and faults if it does not exist.
func (d *Dialect) MustBuiltin(name string) *Builtin {
	b, ok := d.builtins[name]
	if !ok {
		fault("unknown builtin %q", name)
	}
	return b
}

// Builtins returns all builtins in table order.
func (d *Dialect) Builtins() []*Builtin {
	out := make([]*Builtin, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.builtins[name])
	}
	return out
}
