package evmasm

import "testing"

func TestDefaultDialect(t *testing.T) {
	d := DefaultDialect()
	if d.MaxDup != 16 || d.MaxSwap != 16 {
		t.Fatalf("reach = (%d, %d), want (16, 16)", d.MaxDup, d.MaxSwap)
	}

	tests := []struct {
		name     string
		op       OpCode
		args     int
		rets     int
		terminal bool
	}{
		{"add", ADD, 2, 1, false},
		{"iszero", ISZERO, 1, 1, false},
		{"caller", CALLER, 0, 1, false},
		{"sstore", SSTORE, 2, 0, false},
		{"pop", POP, 1, 0, false},
		{"log3", LOG0 + 3, 5, 0, false},
		{"call", CALL, 7, 1, false},
		{"stop", STOP, 0, 0, true},
		{"return", RETURN, 2, 0, true},
		{"revert", REVERT, 2, 0, true},
		{"invalid", INVALID, 0, 0, true},
		{"selfdestruct", SELFDESTRUCT, 1, 0, true},
	}
	for _, tt := range tests {
		b, ok := d.Builtin(tt.name)
		if !ok {
			t.Errorf("builtin %q missing", tt.name)
			continue
		}
		if b.Op != tt.op || b.Args != tt.args || b.Rets != tt.rets || b.Terminal != tt.terminal {
			t.Errorf("builtin %q = {%v %d %d %v}, want {%v %d %d %v}",
				tt.name, b.Op, b.Args, b.Rets, b.Terminal,
				tt.op, tt.args, tt.rets, tt.terminal)
		}
	}

	if _, ok := d.Builtin("jump"); ok {
		t.Error("jump must not be a builtin; control flow belongs to the scheduler")
	}
}

// Every builtin's declared arity must agree with the stack behavior of
// the instruction it lowers to.
func TestBuiltinAritiesMatchStackDeltas(t *testing.T) {
	for _, b := range DefaultDialect().Builtins() {
		pops, pushes := StackDelta(b.Op)
		if pops != b.Args || pushes != b.Rets {
			t.Errorf("builtin %q declares (%d, %d) but %v has stack delta (%d, %d)",
				b.Name, b.Args, b.Rets, b.Op, pops, pushes)
		}
	}
}

func TestMustBuiltinFaults(t *testing.T) {
	d := DefaultDialect()
	if b := d.MustBuiltin("add"); b.Op != ADD {
		t.Fatalf("MustBuiltin(add).Op = %v, want ADD", b.Op)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a fault for an unknown builtin")
		}
	}()
	d.MustBuiltin("frobnicate")
}
