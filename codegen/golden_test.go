package codegen

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

// TestGolden generates every archive under testdata. Each archive holds
// a "unit.yaml" input, the expected "listing" and, when the schedule is
// not clean, the expected "errors" one per line. Listings compare with
// collapsed whitespace so the goldens need not reproduce column padding.
func TestGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no golden archives under testdata")
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			var unit, wantListing, wantErrors string
			for _, f := range ar.Files {
				switch f.Name {
				case "unit.yaml":
					unit = string(f.Data)
				case "listing":
					wantListing = string(f.Data)
				case "errors":
					wantErrors = string(f.Data)
				default:
					t.Fatalf("unexpected archive member %q", f.Name)
				}
			}
			d := evmasm.DefaultDialect()
			prog, err := ssacfg.Decode([]byte(unit), d)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			asm := evmasm.NewAssembler()
			errs := Run(asm, prog, d, evmasm.NamedLabelsIfAvailable)

			var diags strings.Builder
			for _, e := range errs {
				diags.WriteString(e.Error())
				diags.WriteByte('\n')
			}
			if got, want := normalizeLines(diags.String()), normalizeLines(wantErrors); got != want {
				t.Errorf("diagnostics:\n%s\nwant:\n%s", got, want)
			}
			if got, want := normalizeLines(asm.Listing()), normalizeLines(wantListing); got != want {
				t.Errorf("listing:\n%s\nwant:\n%s", got, want)
			}
			if _, err := asm.Bytecode(); err != nil {
				t.Errorf("bytecode: %v", err)
			}
		})
	}
}

// normalizeLines collapses horizontal whitespace and trailing newlines
// so listings compare by content rather than alignment.
func normalizeLines(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
