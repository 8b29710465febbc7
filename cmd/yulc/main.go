// yulc compiles an SSA unit description to EVM bytecode.
//
// Usage:
//
//	yulc [-o output] [-format hex|bin|asm] [-names never|fallback|unique] [-v] unit.yaml
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Chulaverse/solidity/codegen"
	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

var namings = map[string]evmasm.LabelNaming{
	"never":    evmasm.NamedLabelsNever,
	"fallback": evmasm.NamedLabelsIfAvailable,
	"unique":   evmasm.NamedLabelsForceUnique,
}

func main() {
	output := flag.String("o", "", "output file (default: standard output)")
	format := flag.String("format", "hex", "output format: hex, bin or asm")
	names := flag.String("names", "fallback", "function label naming: never, fallback or unique")
	verbose := flag.Bool("v", false, "log scheduling decisions")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: yulc [-o output] [-format hex|bin|asm] [-names never|fallback|unique] [-v] unit.yaml\n")
		os.Exit(1)
	}
	naming, ok := namings[*names]
	if !ok {
		fmt.Fprintf(os.Stderr, "yulc: unknown naming policy %q\n", *names)
		os.Exit(1)
	}
	if *verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "yulc: %v\n", err)
		os.Exit(1)
	}
	dialect := evmasm.DefaultDialect()
	prog, err := ssacfg.Decode(src, dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yulc: %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	asm := evmasm.NewAssembler()
	errs := codegen.Run(asm, prog, dialect, naming)
	slog.Debug("program scheduled", "violations", len(errs), "maxHeight", asm.MaxHeight())
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "yulc: %v\n", e)
	}
	if len(errs) > 0 {
		os.Exit(1)
	}

	var out []byte
	switch *format {
	case "asm":
		out = []byte(asm.Listing())
	case "hex", "bin":
		code, err := asm.Bytecode()
		if err != nil {
			fmt.Fprintf(os.Stderr, "yulc: %v\n", err)
			os.Exit(1)
		}
		if *format == "hex" {
			out = []byte(hex.EncodeToString(code) + "\n")
		} else {
			out = code
		}
	default:
		fmt.Fprintf(os.Stderr, "yulc: unknown format %q\n", *format)
		os.Exit(1)
	}

	if *output == "" {
		if _, err := os.Stdout.Write(out); err != nil {
			fmt.Fprintf(os.Stderr, "yulc: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := os.WriteFile(*output, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "yulc: %v\n", err)
		os.Exit(1)
	}
}
