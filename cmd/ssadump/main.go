// ssadump prints the SSA control-flow graphs of a unit description,
// optionally annotated with liveness, as a debugging aid for the code
// generator.
//
// Usage:
//
//	ssadump [-liveness] unit.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Chulaverse/solidity/evmasm"
	"github.com/Chulaverse/solidity/ssacfg"
)

func main() {
	liveness := flag.Bool("liveness", false, "annotate blocks and operations with live value sets")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: ssadump [-liveness] unit.yaml\n")
		os.Exit(1)
	}
	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ssadump: %v\n", err)
		os.Exit(1)
	}
	prog, err := ssacfg.Decode(src, evmasm.DefaultDialect())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ssadump: %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	fmt.Print(ssacfg.FormatProgram(prog, *liveness))
}
