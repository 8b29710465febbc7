// evmdis prints a disassembly of EVM bytecode, read either as raw
// bytes or as hex text (the yulc -format hex output).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Chulaverse/solidity/evmasm"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: evmdis code.bin")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
	code := data
	if text := strings.TrimSpace(string(data)); isHexText(text) {
		code, err = hex.DecodeString(strings.TrimPrefix(text, "0x"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "decode: %v\n", err)
			os.Exit(1)
		}
	}
	out, err := evmasm.Disassemble(code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "disassemble: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
	fmt.Printf("code size: %d bytes\n", len(code))
}

func isHexText(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
