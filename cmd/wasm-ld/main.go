package main

import (
	"os"

	"github.com/wippyai/wasm-ld/linker"
)

func main() {
	if err := linker.Link(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
