package linker

import (
	"github.com/wippyai/wasm-ld/wasm"
)

// SyntheticGlobal is a module-level global injected by the linker,
// paired with the symbol table entry that names it.
type SyntheticGlobal struct {
	Sym    *Symbol
	Global wasm.Global
}

// Config holds the options for one link. It is built once by the driver
// and not mutated afterwards, with a single exception: the stack pointer
// synthetic global's initial value is filled in during memory layout.
type Config struct {
	Entry         string
	ExportEntryAs string

	Relocatable    bool
	EmitRelocs     bool
	AllowUndefined bool
	StripAll       bool
	StripDebug     bool
	Verbose        bool
	Check          bool

	AllowUndefinedSymbols map[string]bool
	SearchPaths           []string
	Sysroot               string
	OutputFile            string

	InitialMemory uint32
	MaxMemory     uint32
	StackSize     uint32

	SyntheticGlobals []*SyntheticGlobal
}

// NewConfig returns a Config with the default option values.
func NewConfig() *Config {
	return &Config{
		OutputFile:            "a.out",
		StackSize:             wasm.PageSize,
		AllowUndefinedSymbols: make(map[string]bool),
	}
}
