package linker

import (
	"github.com/wippyai/wasm-ld/ar"
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// SymbolKind classifies a symbol table entry.
type SymbolKind int

const (
	DefinedFunctionKind SymbolKind = iota
	DefinedGlobalKind
	UndefinedFunctionKind
	UndefinedGlobalKind
	LazyKind
)

func (k SymbolKind) String() string {
	switch k {
	case DefinedFunctionKind:
		return "DefinedFunction"
	case DefinedGlobalKind:
		return "DefinedGlobal"
	case UndefinedFunctionKind:
		return "UndefinedFunction"
	case UndefinedGlobalKind:
		return "UndefinedGlobal"
	case LazyKind:
		return "Lazy"
	default:
		return "unknown"
	}
}

// Symbol is the linker's view of a named entity aggregated across inputs.
// One Symbol exists per distinct name; resolution updates it in place as
// inputs are ingested.
type Symbol struct {
	Name string
	Kind SymbolKind

	// File is the input that contributed the current definition or
	// reference; nil for synthesized symbols.
	File InputFile

	// WasmSymbol points into the contributing object's parse-immutable
	// symbol vector; nil for synthesized symbols.
	WasmSymbol *wasm.Symbol

	// ArchiveSymbol names the pullable member for LazyKind entries.
	ArchiveSymbol *ar.Symbol

	// WrittenToSymtab is transient state owned by the name section
	// emitter's deduplication passes.
	WrittenToSymtab bool

	outputIndex    uint32
	outputIndexSet bool
}

// IsDefined reports whether the symbol currently holds a definition.
func (s *Symbol) IsDefined() bool {
	return s.Kind == DefinedFunctionKind || s.Kind == DefinedGlobalKind
}

// IsUndefined reports whether the symbol is an unresolved reference.
func (s *Symbol) IsUndefined() bool {
	return s.Kind == UndefinedFunctionKind || s.Kind == UndefinedGlobalKind
}

// IsLazy reports whether the symbol names an unloaded archive member.
func (s *Symbol) IsLazy() bool {
	return s.Kind == LazyKind
}

// IsFunction reports whether the symbol names a function.
func (s *Symbol) IsFunction() bool {
	return s.Kind == DefinedFunctionKind || s.Kind == UndefinedFunctionKind
}

// IsWeak reports whether the symbol's current definition is weak.
func (s *Symbol) IsWeak() bool {
	return s.WasmSymbol != nil && s.WasmSymbol.IsWeak()
}

// HasOutputIndex reports whether layout has assigned an output index.
func (s *Symbol) HasOutputIndex() bool {
	return s.outputIndexSet
}

// OutputIndex returns the assigned output-module index.
func (s *Symbol) OutputIndex() uint32 {
	if !s.outputIndexSet {
		panic(errors.Internal("output index of %s read before assignment", s.Name))
	}
	return s.outputIndex
}

// SetOutputIndex assigns the output-module index. Assigning twice is a
// linker bug and panics.
func (s *Symbol) SetOutputIndex(index uint32) {
	if s.outputIndexSet {
		panic(errors.Internal("output index of %s assigned twice", s.Name))
	}
	debugf("assigning index for %s: %d kind=%s", s.Name, index, s.Kind)
	s.outputIndex = index
	s.outputIndexSet = true
}

func (s *Symbol) update(kind SymbolKind, file InputFile, ws *wasm.Symbol) {
	s.Kind = kind
	s.File = file
	s.WasmSymbol = ws
}

func (s *Symbol) objectFile() *ObjectFile {
	f, ok := s.File.(*ObjectFile)
	if !ok {
		panic(errors.Internal("symbol %s has no object file", s.Name))
	}
	return f
}

// FunctionTypeIndex returns the signature index the symbol's import record
// declares, in the referencing input's type space.
func (s *Symbol) FunctionTypeIndex() uint32 {
	imp := s.objectFile().Obj.Imports[s.WasmSymbol.ElementIndex]
	if imp.Kind != wasm.KindFunc {
		panic(errors.Internal("symbol %s is not a function import", s.Name))
	}
	return imp.SigIndex
}

// FunctionIndex returns the defining input's local function index.
func (s *Symbol) FunctionIndex() uint32 {
	exp := s.objectFile().Obj.Exports[s.WasmSymbol.ElementIndex]
	if exp.Kind != wasm.KindFunc {
		panic(errors.Internal("symbol %s is not a function export", s.Name))
	}
	return exp.Index
}

// GlobalIndex returns the defining input's local global index.
func (s *Symbol) GlobalIndex() uint32 {
	exp := s.objectFile().Obj.Exports[s.WasmSymbol.ElementIndex]
	if exp.Kind != wasm.KindGlobal {
		panic(errors.Internal("symbol %s is not a global export", s.Name))
	}
	return exp.Index
}
