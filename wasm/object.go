package wasm

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValAnyFunc:
		return "anyfunc"
	case ValNone:
		return "none"
	default:
		return "unknown"
	}
}

// Signature is a function type: parameter types and at most one result.
type Signature struct {
	Params []ValType
	Result ValType // ValNone when the function returns nothing
}

// Import represents an imported function or global.
type Import struct {
	Module   string
	Field    string
	Kind     byte
	SigIndex uint32     // KindFunc: type index in the importing module
	Global   GlobalType // KindGlobal: type of the imported global
}

// Export describes an exported item. For functions the index is into the
// module's function index space (imports first, then defined functions).
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// InitExpr is a constant initializer expression.
type InitExpr struct {
	Opcode byte
	Value  int64 // I32/I64 literal, or global index for OpGlobalGet
}

// Global represents a defined global variable.
type Global struct {
	Type GlobalType
	Init InitExpr
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Flags   uint32
	Initial uint32
	Max     uint32 // valid when Flags has LimitsHasMax
}

// Table describes a table declaration.
type Table struct {
	ElemType ValType
	Limits   Limits
}

// Memory describes a linear memory declaration.
type Memory struct {
	Limits Limits
}

// ElemSegment is a table element segment.
type ElemSegment struct {
	TableIndex uint32
	Offset     InitExpr
	Functions  []uint32
}

// DataSegment is a linear memory data segment.
type DataSegment struct {
	MemoryIndex uint32
	Offset      InitExpr
	Content     []byte
}

// Relocation is a patch record attached to a section: rewrite the bytes at
// Offset (relative to the section contents) with the final value for Index.
type Relocation struct {
	Type   RelocType
	Offset uint32
	Index  uint32
	Addend int64
}

// Section holds a section's raw contents together with its relocations.
// For the code section Content includes the leading function-body count.
type Section struct {
	Content     []byte
	Relocations []Relocation
}

// Symbol is a named entity record of an object file. Import and export
// symbols carry the index of their import or export record in ElementIndex;
// debug function names carry the function index they name.
type Symbol struct {
	Name         string
	Type         SymbolType
	ElementIndex uint32
	Flags        uint32
}

// IsWeak reports whether the symbol's definition may be overridden.
func (s *Symbol) IsWeak() bool {
	return s.Flags&SymbolFlagWeak != 0
}

// IsFunction reports whether the symbol names a function.
func (s *Symbol) IsFunction() bool {
	return s.Type == SymFunctionImport || s.Type == SymFunctionExport
}

// Object is the read-only view over a parsed wasm object file.
type Object struct {
	Name string

	Signatures    []Signature
	FunctionTypes []uint32 // type index per defined function
	Imports       []Import
	Exports       []Export
	Globals       []Global
	Tables        []Table
	Memories      []Memory
	Elements      []ElemSegment
	DataSegments  []DataSegment

	CodeSection *Section
	DataSection *Section

	Symbols []Symbol
}

// NumFunctionImports returns the number of imported functions.
func (o *Object) NumFunctionImports() int {
	n := 0
	for _, imp := range o.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

// NumGlobalImports returns the number of imported globals.
func (o *Object) NumGlobalImports() int {
	n := 0
	for _, imp := range o.Imports {
		if imp.Kind == KindGlobal {
			n++
		}
	}
	return n
}

// IsImportedFunction reports whether index refers to an imported function
// in the object's function index space.
func (o *Object) IsImportedFunction(index uint32) bool {
	return index < uint32(o.NumFunctionImports())
}
