package linker

import (
	"github.com/wippyai/wasm-ld/ar"
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// InputFile is a file named on the command line or pulled from an
// archive: either an object file or an archive file.
type InputFile interface {
	Name() string
	parse(st *SymbolTable) error
}

// ObjectFile is a single relocatable wasm object together with the index
// renumbering state the layout planner assigns to it.
type ObjectFile struct {
	name string
	data []byte

	// ParentName is the archive this object was pulled from, if any.
	ParentName string

	// Obj is the parsed read-only view.
	Obj *wasm.Object

	// Symbols holds the symbol table entries for this input's import and
	// export records, in the input's traversal order.
	Symbols []*Symbol

	// FunctionImports and GlobalImports index this input's import
	// records by their position within each import kind.
	FunctionImports []*Symbol
	GlobalImports   []*Symbol

	// Renumbering offsets, zero until the layout planner sets them.
	TypeIndexOffset     uint32
	FunctionIndexOffset uint32
	GlobalIndexOffset   uint32
	TableIndexOffset    uint32
	DataOffset          uint32
	CodeSectionOffset   uint32
}

// NewObjectFile creates an object input from raw file bytes. Parsing
// happens when the file is added to the symbol table.
func NewObjectFile(name string, data []byte) *ObjectFile {
	return &ObjectFile{name: name, data: data}
}

func (f *ObjectFile) Name() string { return f.name }

func (f *ObjectFile) parse(st *SymbolTable) error {
	obj, err := wasm.ParseObject(f.name, f.data)
	if err != nil {
		return errors.InvalidData(f.name, "malformed wasm object", err)
	}
	f.Obj = obj
	f.data = nil

	for i := range obj.Symbols {
		ws := &obj.Symbols[i]
		switch ws.Type {
		case wasm.SymFunctionImport, wasm.SymGlobalImport:
			sym, err := st.AddUndefined(f, ws)
			if err != nil {
				return err
			}
			f.Symbols = append(f.Symbols, sym)
			if ws.Type == wasm.SymFunctionImport {
				f.FunctionImports = append(f.FunctionImports, sym)
			} else {
				f.GlobalImports = append(f.GlobalImports, sym)
			}
		case wasm.SymFunctionExport, wasm.SymGlobalExport:
			sym, err := st.AddDefined(f, ws)
			if err != nil {
				return err
			}
			f.Symbols = append(f.Symbols, sym)
		case wasm.SymDebugFunctionName:
			// Name-section entries never enter the symbol table.
		}
	}
	return nil
}

// RelocateTypeIndex maps a local type index into the output type space.
func (f *ObjectFile) RelocateTypeIndex(i uint32) uint32 {
	return f.TypeIndexOffset + i
}

// RelocateFunctionIndex maps a local function index into the output
// function space. A function import resolved to a definition elsewhere
// yields the defining function's index; an unresolved import yields its
// assigned import index.
func (f *ObjectFile) RelocateFunctionIndex(i uint32) uint32 {
	if int(i) < len(f.FunctionImports) {
		return f.FunctionImports[i].OutputIndex()
	}
	return f.FunctionIndexOffset + i
}

// RelocateGlobalIndex maps a local global index into the output global
// space. Meaningful in relocatable output only; in executable output
// global references are materialized as addresses via GlobalAddress.
func (f *ObjectFile) RelocateGlobalIndex(i uint32) uint32 {
	return f.GlobalIndexOffset + i
}

// RelocateTableIndex maps a local table slot into the concatenated
// output table.
func (f *ObjectFile) RelocateTableIndex(i uint32) uint32 {
	return f.TableIndexOffset + i
}

// RelocateCodeOffset maps a code-section byte offset into the output
// code section.
func (f *ObjectFile) RelocateCodeOffset(o uint32) uint32 {
	return f.CodeSectionOffset + o
}

// GlobalAddress returns the final linear-memory address of the object
// addressed by local global i: the input's data block base plus the
// global's initial value.
func (f *ObjectFile) GlobalAddress(i uint32) uint32 {
	return f.DataOffset + uint32(f.Obj.Globals[i].Init.Value)
}

// IsResolvedFunctionImport reports whether function index i is an import
// of this input that resolved to a definition in another input.
func (f *ObjectFile) IsResolvedFunctionImport(i uint32) bool {
	if !f.Obj.IsImportedFunction(i) {
		return false
	}
	return f.FunctionImports[i].IsDefined()
}

func (f *ObjectFile) dumpInfo() {
	debugf("info for %s", f.name)
	debugf("  type index offset:     %d", f.TypeIndexOffset)
	debugf("  function index offset: %d", f.FunctionIndexOffset)
	debugf("  global index offset:   %d", f.GlobalIndexOffset)
	debugf("  table index offset:    %d", f.TableIndexOffset)
	debugf("  data offset:           %#x", f.DataOffset)
	debugf("  function imports:      %d", len(f.FunctionImports))
	debugf("  global imports:        %d", len(f.GlobalImports))
}

// ArchiveFile is an archive input whose members are pulled on demand as
// undefined references to their symbols appear.
type ArchiveFile struct {
	name    string
	data    []byte
	archive *ar.Archive
	loaded  map[uint32]bool
}

// NewArchiveFile creates an archive input from raw file bytes.
func NewArchiveFile(name string, data []byte) *ArchiveFile {
	return &ArchiveFile{name: name, data: data, loaded: make(map[uint32]bool)}
}

func (f *ArchiveFile) Name() string { return f.name }

func (f *ArchiveFile) parse(st *SymbolTable) error {
	archive, err := ar.Parse(f.name, f.data)
	if err != nil {
		return errors.InvalidData(f.name, "malformed archive", err)
	}
	f.archive = archive
	f.data = nil

	for i := range archive.Symbols {
		if err := st.AddLazy(f, &archive.Symbols[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddMember pulls the archive member defining sym into the link. Members
// already pulled are not re-entered; cycles between members are safe
// because the symbol table entry exists before its member is parsed.
func (f *ArchiveFile) AddMember(st *SymbolTable, sym *ar.Symbol) error {
	if f.loaded[sym.Offset] {
		return nil
	}
	f.loaded[sym.Offset] = true

	member, err := f.archive.Member(sym.Offset)
	if err != nil {
		return errors.InvalidData(f.name, "archive member", err)
	}
	return st.addArchiveBuffer(f, member, sym.Name)
}
