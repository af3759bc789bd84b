package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-ld/wasm"
)

// testObject builds an object with one imported and one defined function,
// a global, a data segment, code relocations, a weak flag, and a debug
// function name.
func testObject() *wasm.Object {
	body := []byte{0x00, 0x10, 0x81, 0x80, 0x80, 0x80, 0x00, 0x0B} // call 1 (padded)
	var code bytes.Buffer
	wasm.WriteLEB128u(&code, 1)
	wasm.WriteLEB128u(&code, uint32(len(body)))
	code.Write(body)

	return &wasm.Object{
		Name: "test.o",
		Signatures: []wasm.Signature{
			{Params: nil, Result: wasm.ValI32},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Result: wasm.ValNone},
		},
		FunctionTypes: []uint32{0},
		Imports: []wasm.Import{
			{Module: "env", Field: "ext", Kind: wasm.KindFunc, SigIndex: 0},
			{Module: "env", Field: "base", Kind: wasm.KindGlobal,
				Global: wasm.GlobalType{Type: wasm.ValI32}},
		},
		Exports: []wasm.Export{
			{Name: "run", Kind: wasm.KindFunc, Index: 1},
			{Name: "tls", Kind: wasm.KindGlobal, Index: 0},
		},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{Type: wasm.ValI32},
				Init: wasm.InitExpr{Opcode: wasm.OpI32Const, Value: 16}},
		},
		Tables:   []wasm.Table{{ElemType: wasm.ValAnyFunc, Limits: wasm.Limits{Initial: 2}}},
		Memories: []wasm.Memory{{Limits: wasm.Limits{Initial: 1}}},
		Elements: []wasm.ElemSegment{
			{TableIndex: 0, Offset: wasm.InitExpr{Opcode: wasm.OpI32Const, Value: 0},
				Functions: []uint32{1, 0}},
		},
		DataSegments: []wasm.DataSegment{
			{MemoryIndex: 0, Offset: wasm.InitExpr{Opcode: wasm.OpI32Const, Value: 16},
				Content: []byte("hello")},
		},
		CodeSection: &wasm.Section{
			Content: code.Bytes(),
			Relocations: []wasm.Relocation{
				{Type: wasm.RelocFunctionIndexLEB, Offset: 3, Index: 1},
				{Type: wasm.RelocGlobalAddrLEB, Offset: 3, Index: 0, Addend: 4},
			},
		},
		Symbols: []wasm.Symbol{
			{Name: "ext", Type: wasm.SymFunctionImport, ElementIndex: 0},
			{Name: "base", Type: wasm.SymGlobalImport, ElementIndex: 1},
			{Name: "run", Type: wasm.SymFunctionExport, ElementIndex: 0, Flags: wasm.SymbolFlagWeak},
			{Name: "tls", Type: wasm.SymGlobalExport, ElementIndex: 1},
			{Name: "run", Type: wasm.SymDebugFunctionName, ElementIndex: 1},
		},
	}
}

func TestObjectRoundTrip(t *testing.T) {
	obj := testObject()
	data := obj.Encode()

	parsed, err := wasm.ParseObject("test.o", data)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}

	if len(parsed.Signatures) != 2 {
		t.Fatalf("signatures: got %d, want 2", len(parsed.Signatures))
	}
	if parsed.Signatures[0].Result != wasm.ValI32 {
		t.Errorf("signature 0 result: got %v", parsed.Signatures[0].Result)
	}
	if len(parsed.Signatures[1].Params) != 2 || parsed.Signatures[1].Result != wasm.ValNone {
		t.Errorf("signature 1 mismatch: %+v", parsed.Signatures[1])
	}

	if parsed.NumFunctionImports() != 1 || parsed.NumGlobalImports() != 1 {
		t.Errorf("import counts: %d func, %d global",
			parsed.NumFunctionImports(), parsed.NumGlobalImports())
	}
	if parsed.Imports[1].Global.Type != wasm.ValI32 {
		t.Errorf("global import type: %v", parsed.Imports[1].Global.Type)
	}

	if len(parsed.Exports) != 2 || parsed.Exports[0].Index != 1 {
		t.Errorf("exports mismatch: %+v", parsed.Exports)
	}

	if len(parsed.Globals) != 1 || parsed.Globals[0].Init.Value != 16 {
		t.Errorf("globals mismatch: %+v", parsed.Globals)
	}

	if len(parsed.Tables) != 1 || parsed.Tables[0].Limits.Initial != 2 {
		t.Errorf("tables mismatch: %+v", parsed.Tables)
	}
	if len(parsed.Memories) != 1 || parsed.Memories[0].Limits.Initial != 1 {
		t.Errorf("memories mismatch: %+v", parsed.Memories)
	}

	if len(parsed.Elements) != 1 || len(parsed.Elements[0].Functions) != 2 {
		t.Fatalf("elements mismatch: %+v", parsed.Elements)
	}
	if parsed.Elements[0].Functions[0] != 1 {
		t.Errorf("element functions: %v", parsed.Elements[0].Functions)
	}

	if len(parsed.DataSegments) != 1 {
		t.Fatalf("data segments: got %d", len(parsed.DataSegments))
	}
	seg := parsed.DataSegments[0]
	if seg.Offset.Value != 16 || string(seg.Content) != "hello" {
		t.Errorf("data segment mismatch: %+v", seg)
	}

	if parsed.CodeSection == nil {
		t.Fatal("missing code section")
	}
	if !bytes.Equal(parsed.CodeSection.Content, obj.CodeSection.Content) {
		t.Error("code content mismatch")
	}
	if len(parsed.CodeSection.Relocations) != 2 {
		t.Fatalf("code relocations: got %d", len(parsed.CodeSection.Relocations))
	}
	rel := parsed.CodeSection.Relocations[1]
	if rel.Type != wasm.RelocGlobalAddrLEB || rel.Addend != 4 {
		t.Errorf("reloc mismatch: %+v", rel)
	}
}

func TestObjectSymbolOrder(t *testing.T) {
	obj := testObject()
	parsed, err := wasm.ParseObject("test.o", obj.Encode())
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}

	// Imports first, then exports, then debug names.
	wantTypes := []wasm.SymbolType{
		wasm.SymFunctionImport,
		wasm.SymGlobalImport,
		wasm.SymFunctionExport,
		wasm.SymGlobalExport,
		wasm.SymDebugFunctionName,
	}
	if len(parsed.Symbols) != len(wantTypes) {
		t.Fatalf("symbols: got %d, want %d", len(parsed.Symbols), len(wantTypes))
	}
	for i, want := range wantTypes {
		if parsed.Symbols[i].Type != want {
			t.Errorf("symbol %d: got %v, want %v", i, parsed.Symbols[i].Type, want)
		}
	}

	// The weak flag round-trips through the linking section.
	if !parsed.Symbols[2].IsWeak() {
		t.Error("export symbol lost its weak flag")
	}
	if parsed.Symbols[0].IsWeak() {
		t.Error("import symbol gained a weak flag")
	}
}

func TestParseObjectRejectsGarbage(t *testing.T) {
	if _, err := wasm.ParseObject("bad", []byte("not wasm at all")); err == nil {
		t.Fatal("expected error for bad magic")
	}
	if _, err := wasm.ParseObject("short", []byte{0, 'a', 's', 'm'}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
