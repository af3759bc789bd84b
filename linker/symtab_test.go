package linker

import (
	"errors"
	"io"
	"testing"

	lderrors "github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

func newTestSymtab() (*SymbolTable, *ObjectFile, *ObjectFile) {
	st := NewSymbolTable(NewConfig(), NewDiagnostics(io.Discard, false))
	fa := &ObjectFile{name: "a.o", Obj: &wasm.Object{}}
	fb := &ObjectFile{name: "b.o", Obj: &wasm.Object{}}
	return st, fa, fb
}

func TestResolveWeakThenStrong(t *testing.T) {
	st, fa, fb := newTestSymtab()
	weak := &wasm.Symbol{Name: "g", Type: wasm.SymFunctionExport, Flags: wasm.SymbolFlagWeak}
	strong := &wasm.Symbol{Name: "g", Type: wasm.SymFunctionExport}

	s1, err := st.AddDefined(fa, weak)
	if err != nil {
		t.Fatalf("weak define: %v", err)
	}
	s2, err := st.AddDefined(fb, strong)
	if err != nil {
		t.Fatalf("strong define over weak: %v", err)
	}
	if s1 != s2 {
		t.Fatal("interning broke: two symbols for one name")
	}
	if s2.File != fb {
		t.Errorf("strong definition did not win: file %v", s2.File.Name())
	}

	// A later weak definition does not displace the strong one.
	if _, err := st.AddDefined(fa, weak); err != nil {
		t.Fatalf("weak after strong: %v", err)
	}
	if s2.File != fb {
		t.Error("weak definition displaced the strong one")
	}
}

func TestResolveDuplicateStrong(t *testing.T) {
	st, fa, fb := newTestSymtab()
	strong := &wasm.Symbol{Name: "g", Type: wasm.SymFunctionExport}

	if _, err := st.AddDefined(fa, strong); err != nil {
		t.Fatalf("first define: %v", err)
	}
	_, err := st.AddDefined(fb, strong)
	if err == nil {
		t.Fatal("expected duplicate symbol error")
	}
	target := &lderrors.Error{Phase: lderrors.PhaseResolve, Kind: lderrors.KindDuplicateSymbol}
	if !errors.Is(err, target) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestResolveUndefinedThenDefined(t *testing.T) {
	st, fa, fb := newTestSymtab()
	ref := &wasm.Symbol{Name: "f", Type: wasm.SymFunctionImport}
	def := &wasm.Symbol{Name: "f", Type: wasm.SymFunctionExport}

	s, err := st.AddUndefined(fa, ref)
	if err != nil {
		t.Fatalf("undefined: %v", err)
	}
	if !s.IsUndefined() || !s.IsFunction() {
		t.Fatalf("kind after reference: %v", s.Kind)
	}

	if _, err := st.AddDefined(fb, def); err != nil {
		t.Fatalf("define over undefined: %v", err)
	}
	if !s.IsDefined() || s.File != fb {
		t.Errorf("definition did not install: kind=%v", s.Kind)
	}

	// Further references keep the definition.
	if _, err := st.AddUndefined(fa, ref); err != nil {
		t.Fatalf("reference after definition: %v", err)
	}
	if !s.IsDefined() {
		t.Error("reference displaced the definition")
	}
}

func TestResolveShapeMismatch(t *testing.T) {
	st, fa, fb := newTestSymtab()
	fnRef := &wasm.Symbol{Name: "x", Type: wasm.SymFunctionImport}
	globalDef := &wasm.Symbol{Name: "x", Type: wasm.SymGlobalExport}

	if _, err := st.AddUndefined(fa, fnRef); err != nil {
		t.Fatalf("undefined: %v", err)
	}
	_, err := st.AddDefined(fb, globalDef)
	if err == nil {
		t.Fatal("expected shape mismatch")
	}
	target := &lderrors.Error{Phase: lderrors.PhaseResolve, Kind: lderrors.KindTypeMismatch}
	if !errors.Is(err, target) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestSyntheticSymbols(t *testing.T) {
	st, _, _ := newTestSymtab()

	g, err := st.AddDefinedGlobal("__stack_pointer")
	if err != nil {
		t.Fatalf("AddDefinedGlobal: %v", err)
	}
	if g.Kind != DefinedGlobalKind || g.File != nil || g.WasmSymbol != nil {
		t.Errorf("synthetic global state: %+v", g)
	}

	f, err := st.AddUndefinedFunction("_start")
	if err != nil {
		t.Fatalf("AddUndefinedFunction: %v", err)
	}
	if f.Kind != UndefinedFunctionKind {
		t.Errorf("synthetic function kind: %v", f.Kind)
	}

	if st.Find("__stack_pointer") != g || st.Find("_start") != f {
		t.Error("Find does not return interned symbols")
	}
	if st.Find("missing") != nil {
		t.Error("Find invented a symbol")
	}
}

func TestOutputIndexAssignedOnce(t *testing.T) {
	s := &Symbol{Name: "x"}
	s.SetOutputIndex(3)
	if !s.HasOutputIndex() || s.OutputIndex() != 3 {
		t.Fatal("index not recorded")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double assignment")
		}
	}()
	s.SetOutputIndex(4)
}
