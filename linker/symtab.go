package linker

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-ld/ar"
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// SymbolTable interns symbols by name and resolves definitions against
// references as inputs are ingested, pulling archive members on demand.
type SymbolTable struct {
	cfg  *Config
	diag *Diagnostics

	symbols map[string]*Symbol
	order   []*Symbol // interning order, for deterministic iteration

	// ObjectFiles lists every ingested object, in command-line order with
	// archive members spliced in at their pull point.
	ObjectFiles []*ObjectFile
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable(cfg *Config, diag *Diagnostics) *SymbolTable {
	return &SymbolTable{
		cfg:     cfg,
		diag:    diag,
		symbols: make(map[string]*Symbol),
	}
}

// AddFile parses an input and ingests its symbols. Object files are
// recorded for later iteration by the layout and emission phases.
func (st *SymbolTable) AddFile(f InputFile) error {
	Logger().Debug("processing", zap.String("file", f.Name()))
	if err := f.parse(st); err != nil {
		return err
	}
	if obj, ok := f.(*ObjectFile); ok {
		st.ObjectFiles = append(st.ObjectFiles, obj)
	}
	return nil
}

// Find returns the symbol with the given name, or nil.
func (st *SymbolTable) Find(name string) *Symbol {
	return st.symbols[name]
}

func (st *SymbolTable) insert(name string) (*Symbol, bool) {
	if s, ok := st.symbols[name]; ok {
		return s, false
	}
	s := &Symbol{Name: name}
	st.symbols[name] = s
	st.order = append(st.order, s)
	return s, true
}

// AddDefinedGlobal synthesizes a defined global with no backing object
// record, used for linker-injected globals such as __stack_pointer.
func (st *SymbolTable) AddDefinedGlobal(name string) (*Symbol, error) {
	s, inserted := st.insert(name)
	if inserted {
		s.update(DefinedGlobalKind, nil, nil)
		return s, nil
	}
	if s.IsFunction() {
		return nil, errors.TypeMismatch(name, fileName(s.File), "Function", "(internal)", "Global")
	}
	return s, nil
}

// AddDefined resolves a definition from an input against the existing
// entry for its name.
func (st *SymbolTable) AddDefined(f *ObjectFile, ws *wasm.Symbol) (*Symbol, error) {
	kind := DefinedFunctionKind
	if ws.Type == wasm.SymGlobalExport {
		kind = DefinedGlobalKind
	}

	s, inserted := st.insert(ws.Name)
	switch {
	case inserted:
		s.update(kind, f, ws)
	case !s.IsDefined():
		// The existing entry is undefined or lazy; the definition wins.
		if err := checkSymbolTypes(s, f, ws); err != nil {
			return nil, err
		}
		s.update(kind, f, ws)
	case ws.IsWeak():
		// The new definition is weak; keep the existing one.
	case s.IsWeak():
		// The existing definition is weak; the new one replaces it.
		s.update(kind, f, ws)
	default:
		return nil, errors.DuplicateSymbol(ws.Name, fileName(s.File), f.Name())
	}
	return s, nil
}

// AddUndefinedFunction synthesizes an undefined function reference, used
// for the entry point before any input mentions it.
func (st *SymbolTable) AddUndefinedFunction(name string) (*Symbol, error) {
	s, inserted := st.insert(name)
	if inserted {
		s.update(UndefinedFunctionKind, nil, nil)
		return s, nil
	}
	if !s.IsFunction() && !s.IsLazy() {
		return nil, errors.TypeMismatch(name, fileName(s.File), "Global", "(internal)", "Function")
	}
	return s, nil
}

// AddUndefined records an undefined reference. A lazy entry triggers the
// archive member load; a defined entry is shape-checked and kept.
func (st *SymbolTable) AddUndefined(f *ObjectFile, ws *wasm.Symbol) (*Symbol, error) {
	kind := UndefinedFunctionKind
	if ws.Type == wasm.SymGlobalImport {
		kind = UndefinedGlobalKind
	}

	s, inserted := st.insert(ws.Name)
	switch {
	case inserted:
		s.update(kind, f, ws)
	case s.IsLazy():
		debugf("resolving lazy symbol %s", ws.Name)
		af := s.File.(*ArchiveFile)
		if err := af.AddMember(st, s.ArchiveSymbol); err != nil {
			return nil, err
		}
	case s.IsDefined():
		if err := checkSymbolTypes(s, f, ws); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddLazy associates a not-yet-resolved name with a pullable archive
// member. A name already referenced undefined pulls the member at once.
func (st *SymbolTable) AddLazy(f *ArchiveFile, sym *ar.Symbol) error {
	s, inserted := st.insert(sym.Name)
	if inserted {
		s.update(LazyKind, f, nil)
		s.ArchiveSymbol = sym
		return nil
	}
	if s.IsUndefined() {
		debugf("undefined reference pulls %s from %s", sym.Name, f.Name())
		return f.AddMember(st, sym)
	}
	return nil
}

// addArchiveBuffer ingests a pulled archive member's bytes.
func (st *SymbolTable) addArchiveBuffer(f *ArchiveFile, member *ar.Member, symName string) error {
	if !isWasmObject(member.Data) {
		st.diag.Errorf("unknown file type: %s(%s)", f.Name(), member.Name)
		return errors.InvalidData(f.Name(), "archive member "+member.Name+" is not a wasm object", nil)
	}
	obj := NewObjectFile(f.Name()+"("+member.Name+")", member.Data)
	obj.ParentName = f.Name()
	if err := st.AddFile(obj); err != nil {
		return err
	}
	Logger().Debug("loaded archive member",
		zap.String("archive", f.Name()),
		zap.String("member", member.Name),
		zap.String("symbol", symName))
	return nil
}

// ReportRemainingUndefines reports every reference that is still
// undefined and not allowed by configuration, then fails the link. The
// warnings cite the specific inputs holding each dangling reference, in
// input order.
func (st *SymbolTable) ReportRemainingUndefines() error {
	undefs := make(map[*Symbol]bool)
	for _, s := range st.order {
		if s.IsUndefined() && !st.cfg.AllowUndefinedSymbols[s.Name] {
			undefs[s] = true
		}
	}
	if len(undefs) == 0 {
		return nil
	}

	for _, f := range st.ObjectFiles {
		for _, s := range f.Symbols {
			if undefs[s] {
				st.diag.Warnf("%s: undefined symbol: %s", f.Name(), s.Name)
			}
		}
	}
	for _, s := range st.order {
		if undefs[s] && s.File == nil {
			st.diag.Warnf("undefined symbol: %s", s.Name)
		}
	}
	return errors.Wrap(errors.PhaseResolve, errors.KindUndefined, nil, "link failed")
}

func checkSymbolTypes(existing *Symbol, f *ObjectFile, ws *wasm.Symbol) error {
	if existing.IsLazy() {
		return nil
	}
	if existing.IsFunction() == ws.IsFunction() {
		return nil
	}
	return errors.TypeMismatch(ws.Name,
		fileName(existing.File), shape(existing.IsFunction()),
		f.Name(), shape(ws.IsFunction()))
}

func shape(isFunction bool) string {
	if isFunction {
		return "Function"
	}
	return "Global"
}

func fileName(f InputFile) string {
	if f == nil {
		return "(internal)"
	}
	return f.Name()
}

func isWasmObject(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0 && data[1] == 'a' && data[2] == 's' && data[3] == 'm'
}
