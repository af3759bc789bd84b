package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-ld/wasm/internal/binary"
)

// ParseObject parses a relocatable wasm object file. The name is recorded
// as the Object's Name and used in error messages.
func ParseObject(name string, data []byte) (*Object, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, r.WrapError("header", errors.New("bad magic"))
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, r.WrapError("header", fmt.Errorf("unsupported version %d", version))
	}

	p := &objectParser{obj: &Object{Name: name}}

	for r.Position() < len(data) {
		id, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section", err)
		}
		content, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section", err)
		}
		if err := p.section(id, content); err != nil {
			return nil, err
		}
	}

	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.obj, nil
}

type pendingReloc struct {
	section byte
	relocs  []Relocation
}

type objectParser struct {
	obj         *Object
	relocs      []pendingReloc
	debugNames  []Symbol
	symbolFlags map[string]uint32
}

func (p *objectParser) section(id byte, content []byte) error {
	r := binary.NewReader(bytes.NewReader(content))
	switch id {
	case SectionCustom:
		return p.custom(r, content)
	case SectionType:
		return p.types(r)
	case SectionImport:
		return p.imports(r)
	case SectionFunction:
		return p.functions(r)
	case SectionTable:
		return p.tables(r)
	case SectionMemory:
		return p.memories(r)
	case SectionGlobal:
		return p.globals(r)
	case SectionExport:
		return p.exports(r)
	case SectionElement:
		return p.elements(r)
	case SectionCode:
		p.obj.CodeSection = &Section{Content: content}
		return nil
	case SectionData:
		p.obj.DataSection = &Section{Content: content}
		return p.data(r)
	case SectionStart:
		return r.WrapError("start", errors.New("start section in object file"))
	default:
		return r.WrapError("section", fmt.Errorf("unknown section id %d", id))
	}
}

func (p *objectParser) types(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("type", err)
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return r.WrapError("type", err)
		}
		if form != FuncTypeByte {
			return r.WrapError("type", fmt.Errorf("unexpected type form %#x", form))
		}
		var sig Signature
		sig.Result = ValNone
		nparams, err := r.ReadU32()
		if err != nil {
			return r.WrapError("type", err)
		}
		for j := uint32(0); j < nparams; j++ {
			t, err := r.ReadByte()
			if err != nil {
				return r.WrapError("type", err)
			}
			sig.Params = append(sig.Params, ValType(t))
		}
		nresults, err := r.ReadU32()
		if err != nil {
			return r.WrapError("type", err)
		}
		switch nresults {
		case 0:
		case 1:
			t, err := r.ReadByte()
			if err != nil {
				return r.WrapError("type", err)
			}
			sig.Result = ValType(t)
		default:
			return r.WrapError("type", fmt.Errorf("multiple results (%d)", nresults))
		}
		p.obj.Signatures = append(p.obj.Signatures, sig)
	}
	return nil
}

func (p *objectParser) imports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("import", err)
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return r.WrapError("import", err)
		}
		if imp.Field, err = r.ReadName(); err != nil {
			return r.WrapError("import", err)
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return r.WrapError("import", err)
		}
		switch imp.Kind {
		case KindFunc:
			if imp.SigIndex, err = r.ReadU32(); err != nil {
				return r.WrapError("import", err)
			}
		case KindGlobal:
			if imp.Global, err = readGlobalType(r); err != nil {
				return r.WrapError("import", err)
			}
		default:
			return r.WrapError("import", fmt.Errorf("unsupported import kind %d", imp.Kind))
		}
		p.obj.Imports = append(p.obj.Imports, imp)
	}
	return nil
}

func (p *objectParser) functions(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("function", err)
	}
	for i := uint32(0); i < count; i++ {
		sig, err := r.ReadU32()
		if err != nil {
			return r.WrapError("function", err)
		}
		p.obj.FunctionTypes = append(p.obj.FunctionTypes, sig)
	}
	return nil
}

func (p *objectParser) tables(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("table", err)
	}
	for i := uint32(0); i < count; i++ {
		elem, err := r.ReadByte()
		if err != nil {
			return r.WrapError("table", err)
		}
		limits, err := readLimits(r)
		if err != nil {
			return r.WrapError("table", err)
		}
		p.obj.Tables = append(p.obj.Tables, Table{ElemType: ValType(elem), Limits: limits})
	}
	return nil
}

func (p *objectParser) memories(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("memory", err)
	}
	for i := uint32(0); i < count; i++ {
		limits, err := readLimits(r)
		if err != nil {
			return r.WrapError("memory", err)
		}
		p.obj.Memories = append(p.obj.Memories, Memory{Limits: limits})
	}
	return nil
}

func (p *objectParser) globals(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("global", err)
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return r.WrapError("global", err)
		}
		init, err := readInitExpr(r)
		if err != nil {
			return r.WrapError("global", err)
		}
		p.obj.Globals = append(p.obj.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func (p *objectParser) exports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("export", err)
	}
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return r.WrapError("export", err)
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return r.WrapError("export", err)
		}
		if exp.Index, err = r.ReadU32(); err != nil {
			return r.WrapError("export", err)
		}
		p.obj.Exports = append(p.obj.Exports, exp)
	}
	return nil
}

func (p *objectParser) elements(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("element", err)
	}
	for i := uint32(0); i < count; i++ {
		var seg ElemSegment
		if seg.TableIndex, err = r.ReadU32(); err != nil {
			return r.WrapError("element", err)
		}
		if seg.Offset, err = readInitExpr(r); err != nil {
			return r.WrapError("element", err)
		}
		n, err := r.ReadU32()
		if err != nil {
			return r.WrapError("element", err)
		}
		for j := uint32(0); j < n; j++ {
			fn, err := r.ReadU32()
			if err != nil {
				return r.WrapError("element", err)
			}
			seg.Functions = append(seg.Functions, fn)
		}
		p.obj.Elements = append(p.obj.Elements, seg)
	}
	return nil
}

func (p *objectParser) data(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("data", err)
	}
	for i := uint32(0); i < count; i++ {
		var seg DataSegment
		if seg.MemoryIndex, err = r.ReadU32(); err != nil {
			return r.WrapError("data", err)
		}
		if seg.Offset, err = readInitExpr(r); err != nil {
			return r.WrapError("data", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return r.WrapError("data", err)
		}
		if seg.Content, err = r.ReadBytes(int(size)); err != nil {
			return r.WrapError("data", err)
		}
		p.obj.DataSegments = append(p.obj.DataSegments, seg)
	}
	return nil
}

func (p *objectParser) custom(r *binary.Reader, content []byte) error {
	name, err := r.ReadName()
	if err != nil {
		return r.WrapError("custom", err)
	}
	switch name {
	case NameSectionName:
		return p.nameSection(r, content)
	case RelocCodeName, RelocDataName:
		return p.relocSection(r)
	case LinkingSectionName:
		return p.linkingSection(r, content)
	default:
		// Unrecognized custom sections are ignored.
		return nil
	}
}

func (p *objectParser) nameSection(r *binary.Reader, content []byte) error {
	for r.Position() < len(content) {
		id, err := r.ReadU32()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return r.WrapError("name", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return r.WrapError("name", err)
		}
		if byte(id) != NamesFunction {
			if _, err := r.ReadBytes(int(size)); err != nil {
				return r.WrapError("name", err)
			}
			continue
		}
		count, err := r.ReadU32()
		if err != nil {
			return r.WrapError("name", err)
		}
		for i := uint32(0); i < count; i++ {
			index, err := r.ReadU32()
			if err != nil {
				return r.WrapError("name", err)
			}
			fname, err := r.ReadName()
			if err != nil {
				return r.WrapError("name", err)
			}
			p.debugNames = append(p.debugNames, Symbol{
				Name:         fname,
				Type:         SymDebugFunctionName,
				ElementIndex: index,
			})
		}
	}
	return nil
}

func (p *objectParser) relocSection(r *binary.Reader) error {
	target, err := r.ReadU32()
	if err != nil {
		return r.WrapError("reloc", err)
	}
	count, err := r.ReadU32()
	if err != nil {
		return r.WrapError("reloc", err)
	}
	pending := pendingReloc{section: byte(target)}
	for i := uint32(0); i < count; i++ {
		var rel Relocation
		t, err := r.ReadU32()
		if err != nil {
			return r.WrapError("reloc", err)
		}
		rel.Type = RelocType(t)
		if rel.Offset, err = r.ReadU32(); err != nil {
			return r.WrapError("reloc", err)
		}
		if rel.Index, err = r.ReadU32(); err != nil {
			return r.WrapError("reloc", err)
		}
		if rel.Type.HasAddend() {
			addend, err := r.ReadU32()
			if err != nil {
				return r.WrapError("reloc", err)
			}
			rel.Addend = int64(addend)
		}
		pending.relocs = append(pending.relocs, rel)
	}
	p.relocs = append(p.relocs, pending)
	return nil
}

func (p *objectParser) linkingSection(r *binary.Reader, content []byte) error {
	for r.Position() < len(content) {
		id, err := r.ReadU32()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return r.WrapError("linking", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return r.WrapError("linking", err)
		}
		if byte(id) != LinkingSymbolInfo {
			if _, err := r.ReadBytes(int(size)); err != nil {
				return r.WrapError("linking", err)
			}
			continue
		}
		count, err := r.ReadU32()
		if err != nil {
			return r.WrapError("linking", err)
		}
		for i := uint32(0); i < count; i++ {
			sname, err := r.ReadName()
			if err != nil {
				return r.WrapError("linking", err)
			}
			flags, err := r.ReadU32()
			if err != nil {
				return r.WrapError("linking", err)
			}
			if p.symbolFlags == nil {
				p.symbolFlags = make(map[string]uint32)
			}
			p.symbolFlags[sname] = flags
		}
	}
	return nil
}

// finish synthesizes the symbol vector and attaches relocations. Symbols
// appear in a fixed traversal order: imports, then exports, then debug
// function names.
func (p *objectParser) finish() error {
	obj := p.obj

	for i, imp := range obj.Imports {
		t := SymFunctionImport
		if imp.Kind == KindGlobal {
			t = SymGlobalImport
		}
		obj.Symbols = append(obj.Symbols, Symbol{
			Name:         imp.Field,
			Type:         t,
			ElementIndex: uint32(i),
		})
	}
	for i, exp := range obj.Exports {
		t := SymFunctionExport
		if exp.Kind == KindGlobal {
			t = SymGlobalExport
		}
		obj.Symbols = append(obj.Symbols, Symbol{
			Name:         exp.Name,
			Type:         t,
			ElementIndex: uint32(i),
		})
	}
	obj.Symbols = append(obj.Symbols, p.debugNames...)

	for i := range obj.Symbols {
		if flags, ok := p.symbolFlags[obj.Symbols[i].Name]; ok {
			obj.Symbols[i].Flags = flags
		}
	}

	for _, pending := range p.relocs {
		switch pending.section {
		case SectionCode:
			if obj.CodeSection == nil {
				return fmt.Errorf("wasm: %s: reloc.CODE without code section", obj.Name)
			}
			obj.CodeSection.Relocations = append(obj.CodeSection.Relocations, pending.relocs...)
		case SectionData:
			if obj.DataSection == nil {
				return fmt.Errorf("wasm: %s: reloc.DATA without data section", obj.Name)
			}
			obj.DataSection.Relocations = append(obj.DataSection.Relocations, pending.relocs...)
		default:
			return fmt.Errorf("wasm: %s: relocations against section %d", obj.Name, pending.section)
		}
	}
	return nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadU32()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{Type: ValType(t), Mutable: mut != 0}, nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	initial, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Flags: flags, Initial: initial}
	if flags&LimitsHasMax != 0 {
		if l.Max, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

func readInitExpr(r *binary.Reader) (InitExpr, error) {
	op, err := r.ReadByte()
	if err != nil {
		return InitExpr{}, err
	}
	expr := InitExpr{Opcode: op}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return InitExpr{}, err
		}
		expr.Value = int64(v)
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return InitExpr{}, err
		}
		expr.Value = v
	case OpGlobalGet:
		v, err := r.ReadU32()
		if err != nil {
			return InitExpr{}, err
		}
		expr.Value = int64(v)
	default:
		return InitExpr{}, fmt.Errorf("unknown opcode %#x in init expr", op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return InitExpr{}, err
	}
	if end != OpEnd {
		return InitExpr{}, fmt.Errorf("init expr not terminated (got %#x)", end)
	}
	return expr, nil
}
