package wasm

import (
	"github.com/wippyai/wasm-ld/wasm/internal/binary"
)

// Encode serializes the object back to the wasm object-file format. The
// inverse of ParseObject; used by tooling and tests to fabricate inputs.
func (o *Object) Encode() []byte {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(o.Signatures) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Signatures)))
		for _, sig := range o.Signatures {
			sec.Byte(FuncTypeByte)
			sec.WriteU32(uint32(len(sig.Params)))
			for _, p := range sig.Params {
				sec.Byte(byte(p))
			}
			if sig.Result == ValNone {
				sec.WriteU32(0)
			} else {
				sec.WriteU32(1)
				sec.Byte(byte(sig.Result))
			}
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	if len(o.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Imports)))
		for _, imp := range o.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Field)
			sec.Byte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				sec.WriteU32(imp.SigIndex)
			case KindGlobal:
				writeGlobalType(sec, imp.Global)
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	if len(o.FunctionTypes) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.FunctionTypes)))
		for _, sig := range o.FunctionTypes {
			sec.WriteU32(sig)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	if len(o.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Tables)))
		for _, t := range o.Tables {
			sec.Byte(byte(t.ElemType))
			writeLimits(sec, t.Limits)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	if len(o.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Memories)))
		for _, m := range o.Memories {
			writeLimits(sec, m.Limits)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	if len(o.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Globals)))
		for _, g := range o.Globals {
			writeGlobalType(sec, g.Type)
			writeInitExpr(sec, g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	if len(o.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Exports)))
		for _, exp := range o.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Index)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	if len(o.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.Elements)))
		for _, seg := range o.Elements {
			sec.WriteU32(seg.TableIndex)
			writeInitExpr(sec, seg.Offset)
			sec.WriteU32(uint32(len(seg.Functions)))
			for _, fn := range seg.Functions {
				sec.WriteU32(fn)
			}
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	if o.CodeSection != nil {
		writeSection(w, SectionCode, o.CodeSection.Content)
	}

	if len(o.DataSegments) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(o.DataSegments)))
		for _, seg := range o.DataSegments {
			sec.WriteU32(seg.MemoryIndex)
			writeInitExpr(sec, seg.Offset)
			sec.WriteU32(uint32(len(seg.Content)))
			sec.WriteBytes(seg.Content)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	o.encodeLinking(w)
	if o.CodeSection != nil && len(o.CodeSection.Relocations) > 0 {
		writeRelocSection(w, RelocCodeName, SectionCode, o.CodeSection.Relocations)
	}
	if o.DataSection != nil && len(o.DataSection.Relocations) > 0 {
		writeRelocSection(w, RelocDataName, SectionData, o.DataSection.Relocations)
	}
	o.encodeNames(w)

	return w.Bytes()
}

// encodeLinking writes the linking custom section when any symbol carries
// flags. One symbol-info entry per distinct flagged name.
func (o *Object) encodeLinking(w *binary.Writer) {
	type entry struct {
		name  string
		flags uint32
	}
	var entries []entry
	seen := make(map[string]bool)
	for _, sym := range o.Symbols {
		if sym.Flags == 0 || seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		entries = append(entries, entry{sym.Name, sym.Flags})
	}
	if len(entries) == 0 {
		return
	}

	info := binary.NewWriter()
	info.WriteU32(uint32(len(entries)))
	for _, e := range entries {
		info.WriteName(e.name)
		info.WriteU32(e.flags)
	}

	sec := binary.NewWriter()
	sec.WriteName(LinkingSectionName)
	sec.WriteU32(uint32(LinkingSymbolInfo))
	sec.WriteU32(uint32(info.Len()))
	sec.WriteBytes(info.Bytes())
	writeSection(w, SectionCustom, sec.Bytes())
}

func (o *Object) encodeNames(w *binary.Writer) {
	sub := binary.NewWriter()
	count := uint32(0)
	for _, sym := range o.Symbols {
		if sym.Type != SymDebugFunctionName {
			continue
		}
		sub.WriteU32(sym.ElementIndex)
		sub.WriteName(sym.Name)
		count++
	}
	if count == 0 {
		return
	}

	payload := binary.NewWriter()
	payload.WriteU32(count)
	payload.WriteBytes(sub.Bytes())

	sec := binary.NewWriter()
	sec.WriteName(NameSectionName)
	sec.WriteU32(uint32(NamesFunction))
	sec.WriteU32(uint32(payload.Len()))
	sec.WriteBytes(payload.Bytes())
	writeSection(w, SectionCustom, sec.Bytes())
}

func writeRelocSection(w *binary.Writer, name string, target byte, relocs []Relocation) {
	sec := binary.NewWriter()
	sec.WriteName(name)
	sec.WriteU32(uint32(target))
	sec.WriteU32(uint32(len(relocs)))
	for _, rel := range relocs {
		sec.WriteU32(uint32(rel.Type))
		sec.WriteU32(rel.Offset)
		sec.WriteU32(rel.Index)
		if rel.Type.HasAddend() {
			sec.WriteU32(uint32(rel.Addend))
		}
	}
	writeSection(w, SectionCustom, sec.Bytes())
}

func writeSection(w *binary.Writer, id byte, content []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(content)))
	w.WriteBytes(content)
}

func writeGlobalType(w *binary.Writer, gt GlobalType) {
	w.Byte(byte(gt.Type))
	if gt.Mutable {
		w.WriteU32(1)
	} else {
		w.WriteU32(0)
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	w.WriteU32(l.Flags)
	w.WriteU32(l.Initial)
	if l.Flags&LimitsHasMax != 0 {
		w.WriteU32(l.Max)
	}
}

func writeInitExpr(w *binary.Writer, expr InitExpr) {
	w.Byte(expr.Opcode)
	switch expr.Opcode {
	case OpI32Const:
		w.WriteS32(int32(expr.Value))
	case OpI64Const:
		w.WriteS64(expr.Value)
	case OpGlobalGet:
		w.WriteU32(uint32(expr.Value))
	}
	w.Byte(OpEnd)
}
