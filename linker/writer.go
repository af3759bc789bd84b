package linker

import (
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// Writer turns a resolved symbol table into an output module: it plans
// the layout (layout.go), rewrites code relocations (relocate.go), and
// emits the sections.
type Writer struct {
	cfg    *Config
	diag   *Diagnostics
	symtab *SymbolTable

	totalTypes           uint32
	totalFunctions       uint32
	totalGlobals         uint32
	totalMemoryPages     uint32
	maxMemoryPages       uint32
	totalTableLength     uint32
	totalExports         uint32
	totalElements        uint32
	totalDataSegments    uint32
	totalCodeRelocations uint32
	totalDataRelocations uint32

	functionImports []*Symbol
	globalImports   []*Symbol

	out *outputBuffer
}

// writeResult runs layout and emission over a fully-ingested symbol
// table and returns the bytes of the output module.
func writeResult(cfg *Config, diag *Diagnostics, symtab *SymbolTable) ([]byte, error) {
	w := &Writer{cfg: cfg, diag: diag, symtab: symtab, out: &outputBuffer{}}

	debugf("-- calculateImports")
	w.calculateImports()
	debugf("-- calculateOffsets")
	if err := w.calculateOffsets(); err != nil {
		return nil, err
	}
	debugf("-- assignSymbolIndexes")
	w.assignSymbolIndexes()
	debugf("-- layoutMemory")
	if err := w.layoutMemory(); err != nil {
		return nil, err
	}

	if w.cfg.Verbose {
		for _, f := range w.symtab.ObjectFiles {
			f.dumpInfo()
		}
	}

	debugf("-- writeHeader")
	w.writeHeader()
	debugf("-- writeSections")
	if err := w.writeSections(); err != nil {
		return nil, err
	}
	return w.out.Bytes(), nil
}

// sectionBookkeeping remembers where a section's size placeholder and
// contents start, for the size fix-up when the section ends.
type sectionBookkeeping struct {
	sizeOffset     uint32
	contentsOffset uint32
}

// writeSectionHeader writes the section type and a 5-byte padded size
// placeholder. The padding keeps the placeholder from growing when the
// real size is written back.
func (w *Writer) writeSectionHeader(id byte) sectionBookkeeping {
	var s sectionBookkeeping
	w.out.WriteULEB(uint32(id))
	s.sizeOffset = w.out.Tell()
	w.out.WriteULEBPadded(0, wasm.MaxWidth32)
	s.contentsOffset = w.out.Tell()
	return s
}

// endSection rewrites the size placeholder with the section's actual
// content length.
func (w *Writer) endSection(s sectionBookkeeping) {
	end := w.out.Tell()
	w.out.Seek(s.sizeOffset)
	w.out.WriteULEBPadded(end-s.contentsOffset, wasm.MaxWidth32)
	w.out.Seek(end)
}

func (w *Writer) writeHeader() {
	w.out.Write([]byte{0, 'a', 's', 'm'})
	w.out.WriteU32LE(wasm.Version)
}

func (w *Writer) writeSections() error {
	w.writeTypeSection()
	if err := w.writeImportSection(); err != nil {
		return err
	}
	w.writeFunctionSection()
	w.writeTableSection()
	w.writeMemorySection()
	w.writeGlobalSection()
	if err := w.writeExportSection(); err != nil {
		return err
	}
	w.writeElemSection()
	if err := w.writeCodeSection(); err != nil {
		return err
	}
	w.writeDataSection()

	// Optional custom sections for relocations and debug names.
	if w.cfg.EmitRelocs || w.cfg.Relocatable {
		w.writeRelocSections()
	}
	if !w.cfg.StripDebug && !w.cfg.StripAll {
		w.writeNameSection()
	}
	return nil
}

func (w *Writer) writeTypeSection() {
	if w.totalTypes == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionType)
	w.out.WriteULEB(w.totalTypes)
	for _, f := range w.symtab.ObjectFiles {
		for _, sig := range f.Obj.Signatures {
			w.writeSig(sig)
		}
	}
	w.endSection(s)
}

func (w *Writer) writeImportSection() error {
	if len(w.functionImports)+len(w.globalImports) == 0 {
		return nil
	}
	s := w.writeSectionHeader(wasm.SectionImport)
	w.out.WriteULEB(uint32(len(w.functionImports) + len(w.globalImports)))

	for _, sym := range w.functionImports {
		if sym.WasmSymbol == nil {
			return errors.Wrap(errors.PhaseEmit, errors.KindUndefined, nil,
				"synthesized reference "+sym.Name+" never resolved")
		}
		obj := sym.objectFile()
		w.out.WriteStr("env")
		w.out.WriteStr(sym.Name)
		w.out.WriteByte(wasm.KindFunc)
		w.out.WriteULEB(obj.RelocateTypeIndex(sym.FunctionTypeIndex()))
	}
	for _, sym := range w.globalImports {
		if sym.WasmSymbol == nil {
			return errors.Wrap(errors.PhaseEmit, errors.KindUndefined, nil,
				"synthesized reference "+sym.Name+" never resolved")
		}
		obj := sym.objectFile()
		gt := obj.Obj.Imports[sym.WasmSymbol.ElementIndex].Global
		w.out.WriteStr("env")
		w.out.WriteStr(sym.Name)
		w.out.WriteByte(wasm.KindGlobal)
		w.writeGlobalType(gt)
	}

	w.endSection(s)
	return nil
}

func (w *Writer) writeFunctionSection() {
	if w.totalFunctions == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionFunction)
	w.out.WriteULEB(w.totalFunctions)
	for _, f := range w.symtab.ObjectFiles {
		for _, sig := range f.Obj.FunctionTypes {
			w.out.WriteULEB(f.RelocateTypeIndex(sig))
		}
	}
	w.endSection(s)
}

func (w *Writer) writeTableSection() {
	if w.totalTableLength == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionTable)
	w.out.WriteULEB(1)
	w.out.WriteByte(byte(wasm.ValAnyFunc))
	w.out.WriteULEB(wasm.LimitsHasMax)
	w.out.WriteULEB(w.totalTableLength)
	w.out.WriteULEB(w.totalTableLength)
	w.endSection(s)
}

func (w *Writer) writeMemorySection() {
	s := w.writeSectionHeader(wasm.SectionMemory)
	w.out.WriteULEB(1)
	if w.maxMemoryPages != 0 {
		w.out.WriteULEB(wasm.LimitsHasMax)
		w.out.WriteULEB(w.totalMemoryPages)
		w.out.WriteULEB(w.maxMemoryPages)
	} else {
		w.out.WriteULEB(0)
		w.out.WriteULEB(w.totalMemoryPages)
	}
	w.endSection(s)
}

func (w *Writer) writeGlobalSection() {
	if w.totalGlobals == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionGlobal)
	w.out.WriteULEB(w.totalGlobals)
	for _, sg := range w.cfg.SyntheticGlobals {
		w.writeGlobal(sg.Global)
	}
	if w.cfg.Relocatable {
		for _, f := range w.symtab.ObjectFiles {
			for _, g := range f.Obj.Globals {
				w.writeGlobal(g)
			}
		}
	}
	w.endSection(s)
}

func (w *Writer) writeExportSection() error {
	exportMemory := !w.cfg.Relocatable
	exportOther := w.cfg.Relocatable
	exportEntry := w.cfg.Entry != ""

	numExports := uint32(0)
	if exportMemory {
		numExports++
	}
	if exportEntry {
		numExports++
	}
	if exportOther {
		numExports += w.totalExports
	}
	if numExports == 0 {
		return nil
	}

	s := w.writeSectionHeader(wasm.SectionExport)
	w.out.WriteULEB(numExports)

	if exportMemory {
		w.writeExport(wasm.Export{Name: "memory", Kind: wasm.KindMemory, Index: 0})
	}

	if exportEntry {
		sym := w.symtab.Find(w.cfg.Entry)
		if sym == nil || !sym.IsFunction() {
			return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, nil,
				"entry point is not a function: "+w.cfg.Entry)
		}
		if !sym.IsDefined() {
			return errors.Undefined(w.cfg.Entry)
		}
		w.writeExport(wasm.Export{
			Name:  w.cfg.ExportEntryAs,
			Kind:  wasm.KindFunc,
			Index: sym.OutputIndex(),
		})
	}

	if exportOther {
		for _, f := range w.symtab.ObjectFiles {
			for _, exp := range f.Obj.Exports {
				w.writeExport(exp)
			}
		}
	}

	w.endSection(s)
	return nil
}

func (w *Writer) writeElemSection() {
	if w.totalElements == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionElement)
	w.out.WriteULEB(1)
	w.out.WriteULEB(0) // table index
	w.writeInitExpr(wasm.InitExpr{Opcode: wasm.OpI32Const, Value: 0})
	w.out.WriteULEB(w.totalElements)
	for _, f := range w.symtab.ObjectFiles {
		for _, seg := range f.Obj.Elements {
			for _, fn := range seg.Functions {
				w.out.WriteULEB(fn)
			}
		}
	}
	w.endSection(s)
}

func (w *Writer) writeCodeSection() error {
	if w.totalFunctions == 0 {
		return nil
	}
	s := w.writeSectionHeader(wasm.SectionCode)
	w.out.WriteULEB(w.totalFunctions)
	contentsStart := w.out.Tell()

	for _, f := range w.symtab.ObjectFiles {
		if f.Obj.CodeSection == nil {
			continue
		}
		f.CodeSectionOffset = w.out.Tell() - contentsStart

		// Patch a copy of the section so the original stays pristine for
		// the reloc re-emission pass.
		content := make([]byte, len(f.Obj.CodeSection.Content))
		copy(content, f.Obj.CodeSection.Content)
		if err := applyCodeRelocations(f, content); err != nil {
			return err
		}

		// The payload excludes the input's own function-body count.
		_, n, err := wasm.DecodeLEB128u(content)
		if err != nil {
			return errors.InvalidData(f.Name(), "code section count", err)
		}
		w.out.Write(content[n:])
	}
	w.endSection(s)
	return nil
}

func (w *Writer) writeDataSection() {
	if w.totalDataSegments == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionData)
	w.out.WriteULEB(w.totalDataSegments)
	for _, f := range w.symtab.ObjectFiles {
		for _, seg := range f.Obj.DataSegments {
			w.out.WriteULEB(seg.MemoryIndex)
			newOffset := uint32(seg.Offset.Value) + f.DataOffset
			w.writeInitExpr(wasm.InitExpr{Opcode: wasm.OpI32Const, Value: int64(newOffset)})
			w.out.WriteULEB(uint32(len(seg.Content)))
			w.out.Write(seg.Content)
		}
	}
	w.endSection(s)
}

func (w *Writer) writeRelocSections() {
	if w.totalCodeRelocations == 0 {
		return
	}
	s := w.writeSectionHeader(wasm.SectionCustom)
	w.out.WriteStr(wasm.RelocCodeName)
	w.out.WriteULEB(uint32(wasm.SectionCode))
	w.out.WriteULEB(w.totalCodeRelocations)
	for _, f := range w.symtab.ObjectFiles {
		if f.Obj.CodeSection == nil {
			continue
		}
		for _, rel := range f.Obj.CodeSection.Relocations {
			w.out.WriteULEB(uint32(rel.Type))
			w.out.WriteULEB(f.RelocateCodeOffset(rel.Offset))

			switch rel.Type {
			case wasm.RelocTypeIndexLEB:
				w.out.WriteULEB(f.RelocateTypeIndex(rel.Index))
			case wasm.RelocFunctionIndexLEB:
				w.out.WriteULEB(f.RelocateFunctionIndex(rel.Index))
			case wasm.RelocTableIndexI32, wasm.RelocTableIndexSLEB:
				w.out.WriteULEB(f.RelocateTableIndex(rel.Index))
			case wasm.RelocGlobalAddrLEB, wasm.RelocGlobalAddrSLEB,
				wasm.RelocGlobalAddrI32, wasm.RelocGlobalIndexLEB:
				w.out.WriteULEB(f.RelocateGlobalIndex(rel.Index))
			}

			if rel.Type.HasAddend() {
				w.out.WriteULEB(uint32(rel.Addend))
			}
		}
	}
	w.endSection(s)
}

// writeNameSection emits one function-names subsection with every debug
// function name that survives the link, imported-function names first.
// A first pass counts entries, marking each coalesced symbol via its
// transient WrittenToSymtab flag; the emission pass flips the flags back
// so each name appears exactly once.
func (w *Writer) writeNameSection() {
	count := uint32(0)
	for _, f := range w.symtab.ObjectFiles {
		for i := range f.Obj.Symbols {
			ws := &f.Obj.Symbols[i]
			if ws.Type != wasm.SymDebugFunctionName {
				continue
			}
			if f.IsResolvedFunctionImport(ws.ElementIndex) {
				continue
			}
			if s := w.symtab.Find(ws.Name); s != nil {
				if s.WrittenToSymtab {
					continue
				}
				s.WrittenToSymtab = true
			}
			count++
		}
	}
	if count == 0 {
		return
	}

	s := w.writeSectionHeader(wasm.SectionCustom)
	w.out.WriteStr(wasm.NameSectionName)
	sub := w.writeSectionHeader(wasm.NamesFunction)
	w.out.WriteULEB(count)

	// Two passes over the inputs so all imported-function names come
	// before any locally-defined names.
	for _, importedNames := range []bool{true, false} {
		for _, f := range w.symtab.ObjectFiles {
			for i := range f.Obj.Symbols {
				ws := &f.Obj.Symbols[i]
				if ws.Type != wasm.SymDebugFunctionName {
					continue
				}
				if f.Obj.IsImportedFunction(ws.ElementIndex) != importedNames {
					continue
				}
				if f.IsResolvedFunctionImport(ws.ElementIndex) {
					continue
				}
				if s := w.symtab.Find(ws.Name); s != nil {
					if !s.WrittenToSymtab {
						continue
					}
					s.WrittenToSymtab = false
				}
				w.out.WriteULEB(f.RelocateFunctionIndex(ws.ElementIndex))
				w.out.WriteStr(ws.Name)
			}
		}
	}
	w.endSection(sub)
	w.endSection(s)
}

func (w *Writer) writeSig(sig wasm.Signature) {
	w.out.WriteByte(wasm.FuncTypeByte)
	w.out.WriteULEB(uint32(len(sig.Params)))
	for _, p := range sig.Params {
		w.out.WriteByte(byte(p))
	}
	if sig.Result == wasm.ValNone {
		w.out.WriteULEB(0)
	} else {
		w.out.WriteULEB(1)
		w.out.WriteByte(byte(sig.Result))
	}
}

func (w *Writer) writeGlobalType(gt wasm.GlobalType) {
	w.out.WriteByte(byte(gt.Type))
	if gt.Mutable {
		w.out.WriteULEB(1)
	} else {
		w.out.WriteULEB(0)
	}
}

func (w *Writer) writeGlobal(g wasm.Global) {
	w.writeGlobalType(g.Type)
	w.writeInitExpr(g.Init)
}

func (w *Writer) writeInitExpr(expr wasm.InitExpr) {
	w.out.WriteByte(expr.Opcode)
	switch expr.Opcode {
	case wasm.OpI32Const:
		w.out.WriteSLEB(int32(expr.Value))
	case wasm.OpI64Const:
		w.out.WriteSLEB64(expr.Value)
	case wasm.OpGlobalGet:
		w.out.WriteULEB(uint32(expr.Value))
	}
	w.out.WriteByte(wasm.OpEnd)
}

func (w *Writer) writeExport(exp wasm.Export) {
	w.out.WriteStr(exp.Name)
	w.out.WriteByte(exp.Kind)
	switch exp.Kind {
	case wasm.KindFunc:
		w.out.WriteULEB(exp.Index)
	default:
		w.out.WriteSLEB(int32(exp.Index))
	}
}
