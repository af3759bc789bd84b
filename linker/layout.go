package linker

import (
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// The layout planner runs over the ingested inputs in four phases, in
// order: import assignment, per-input offset calculation, symbol index
// assignment, and memory layout. After it finishes every live symbol has
// an output index and every input knows its renumbering offsets.

// calculateImports walks each input's symbols in insertion order and
// assigns dense, zero-based indices in the function-import and
// global-import spaces to every symbol that is still undefined.
func (w *Writer) calculateImports() {
	for _, f := range w.symtab.ObjectFiles {
		for _, s := range f.Symbols {
			if s.HasOutputIndex() || s.IsDefined() {
				continue
			}
			if s.IsFunction() {
				s.SetOutputIndex(uint32(len(w.functionImports)))
				w.functionImports = append(w.functionImports, s)
			} else {
				s.SetOutputIndex(uint32(len(w.globalImports)))
				w.globalImports = append(w.globalImports, s)
			}
		}
	}
}

// calculateOffsets records each input's renumbering offsets and
// accumulates the output totals. Inputs with more than one memory or
// table, or with an element segment the single-table model cannot
// express, are rejected.
func (w *Writer) calculateOffsets() error {
	w.totalGlobals = uint32(len(w.cfg.SyntheticGlobals))

	for _, f := range w.symtab.ObjectFiles {
		obj := f.Obj

		f.TypeIndexOffset = w.totalTypes
		w.totalTypes += uint32(len(obj.Signatures))

		f.FunctionIndexOffset = uint32(len(w.functionImports)-len(f.FunctionImports)) + w.totalFunctions
		w.totalFunctions += uint32(len(obj.FunctionTypes))

		if w.cfg.Relocatable {
			f.GlobalIndexOffset = uint32(len(w.globalImports)-len(f.GlobalImports)) + w.totalGlobals
			w.totalGlobals += uint32(len(obj.Globals))
		}

		if len(obj.Memories) > 1 {
			return errors.Unsupported(errors.PhaseLayout, f.Name(), "contains more than one memory")
		}

		if len(obj.Tables) > 1 {
			return errors.Unsupported(errors.PhaseLayout, f.Name(), "contains more than one table")
		}
		if len(obj.Tables) == 1 {
			f.TableIndexOffset = w.totalTableLength
			w.totalTableLength += obj.Tables[0].Limits.Initial
		}

		w.totalExports += uint32(len(obj.Exports))

		if len(obj.Elements) > 1 {
			return errors.Unsupported(errors.PhaseLayout, f.Name(), "contains more than one element segment")
		}
		if len(obj.Elements) == 1 {
			seg := obj.Elements[0]
			if seg.TableIndex != 0 {
				return errors.Unsupported(errors.PhaseLayout, f.Name(), "unsupported table index")
			}
			if seg.Offset.Value != 0 {
				return errors.Unsupported(errors.PhaseLayout, f.Name(), "unsupported segment offset")
			}
			w.totalElements += uint32(len(seg.Functions))
		}

		w.totalDataSegments += uint32(len(obj.DataSegments))

		if obj.CodeSection != nil {
			w.totalCodeRelocations += uint32(len(obj.CodeSection.Relocations))
			if !w.cfg.Relocatable {
				if err := checkGlobalRelocs(f); err != nil {
					return err
				}
			}
		}
		if obj.DataSection != nil {
			w.totalDataRelocations += uint32(len(obj.DataSection.Relocations))
		}
	}
	return nil
}

// checkGlobalRelocs rejects GLOBAL_INDEX_LEB relocations against
// locally-defined globals in executable output, where input globals are
// materialized as memory addresses and have no global index.
func checkGlobalRelocs(f *ObjectFile) error {
	numImports := uint32(len(f.GlobalImports))
	for _, rel := range f.Obj.CodeSection.Relocations {
		if rel.Type == wasm.RelocGlobalIndexLEB && rel.Index >= numImports {
			return errors.Unsupported(errors.PhaseLayout, f.Name(),
				"global index relocation against a defined global in non-relocatable output")
		}
	}
	return nil
}

// assignSymbolIndexes gives every defined symbol its output index:
// the defining input's offset plus the local index.
func (w *Writer) assignSymbolIndexes() {
	for _, f := range w.symtab.ObjectFiles {
		for _, s := range f.Symbols {
			if s.HasOutputIndex() || !s.IsDefined() {
				continue
			}
			obj, ok := s.File.(*ObjectFile)
			if !ok {
				continue
			}
			if s.IsFunction() {
				s.SetOutputIndex(obj.FunctionIndexOffset + s.FunctionIndex())
			} else {
				s.SetOutputIndex(obj.GlobalIndexOffset + s.GlobalIndex())
			}
		}
	}
}

// layoutMemory lays out linear memory: one guard page, then the stack in
// executable mode (with the stack pointer initialized to the stack top),
// then each input's data block, rounded up to whole pages.
func (w *Writer) layoutMemory() error {
	ptr := wasm.PageSize

	if !w.cfg.Relocatable {
		debugf("stack_base = %#x", ptr)
		ptr += w.cfg.StackSize
		w.cfg.SyntheticGlobals[0].Global.Init.Value = int64(ptr)
		debugf("stack_top = %#x", ptr)
	}

	for _, f := range w.symtab.ObjectFiles {
		obj := f.Obj
		if len(obj.Memories) == 0 || obj.Memories[0].Limits.Initial == 0 {
			continue
		}
		f.DataOffset = ptr
		debugf("[%s] data offset = %#x", f.Name(), f.DataOffset)
		ptr += obj.Memories[0].Limits.Initial * wasm.PageSize
	}

	memSize := roundUpToPageSize(ptr)
	w.totalMemoryPages = memSize / wasm.PageSize
	debugf("mem size  = %#x", memSize)
	debugf("mem pages = %#x", w.totalMemoryPages)

	if w.cfg.InitialMemory != 0 {
		if w.cfg.InitialMemory%wasm.PageSize != 0 {
			return errors.Unsupported(errors.PhaseLayout, "", "initial memory must be a multiple of the page size")
		}
		if w.cfg.InitialMemory < memSize {
			return errors.Unsupported(errors.PhaseLayout, "", "initial memory too small for layout")
		}
		w.totalMemoryPages = w.cfg.InitialMemory / wasm.PageSize
	}
	if w.cfg.MaxMemory != 0 {
		if w.cfg.MaxMemory%wasm.PageSize != 0 {
			return errors.Unsupported(errors.PhaseLayout, "", "max memory must be a multiple of the page size")
		}
		if w.cfg.MaxMemory/wasm.PageSize < w.totalMemoryPages {
			return errors.Unsupported(errors.PhaseLayout, "", "max memory smaller than initial memory")
		}
		w.maxMemoryPages = w.cfg.MaxMemory / wasm.PageSize
	}
	return nil
}

func roundUpToPageSize(size uint32) uint32 {
	return (size + wasm.PageSize - 1) &^ (wasm.PageSize - 1)
}
