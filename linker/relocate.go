package linker

import (
	"math"

	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// applyCodeRelocations patches a copy of the input's code section in
// place. Every patched immediate is re-encoded at the full 5-byte LEB
// width the compiler reserved, so the buffer's length and all byte
// offsets within it are preserved.
func applyCodeRelocations(f *ObjectFile, buf []byte) error {
	for _, rel := range f.Obj.CodeSection.Relocations {
		debugf("apply reloc type=%s index=%d", rel.Type, rel.Index)

		var newValue int64
		switch rel.Type {
		case wasm.RelocTypeIndexLEB:
			newValue = int64(f.RelocateTypeIndex(rel.Index))
		case wasm.RelocFunctionIndexLEB:
			newValue = int64(f.RelocateFunctionIndex(rel.Index))
		case wasm.RelocTableIndexI32, wasm.RelocTableIndexSLEB:
			newValue = int64(f.RelocateTableIndex(rel.Index)) + rel.Addend
		case wasm.RelocGlobalIndexLEB:
			newValue = int64(f.RelocateGlobalIndex(rel.Index)) + rel.Addend
		case wasm.RelocGlobalAddrLEB, wasm.RelocGlobalAddrSLEB, wasm.RelocGlobalAddrI32:
			newValue = int64(f.GlobalAddress(rel.Index)) + rel.Addend
		default:
			return errors.Unsupported(errors.PhaseEmit, f.Name(), "unhandled relocation type "+rel.Type.String())
		}

		if int(rel.Offset)+wasm.MaxWidth32 > len(buf) {
			return errors.InvalidData(f.Name(), "relocation offset out of range", nil)
		}
		loc := buf[rel.Offset:]

		debugf("apply reloc offset=%#x new=%d", rel.Offset, newValue)

		switch rel.Type {
		case wasm.RelocTypeIndexLEB, wasm.RelocFunctionIndexLEB,
			wasm.RelocGlobalAddrLEB, wasm.RelocGlobalIndexLEB:
			if newValue < 0 || newValue > math.MaxUint32 {
				return errors.Internal("relocated value %d out of unsigned range", newValue)
			}
			wasm.PutLEB128uPadded(loc, uint32(newValue), wasm.MaxWidth32)
		case wasm.RelocTableIndexSLEB, wasm.RelocGlobalAddrSLEB:
			if newValue < math.MinInt32 || newValue > math.MaxInt32 {
				return errors.Internal("relocated value %d out of signed range", newValue)
			}
			wasm.PutLEB128sPadded(loc, int32(newValue), wasm.MaxWidth32)
		case wasm.RelocTableIndexI32, wasm.RelocGlobalAddrI32:
			return errors.Unsupported(errors.PhaseEmit, f.Name(), "unimplemented relocation type "+rel.Type.String())
		}
	}
	return nil
}
