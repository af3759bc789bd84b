// Package wasm implements reading and writing of relocatable WebAssembly
// object files as produced by an LLVM wasm-target backend.
//
// An object file is a standard wasm module carrying extra custom sections:
//
//	reloc.CODE / reloc.DATA   patch records against the code/data section
//	linking                   per-symbol flags (weak binding)
//	name                      function names, preserved through the link
//
// ParseObject decodes a file into an Object, a read-only view over the
// module's index spaces, its raw code bytes, and its symbol records. The
// symbol vector is synthesized in a fixed order (imports, exports, debug
// names) so a linker can traverse it deterministically.
//
// The package also provides the LEB128 codec used throughout the binary
// format, including fixed-width padded encodings. A value patched into an
// instruction immediate must occupy exactly the 5-byte slot the compiler
// reserved for it; see PutLEB128uPadded and PutLEB128sPadded.
package wasm
