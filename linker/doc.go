// Package linker implements static linking of relocatable WebAssembly
// object files into a single module.
//
// # Pipeline
//
// A link is strictly sequential: the driver builds a Config from the
// command line, the SymbolTable ingests each input in order (pulling
// archive members on demand as undefined references appear), the layout
// phases assign every input its renumbering offsets and every symbol its
// output index, the relocation rewriter patches each input's code bytes
// in place at their original LEB widths, and the section writer emits
// the module with a seek-back size fix-up per section.
//
// # Index spaces
//
// Each input's types, functions, globals, and table slots are local
// index spaces. The output module concatenates them; ObjectFile's
// Relocate methods map a local index to its output position. Function
// imports resolved to definitions in other inputs vanish from the import
// section, and references to them are rewritten to the defining
// function's index.
//
// # Entry points
//
// Link is the complete command-line surface. The package is not safe for
// concurrent use of a single link; run one link at a time.
package linker
