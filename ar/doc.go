// Package ar reads and writes Unix archive (.a) files in the SysV
// variant: a "/" symbol table member mapping defined names to member
// offsets, and an optional "//" extended name table.
//
// Parsing is lazy by design. Parse decodes only the archive structure and
// symbol table; Member extracts a single member's bytes on demand, which
// is how a linker pulls archive members as undefined references appear.
package ar
