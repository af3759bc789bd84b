package ar

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BuildMember describes one member when constructing an archive.
type BuildMember struct {
	Name    string
	Data    []byte
	Symbols []string // names this member defines, for the symbol table
}

// Build constructs a SysV archive with a symbol table from the given
// members. Member names longer than 15 bytes go through the extended
// name table. Used by tooling and tests.
func Build(members []BuildMember) []byte {
	// Extended name table, if any member needs it.
	var longNames bytes.Buffer
	longRef := make(map[int]string)
	for i, m := range members {
		if len(m.Name)+1 > 16 {
			longRef[i] = fmt.Sprintf("/%d", longNames.Len())
			longNames.WriteString(m.Name)
			longNames.WriteString("/\n")
		}
	}

	// Lay out member offsets: global magic, then "/", then "//", then members.
	var symCount int
	var nameBytes int
	for _, m := range members {
		symCount += len(m.Symbols)
		for _, s := range m.Symbols {
			nameBytes += len(s) + 1
		}
	}
	symtabSize := 4 + symCount*4 + nameBytes

	offset := len(ArMagic) + headerSize + symtabSize
	if symtabSize%2 != 0 {
		offset++
	}
	if longNames.Len() > 0 {
		offset += headerSize + longNames.Len()
		if longNames.Len()%2 != 0 {
			offset++
		}
	}

	memberOffset := make([]int, len(members))
	for i, m := range members {
		memberOffset[i] = offset
		offset += headerSize + len(m.Data)
		if len(m.Data)%2 != 0 {
			offset++
		}
	}

	// Symbol table body.
	var symtab bytes.Buffer
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(symCount))
	symtab.Write(count[:])
	for i, m := range members {
		for range m.Symbols {
			var off [4]byte
			binary.BigEndian.PutUint32(off[:], uint32(memberOffset[i]))
			symtab.Write(off[:])
		}
	}
	for _, m := range members {
		for _, s := range m.Symbols {
			symtab.WriteString(s)
			symtab.WriteByte(0)
		}
	}

	var out bytes.Buffer
	out.WriteString(ArMagic)
	writeMember(&out, "/", symtab.Bytes())
	if longNames.Len() > 0 {
		writeMember(&out, "//", longNames.Bytes())
	}
	for i, m := range members {
		name := m.Name + "/"
		if ref, ok := longRef[i]; ok {
			name = ref
		}
		writeMember(&out, name, m.Data)
	}
	return out.Bytes()
}

func writeMember(out *bytes.Buffer, name string, data []byte) {
	fmt.Fprintf(out, "%-16s%-12d%-6d%-6d%-8o%-10d%s", name, 0, 0, 0, 0o644, len(data), headerMagic)
	out.Write(data)
	if len(data)%2 != 0 {
		out.WriteByte('\n')
	}
}
