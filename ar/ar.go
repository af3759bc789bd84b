package ar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ArMagic is the global header every archive starts with.
const ArMagic = "!<arch>\n"

const (
	headerSize  = 60
	headerMagic = "`\n"
)

// Symbol is one entry of the archive's symbol table: a defined name and
// the archive-relative offset of the member header that defines it.
type Symbol struct {
	Name   string
	Offset uint32
}

// Member is a single archive member.
type Member struct {
	Name string
	Data []byte
}

// Archive is a parsed Unix archive with a SysV symbol table.
type Archive struct {
	Name    string
	Symbols []Symbol

	data     []byte
	longName []byte // extended name table ("//" member)
}

// IsArchive reports whether data begins with the archive magic.
func IsArchive(data []byte) bool {
	return len(data) >= len(ArMagic) && string(data[:len(ArMagic)]) == ArMagic
}

// Parse reads the archive structure and its symbol table. Member data is
// not touched until Member is called; the linker pulls members lazily.
func Parse(name string, data []byte) (*Archive, error) {
	if !IsArchive(data) {
		return nil, fmt.Errorf("ar: %s: bad magic", name)
	}
	a := &Archive{Name: name, data: data}

	pos := len(ArMagic)
	for pos+headerSize <= len(data) {
		memberName, size, err := parseHeader(data[pos : pos+headerSize])
		if err != nil {
			return nil, fmt.Errorf("ar: %s: offset %d: %w", name, pos, err)
		}
		body := data[pos+headerSize:]
		if size > len(body) {
			return nil, fmt.Errorf("ar: %s: member %q truncated", name, memberName)
		}
		body = body[:size]

		switch memberName {
		case "/":
			if err := a.parseSymbolTable(body); err != nil {
				return nil, fmt.Errorf("ar: %s: symbol table: %w", name, err)
			}
		case "//":
			a.longName = body
		}

		pos += headerSize + size
		if size%2 != 0 {
			pos++ // members are aligned to even offsets
		}
	}
	return a, nil
}

// Member reads the member whose header starts at the given archive offset,
// as referenced by a symbol table entry.
func (a *Archive) Member(offset uint32) (*Member, error) {
	pos := int(offset)
	if pos+headerSize > len(a.data) {
		return nil, fmt.Errorf("ar: %s: member offset %d out of range", a.Name, offset)
	}
	name, size, err := parseHeader(a.data[pos : pos+headerSize])
	if err != nil {
		return nil, fmt.Errorf("ar: %s: offset %d: %w", a.Name, offset, err)
	}
	body := a.data[pos+headerSize:]
	if size > len(body) {
		return nil, fmt.Errorf("ar: %s: member %q truncated", a.Name, name)
	}
	if strings.HasPrefix(name, "/") && name != "/" && name != "//" {
		if name, err = a.resolveLongName(name); err != nil {
			return nil, err
		}
	}
	return &Member{Name: name, Data: body[:size]}, nil
}

func (a *Archive) resolveLongName(ref string) (string, error) {
	off, err := strconv.Atoi(ref[1:])
	if err != nil || off < 0 || off >= len(a.longName) {
		return "", fmt.Errorf("ar: %s: bad long name reference %q", a.Name, ref)
	}
	rest := a.longName[off:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSuffix(string(rest), "/"), nil
}

// parseSymbolTable decodes the SysV "/" member: a big-endian count, that
// many big-endian member offsets, then NUL-terminated names.
func (a *Archive) parseSymbolTable(body []byte) error {
	if len(body) < 4 {
		return fmt.Errorf("short symbol table")
	}
	count := binary.BigEndian.Uint32(body)
	need := 4 + int(count)*4
	if len(body) < need {
		return fmt.Errorf("symbol table truncated")
	}
	names := body[need:]
	for i := uint32(0); i < count; i++ {
		offset := binary.BigEndian.Uint32(body[4+i*4:])
		end := bytes.IndexByte(names, 0)
		if end < 0 {
			return fmt.Errorf("unterminated symbol name")
		}
		a.Symbols = append(a.Symbols, Symbol{Name: string(names[:end]), Offset: offset})
		names = names[end+1:]
	}
	return nil
}

func parseHeader(h []byte) (name string, size int, err error) {
	if string(h[58:60]) != headerMagic {
		return "", 0, fmt.Errorf("bad member header")
	}
	size, err = strconv.Atoi(strings.TrimSpace(string(h[48:58])))
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("bad member size")
	}
	name = strings.TrimRight(string(h[0:16]), " ")
	if name != "/" && name != "//" && !strings.HasPrefix(name, "/") {
		name = strings.TrimSuffix(name, "/")
	}
	return name, size, nil
}
