package wasm

import (
	"bytes"
	"errors"
	"io"
)

// LEB128 encoding/decoding utilities for the WebAssembly binary format,
// including the fixed-width padded forms the linker uses for in-place
// patching and section size fix-ups.

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// MaxWidth32 is the maximal LEB128 encoding width of a 32-bit value.
const MaxWidth32 = 5

// ReadLEB128u reads an unsigned LEB128 value
func ReadLEB128u(r io.ByteReader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

// ReadLEB128u64 reads an unsigned 64-bit LEB128 value
func ReadLEB128u64(r io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, ErrOverflow
		}
	}
}

// ReadLEB128s reads a signed LEB128 value (32-bit)
func ReadLEB128s(r io.ByteReader) (int32, error) {
	var result int32
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
	// Sign extend
	if shift < 32 && b&0x40 != 0 {
		result |= ^int32(0) << shift
	}
	return result, nil
}

// ReadLEB128s64 reads a signed 64-bit LEB128 value
func ReadLEB128s64(r io.ByteReader) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 70 {
			return 0, ErrOverflow
		}
	}
	// Sign extend
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

// DecodeLEB128u decodes an unsigned LEB128 value from the front of b,
// returning the value and the number of bytes consumed.
func DecodeLEB128u(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, c := range b {
		result |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// WriteLEB128u writes an unsigned LEB128 value
func WriteLEB128u(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteLEB128u64 writes an unsigned 64-bit LEB128 value
func WriteLEB128u64(w *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteLEB128s writes a signed LEB128 value
func WriteLEB128s(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// WriteLEB128s64 writes a signed 64-bit LEB128 value
func WriteLEB128s64(w *bytes.Buffer, v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// ULEB128Width returns the minimal encoded width of v in bytes.
func ULEB128Width(v uint32) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// SLEB128Width returns the minimal encoded width of v in bytes.
func SLEB128Width(v int32) int {
	n := 0
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		}
		n++
	}
	return n
}

// PutLEB128uPadded writes v into b[:width] as an unsigned LEB128 value
// padded with continuation bytes to occupy exactly width bytes. The value
// 0 padded to 5 bytes yields four 0x80 bytes followed by 0x00. Panics if
// v does not fit in width bytes.
func PutLEB128uPadded(b []byte, v uint32, width int) {
	if ULEB128Width(v) > width {
		panic("leb128: value does not fit padded width")
	}
	for i := 0; i < width-1; i++ {
		b[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	b[width-1] = byte(v & 0x7f)
}

// PutLEB128sPadded writes v into b[:width] as a signed LEB128 value padded
// with continuation bytes to occupy exactly width bytes.
func PutLEB128sPadded(b []byte, v int32, width int) {
	if SLEB128Width(v) > width {
		panic("leb128: value does not fit padded width")
	}
	for i := 0; i < width-1; i++ {
		b[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	b[width-1] = byte(v & 0x7f)
}

// AppendLEB128uPadded appends the padded encoding of v to dst.
func AppendLEB128uPadded(dst []byte, v uint32, width int) []byte {
	var tmp [10]byte
	PutLEB128uPadded(tmp[:width], v, width)
	return append(dst, tmp[:width]...)
}
