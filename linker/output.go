package linker

import (
	"encoding/binary"

	"github.com/wippyai/wasm-ld/wasm"
)

// outputBuffer is the seekable byte sink sections are emitted into. The
// size fix-up protocol seeks back over an already-written placeholder, so
// writes at positions before the end overwrite in place.
type outputBuffer struct {
	buf []byte
	pos int
}

func (o *outputBuffer) Bytes() []byte { return o.buf }

func (o *outputBuffer) Tell() uint32 { return uint32(o.pos) }

func (o *outputBuffer) Seek(pos uint32) { o.pos = int(pos) }

func (o *outputBuffer) Write(p []byte) {
	need := o.pos + len(p)
	if need > len(o.buf) {
		o.buf = append(o.buf, make([]byte, need-len(o.buf))...)
	}
	copy(o.buf[o.pos:], p)
	o.pos = need
}

func (o *outputBuffer) WriteByte(b byte) {
	o.Write([]byte{b})
}

func (o *outputBuffer) WriteU32LE(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	o.Write(tmp[:])
}

func (o *outputBuffer) WriteULEB(v uint32) {
	var tmp [wasm.MaxWidth32]byte
	n := wasm.ULEB128Width(v)
	wasm.PutLEB128uPadded(tmp[:n], v, n)
	o.Write(tmp[:n])
}

func (o *outputBuffer) WriteSLEB(v int32) {
	var tmp [wasm.MaxWidth32]byte
	n := wasm.SLEB128Width(v)
	wasm.PutLEB128sPadded(tmp[:n], v, n)
	o.Write(tmp[:n])
}

func (o *outputBuffer) WriteSLEB64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		o.WriteByte(b)
	}
}

// WriteULEBPadded writes v at exactly width bytes so a later fix-up can
// rewrite it without moving the surrounding content.
func (o *outputBuffer) WriteULEBPadded(v uint32, width int) {
	var tmp [10]byte
	wasm.PutLEB128uPadded(tmp[:width], v, width)
	o.Write(tmp[:width])
}

func (o *outputBuffer) WriteStr(s string) {
	o.WriteULEB(uint32(len(s)))
	o.Write([]byte(s))
}
