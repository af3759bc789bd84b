package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-ld/wasm"
)

func TestLEB128Unsigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		wasm.WriteLEB128u(&buf, tt.value)
		if !bytes.Equal(buf.Bytes(), tt.encoded) {
			t.Errorf("encode %d: got %v, want %v", tt.value, buf.Bytes(), tt.encoded)
		}

		got, n, err := wasm.DecodeLEB128u(tt.encoded)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != tt.value || n != len(tt.encoded) {
			t.Errorf("decode: got (%d, %d), want (%d, %d)", got, n, tt.value, len(tt.encoded))
		}
	}
}

func TestLEB128Widths(t *testing.T) {
	utests := []struct {
		value uint32
		width int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{1 << 28, 5},
		{0xFFFFFFFF, 5},
	}
	for _, tt := range utests {
		if got := wasm.ULEB128Width(tt.value); got != tt.width {
			t.Errorf("ULEB128Width(%d) = %d, want %d", tt.value, got, tt.width)
		}
	}

	stests := []struct {
		value int32
		width int
	}{
		{0, 1},
		{63, 1},
		{64, 2},
		{-1, 1},
		{-64, 1},
		{-65, 2},
		{1 << 30, 5},
		{-2147483648, 5},
	}
	for _, tt := range stests {
		if got := wasm.SLEB128Width(tt.value); got != tt.width {
			t.Errorf("SLEB128Width(%d) = %d, want %d", tt.value, got, tt.width)
		}
	}
}

func TestPaddedULEB128(t *testing.T) {
	tests := []struct {
		value   uint32
		encoded []byte
	}{
		// Zero padded to 5 bytes: four continuation bytes then 0x00.
		{0, []byte{0x80, 0x80, 0x80, 0x80, 0x00}},
		{1, []byte{0x81, 0x80, 0x80, 0x80, 0x00}},
		{624485, []byte{0xe5, 0x8e, 0xa6, 0x80, 0x00}},
		{0xFFFFFFFF, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		var buf [5]byte
		wasm.PutLEB128uPadded(buf[:], tt.value, 5)
		if !bytes.Equal(buf[:], tt.encoded) {
			t.Errorf("padded encode %d: got %v, want %v", tt.value, buf, tt.encoded)
		}

		// The padded form must decode back to the same value in 5 bytes.
		got, n, err := wasm.DecodeLEB128u(buf[:])
		if err != nil {
			t.Fatalf("decode padded %d: %v", tt.value, err)
		}
		if got != tt.value || n != 5 {
			t.Errorf("decode padded: got (%d, %d), want (%d, 5)", got, n, tt.value)
		}
	}
}

func TestPaddedSLEB128(t *testing.T) {
	tests := []struct {
		value   int32
		encoded []byte
	}{
		{0, []byte{0x80, 0x80, 0x80, 0x80, 0x00}},
		{1, []byte{0x81, 0x80, 0x80, 0x80, 0x00}},
		{-1, []byte{0xff, 0xff, 0xff, 0xff, 0x7f}},
		{-2147483648, []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
		{2147483647, []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
	}
	for _, tt := range tests {
		var buf [5]byte
		wasm.PutLEB128sPadded(buf[:], tt.value, 5)
		if !bytes.Equal(buf[:], tt.encoded) {
			t.Errorf("padded encode %d: got %v, want %v", tt.value, buf, tt.encoded)
		}

		r := bytes.NewReader(buf[:])
		got, err := wasm.ReadLEB128s(r)
		if err != nil {
			t.Fatalf("decode padded %d: %v", tt.value, err)
		}
		if got != tt.value {
			t.Errorf("decode padded: got %d, want %d", got, tt.value)
		}
	}
}

func TestPaddedDoesNotFit(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for value wider than padding")
		}
	}()
	var buf [2]byte
	wasm.PutLEB128uPadded(buf[:], 1<<21, 2)
}
