package binstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestReadPrimitives(t *testing.T) {
	data := []byte{0x01, 0x02, 0x00, 0x03, 0x04, 0x05, 0x06, 0xFF}
	c := NewCursor(data)

	b, err := c.ReadU8()
	if err != nil || b != 0x01 {
		t.Fatalf("ReadU8 = %v, %v", b, err)
	}
	u16, err := c.ReadU16()
	if err != nil || u16 != 0x0002 {
		t.Fatalf("ReadU16 = %v, %v", u16, err)
	}
	u32, err := c.ReadU32()
	if err != nil || u32 != binary.LittleEndian.Uint32(data[3:7]) {
		t.Fatalf("ReadU32 = %v, %v", u32, err)
	}
	if c.Remaining() != 1 {
		t.Fatalf("Remaining = %d, want 1", c.Remaining())
	}
}

func TestReadBytesEOF(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if _, err := c.ReadBytes(4); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadCString(t *testing.T) {
	c := NewCursor([]byte("hello\x00world"))
	s, err := c.ReadCString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadCString = %q, %v", s, err)
	}
	if c.Position() != 6 {
		t.Fatalf("position = %d, want 6", c.Position())
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	c := NewCursor([]byte("no-nul-here"))
	if _, err := c.ReadCString(); !errors.Is(err, ErrMalformedString) {
		t.Fatalf("expected ErrMalformedString, got %v", err)
	}
}

func TestAlign(t *testing.T) {
	c := NewCursor(make([]byte, 16))
	_ = c.SetPosition(3)
	if err := c.Align(4); err != nil {
		t.Fatal(err)
	}
	if c.Position() != 4 {
		t.Fatalf("position = %d, want 4", c.Position())
	}
}

func TestSetPositionOutOfRange(t *testing.T) {
	c := NewCursor(make([]byte, 4))
	if err := c.SetPosition(5); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestReadCompressedUint32(t *testing.T) {
	cases := []struct {
		bytes []byte
		want  uint32
	}{
		{[]byte{0x7F}, 127},
		{[]byte{0xBF, 0xFF}, 0x3FFF},
		{[]byte{0xDF, 0x78, 0x56, 0x34}, 0x1F785634},
		{[]byte{0xFF, 0x78, 0x56, 0x34}, 0x1F785634},
	}

	for i, tc := range cases {
		c := NewCursor(tc.bytes)
		got, err := c.ReadCompressedUint32()
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != tc.want {
			t.Fatalf("case %d: got %#x, want %#x", i, got, tc.want)
		}
	}
}

func TestReadCompressedUint32FFPrefixConsumesFourBytesNotFive(t *testing.T) {
	c := NewCursor([]byte{0xFF, 0x78, 0x56, 0x34, 0xAA})
	if _, err := c.ReadCompressedUint32(); err != nil {
		t.Fatal(err)
	}
	if c.Position() != 4 {
		t.Fatalf("position = %d, want 4 (0xFF is an ordinary 4-byte prefix, not a 5-byte escape)", c.Position())
	}
}

func TestReadU64Array(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(0); i < 5; i++ {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], i*0x1000)
		buf.Write(tmp[:])
	}
	c := NewCursor(buf.Bytes())
	arr, err := c.ReadU64Array(5)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range arr {
		if v != uint64(i)*0x1000 {
			t.Fatalf("arr[%d] = %#x", i, v)
		}
	}
}

func FuzzReadCString(f *testing.F) {
	f.Add([]byte("abc\x00"))
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Fuzz(func(t *testing.T, data []byte) {
		c := NewCursor(data)
		_, _ = c.ReadCString()
	})
}
