package binstream

import (
	"reflect"
	"testing"
)

type testRecord struct {
	NameIndex int32
	Token     uint32 `ver:"min=19"`
	RgctxIdx  int16  `ver:"max=24.1"`
}

func TestCompileLayoutVersionGating(t *testing.T) {
	// v16: no Token (min=19 not satisfied), RgctxIdx present (max=24.1 satisfied).
	l16, err := CompileLayout(reflect.TypeOf(testRecord{}), 16)
	if err != nil {
		t.Fatal(err)
	}
	if l16.Size() != 4+2 {
		t.Fatalf("v16 size = %d, want 6", l16.Size())
	}

	// v24.2: Token present, RgctxIdx gone.
	l242, err := CompileLayout(reflect.TypeOf(testRecord{}), 24.2)
	if err != nil {
		t.Fatal(err)
	}
	if l242.Size() != 4+4 {
		t.Fatalf("v24.2 size = %d, want 8", l242.Size())
	}

	// v27: both conditional fields present/absent as above, Token stays, RgctxIdx gone.
	l27, err := CompileLayout(reflect.TypeOf(testRecord{}), 27)
	if err != nil {
		t.Fatal(err)
	}
	if l27.Size() != 8 {
		t.Fatalf("v27 size = %d, want 8", l27.Size())
	}
}

func TestDecodeHonorsVersion(t *testing.T) {
	// v24.2 layout: NameIndex(4) + Token(4), no RgctxIdx.
	data := []byte{0x01, 0x00, 0x00, 0x00, 0x2A, 0x00, 0x00, 0x00}
	c := NewCursor(data)
	var rec testRecord
	if err := Decode(c, &rec, 24.2); err != nil {
		t.Fatal(err)
	}
	if rec.NameIndex != 1 || rec.Token != 42 || rec.RgctxIdx != 0 {
		t.Fatalf("rec = %+v", rec)
	}
	if c.Position() != 8 {
		t.Fatalf("position = %d, want 8", c.Position())
	}
}

type testInner struct {
	A int32
	B int32 `ver:"max=24.3"`
}

type testOuter struct {
	Head  int32
	Inner testInner
}

func TestDecodeNestedStructHonorsInnerVersionTags(t *testing.T) {
	// v24.2: Head(4) + Inner.A(4) + Inner.B(4).
	l, err := CompileLayout(reflect.TypeOf(testOuter{}), 24.2)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size() != 12 {
		t.Fatalf("v24.2 size = %d, want 12", l.Size())
	}
	data := []byte{
		7, 0, 0, 0,
		1, 0, 0, 0,
		2, 0, 0, 0,
	}
	var rec testOuter
	if err := Decode(NewCursor(data), &rec, 24.2); err != nil {
		t.Fatal(err)
	}
	if rec.Head != 7 || rec.Inner.A != 1 || rec.Inner.B != 2 {
		t.Fatalf("rec = %+v", rec)
	}

	// v24.4: Inner.B dropped, record shrinks to 8 bytes.
	l244, err := CompileLayout(reflect.TypeOf(testOuter{}), 24.4)
	if err != nil {
		t.Fatal(err)
	}
	if l244.Size() != 8 {
		t.Fatalf("v24.4 size = %d, want 8", l244.Size())
	}
}

func TestDecodeArray(t *testing.T) {
	// two v16 records: NameIndex(4) + RgctxIdx(2) = 6 bytes each.
	data := []byte{
		1, 0, 0, 0, 0xAA, 0x00,
		2, 0, 0, 0, 0xBB, 0x00,
	}
	c := NewCursor(data)
	out, err := DecodeArray(c, reflect.TypeOf(testRecord{}), 2, 16)
	if err != nil {
		t.Fatal(err)
	}
	recs := out.Interface().([]testRecord)
	if len(recs) != 2 || recs[0].NameIndex != 1 || recs[1].NameIndex != 2 {
		t.Fatalf("recs = %+v", recs)
	}
}
