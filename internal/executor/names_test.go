package executor

import (
	"testing"

	"il2cppdump/internal/metadata"
	"il2cppdump/internal/registration"
	"il2cppdump/internal/vmem"
)

func newTestImage() *Image {
	return &Image{
		View: &vmem.View{
			Data:        make([]byte, 0x1000),
			PointerSize: 8,
			Segments: []vmem.Segment{
				{Name: "seg", VAddr: 0, Size: 0x1000, FileOffset: 0, FileSize: 0x1000, Perm: vmem.PermRead},
			},
		},
		Meta:           &metadata.Image{Version: 27},
		Version:        27,
		types:          make(map[uint64]*registration.Type),
		genericInsts:   make(map[uint64]*registration.GenericInst),
		genericClasses: make(map[uint64]*registration.GenericClass),
		MethodDefinitionMethodSpecs:    make(map[int32][]int),
		MethodSpecGenericMethodPointer: make(map[int]uint64),
	}
}

func TestTypeNamePrimitive(t *testing.T) {
	img := newTestImage()
	r := NewResolver(img)
	ty := &registration.Type{TypeKind: registration.TypeI4}
	name, err := r.TypeName(ty, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if name != "int" {
		t.Fatalf("got %q", name)
	}
}

func TestTypeNameSzarrayOfPrimitive(t *testing.T) {
	img := newTestImage()
	elemVA := uint64(0x100)
	img.types[elemVA] = &registration.Type{TypeKind: registration.TypeString}
	r := NewResolver(img)
	ty := &registration.Type{TypeKind: registration.TypeSzarray, Datapoint: elemVA}
	name, err := r.TypeName(ty, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if name != "string[]" {
		t.Fatalf("got %q", name)
	}
}

func TestTypeNamePointer(t *testing.T) {
	img := newTestImage()
	elemVA := uint64(0x200)
	img.types[elemVA] = &registration.Type{TypeKind: registration.TypeI4}
	r := NewResolver(img)
	ty := &registration.Type{TypeKind: registration.TypePtr, Datapoint: elemVA}
	name, err := r.TypeName(ty, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if name != "int*" {
		t.Fatalf("got %q", name)
	}
}

func TestTypeNameUnknownPointerFallsBackToVoidStar(t *testing.T) {
	img := newTestImage()
	r := NewResolver(img)
	ty := &registration.Type{TypeKind: registration.TypePtr, Datapoint: 0xDEAD}
	name, err := r.TypeName(ty, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if name != "void*" {
		t.Fatalf("got %q", name)
	}
}

func TestStripGenericArity(t *testing.T) {
	if got := stripGenericArity("List`1"); got != "List" {
		t.Fatalf("got %q", got)
	}
	if got := stripGenericArity("Plain"); got != "Plain" {
		t.Fatalf("got %q", got)
	}
}

func TestZigzagDecode(t *testing.T) {
	cases := map[uint32]int32{0: 0, 1: -1, 2: 1, 3: -2, 4: 2}
	for enc, want := range cases {
		if got := zigzagDecode(enc); got != want {
			t.Fatalf("zigzag(%d): got %d, want %d", enc, got, want)
		}
	}
}

func TestTypeNameCaching(t *testing.T) {
	img := newTestImage()
	r := NewResolver(img)
	ty := &registration.Type{TypeKind: registration.TypeBoolean}
	first, _ := r.TypeName(ty, true, false)
	if len(r.typeNameCache) != 1 {
		t.Fatalf("expected one cache entry, got %d", len(r.typeNameCache))
	}
	second, _ := r.TypeName(ty, true, false)
	if first != second {
		t.Fatalf("cache mismatch: %q vs %q", first, second)
	}
}
