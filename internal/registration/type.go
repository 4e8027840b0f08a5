package registration

import (
	"fmt"

	"il2cppdump/internal/vmem"
)

// TypeEnum is the IL2CPP type tag (Il2CppTypeEnum in the runtime headers).
type TypeEnum uint8

const (
	TypeEnd      TypeEnum = 0x00
	TypeVoid     TypeEnum = 0x01
	TypeBoolean  TypeEnum = 0x02
	TypeChar     TypeEnum = 0x03
	TypeI1       TypeEnum = 0x04
	TypeU1       TypeEnum = 0x05
	TypeI2       TypeEnum = 0x06
	TypeU2       TypeEnum = 0x07
	TypeI4       TypeEnum = 0x08
	TypeU4       TypeEnum = 0x09
	TypeI8       TypeEnum = 0x0A
	TypeU8       TypeEnum = 0x0B
	TypeR4       TypeEnum = 0x0C
	TypeR8       TypeEnum = 0x0D
	TypeString   TypeEnum = 0x0E
	TypePtr      TypeEnum = 0x0F
	TypeByref    TypeEnum = 0x10
	TypeValueType TypeEnum = 0x11
	TypeClass    TypeEnum = 0x12
	TypeVar      TypeEnum = 0x13
	TypeArray    TypeEnum = 0x14
	TypeGenericInst TypeEnum = 0x15
	TypeTypedByref  TypeEnum = 0x16
	TypeI        TypeEnum = 0x18
	TypeU        TypeEnum = 0x19
	TypeFnptr    TypeEnum = 0x1B
	TypeObject   TypeEnum = 0x1C
	TypeSzarray  TypeEnum = 0x1D
	TypeMvar     TypeEnum = 0x1E
	TypeCmodReqd TypeEnum = 0x1F
	TypeCmodOpt  TypeEnum = 0x20
	TypeInternal TypeEnum = 0x21
	TypeModifier TypeEnum = 0x40
	TypeSentinel TypeEnum = 0x41
	TypePinned   TypeEnum = 0x45
)

// Type is a fully decoded Il2CppType record: the packed datapoint+bits word
// plus the bitfield values extracted from Bits, whose layout shifted at
// metadata version 27.2.
type Type struct {
	Datapoint uint64
	Bits      uint32

	Attrs     uint16
	TypeKind  TypeEnum
	NumMods   uint8
	ByRef     bool
	Pinned    bool
	ValueType bool
}

// DecodeType reads the Il2CppType record at va (a pointer-width datapoint
// followed by a 4-byte bits word) and unpacks its bitfield per the
// version-dependent shift table.
func DecodeType(view *vmem.View, va uint64, version float64) (*Type, error) {
	raw, err := view.ReadAt(va, view.PointerSize+4)
	if err != nil {
		return nil, fmt.Errorf("registration: Il2CppType at %#x: %w", va, err)
	}
	var datapoint uint64
	if view.PointerSize == 4 {
		datapoint = uint64(leUint32(raw[0:4]))
	} else {
		datapoint = leUint64(raw[0:8])
	}
	bits := leUint32(raw[view.PointerSize : view.PointerSize+4])

	t := &Type{Datapoint: datapoint, Bits: bits}
	t.Attrs = uint16(bits & 0xFFFF)
	t.TypeKind = TypeEnum((bits >> 16) & 0xFF)
	if version >= 27.2 {
		t.NumMods = uint8((bits >> 24) & 0x1F)
		t.ByRef = (bits>>29)&1 != 0
		t.Pinned = (bits>>30)&1 != 0
		t.ValueType = (bits>>31)&1 != 0
	} else {
		t.NumMods = uint8((bits >> 24) & 0x3F)
		t.ByRef = (bits>>30)&1 != 0
		t.Pinned = (bits>>31)&1 != 0
	}
	return t, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leUint32(b []byte) uint32 {
	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

// GenericClass is a closed generic type instance.
type GenericClass struct {
	TypeDefinitionIndex int64  `ver:"max=24.5"` // index form, pre-27
	Type                uint64 // VA of an Il2CppType, 27+
	ClassInstVA         uint64
	MethodInstVA        uint64
	CachedClass         uint64
}

// DecodeGenericClass reads an Il2CppGenericClass record at va.
func DecodeGenericClass(view *vmem.View, va uint64, version float64) (*GenericClass, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: GenericClass: %w", err)
	}
	var gc GenericClass
	if version <= 24.5 {
		v, err := d.ptr()
		if err != nil {
			return nil, err
		}
		gc.TypeDefinitionIndex = int64(v)
	}
	if version >= 27 {
		v, err := d.ptr()
		if err != nil {
			return nil, err
		}
		gc.Type = v
	}
	classInst, err := d.ptr()
	if err != nil {
		return nil, err
	}
	methodInst, err := d.ptr()
	if err != nil {
		return nil, err
	}
	cached, err := d.ptr()
	if err != nil {
		return nil, err
	}
	gc.ClassInstVA, gc.MethodInstVA, gc.CachedClass = classInst, methodInst, cached
	return &gc, nil
}

// GenericInst is a generic argument list: type_argc type arguments, each an
// Il2CppType pointer.
type GenericInst struct {
	TypeArgc  uint64
	TypeArgvVA uint64
}

// DecodeGenericInst reads an Il2CppGenericInst record at va.
func DecodeGenericInst(view *vmem.View, va uint64) (*GenericInst, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: GenericInst: %w", err)
	}
	argc, err := d.ptr()
	if err != nil {
		return nil, err
	}
	argv, err := d.ptr()
	if err != nil {
		return nil, err
	}
	return &GenericInst{TypeArgc: argc, TypeArgvVA: argv}, nil
}

// TypeArgs reads the type_argc Il2CppType* entries pointed to by a
// GenericInst's TypeArgvVA.
func (gi *GenericInst) TypeArgs(view *vmem.View) ([]uint64, error) {
	return ReadPointerTable(view, gi.TypeArgvVA, int(gi.TypeArgc))
}

// GenericContext links a class and method instantiation together.
type GenericContext struct {
	ClassInstVA  uint64
	MethodInstVA uint64
}

// DecodeGenericContext reads an Il2CppGenericContext record at va.
func DecodeGenericContext(view *vmem.View, va uint64) (*GenericContext, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: GenericContext: %w", err)
	}
	classInst, err := d.ptr()
	if err != nil {
		return nil, err
	}
	methodInst, err := d.ptr()
	if err != nil {
		return nil, err
	}
	return &GenericContext{ClassInstVA: classInst, MethodInstVA: methodInst}, nil
}

// ArrayType is an Il2CppArrayType: an element type plus rank and the
// (usually absent) non-zero-lower-bound size/lobound tables.
type ArrayType struct {
	EtypeVA     uint64
	Rank        uint8
	NumSizes    uint8
	NumLoBounds uint8
	SizesVA     uint64
	LoBoundsVA  uint64
}

// DecodeArrayType reads an Il2CppArrayType record at va.
func DecodeArrayType(view *vmem.View, va uint64) (*ArrayType, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: ArrayType: %w", err)
	}
	etype, err := d.ptr()
	if err != nil {
		return nil, err
	}
	rank, err := d.cursor.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("registration: ArrayType: %w", err)
	}
	numSizes, err := d.cursor.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("registration: ArrayType: %w", err)
	}
	numLoBounds, err := d.cursor.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("registration: ArrayType: %w", err)
	}
	// padding to realign to pointer width before the two table pointers:
	// the three byte-wide fields leave ptr_size-3 bytes of struct padding.
	if err := d.cursor.Skip(view.PointerSize - 3); err != nil {
		return nil, fmt.Errorf("registration: ArrayType: %w", err)
	}
	sizes, err := d.ptr()
	if err != nil {
		return nil, err
	}
	lobounds, err := d.ptr()
	if err != nil {
		return nil, err
	}
	return &ArrayType{
		EtypeVA:     etype,
		Rank:        rank,
		NumSizes:    numSizes,
		NumLoBounds: numLoBounds,
		SizesVA:     sizes,
		LoBoundsVA:  lobounds,
	}, nil
}
