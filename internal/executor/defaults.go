package executor

import (
	"math"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/registration"
)

// DefaultValue resolves a field or parameter's constant initializer. data
// holds the value's raw bytes (taken from FieldDefaultValueData in the
// metadata), and typeIndex selects the Il2CppType that describes how to
// interpret them. Returns (nil, false) for types with no representable
// constant form — callers emit a comment placeholder in that case, the way
// the output stage does for defaults it cannot render.
func (r *Resolver) DefaultValue(typeIndex int32, data []byte) (any, bool) {
	t, ok := r.img.typeAtIndex(typeIndex)
	if !ok {
		return nil, false
	}
	c := binstream.NewCursor(data)

	switch t.TypeKind {
	case registration.TypeBoolean:
		v, err := c.ReadU8()
		return v != 0, err == nil
	case registration.TypeU1:
		v, err := c.ReadU8()
		return v, err == nil
	case registration.TypeI1:
		v, err := c.ReadI8()
		return v, err == nil
	case registration.TypeChar:
		v, err := c.ReadU16()
		return rune(v), err == nil
	case registration.TypeU2:
		v, err := c.ReadU16()
		return v, err == nil
	case registration.TypeI2:
		v, err := c.ReadU16()
		return int16(v), err == nil
	case registration.TypeU4:
		if r.img.Version >= 29 {
			v, err := c.ReadCompressedUint32()
			return v, err == nil
		}
		v, err := c.ReadU32()
		return v, err == nil
	case registration.TypeI4:
		if r.img.Version >= 29 {
			v, err := c.ReadCompressedUint32()
			return zigzagDecode(v), err == nil
		}
		v, err := c.ReadI32()
		return v, err == nil
	case registration.TypeU8:
		v, err := c.ReadU64()
		return v, err == nil
	case registration.TypeI8:
		v, err := c.ReadI64()
		return v, err == nil
	case registration.TypeR4:
		v, err := c.ReadU32()
		return math.Float32frombits(v), err == nil
	case registration.TypeR8:
		v, err := c.ReadU64()
		return math.Float64frombits(v), err == nil
	case registration.TypeString:
		return r.defaultString(c)
	default:
		return nil, false
	}
}

// zigzagDecode undoes the compressed-int32 zigzag encoding .NET metadata
// uses at v29+ for signed default values.
func zigzagDecode(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

func (r *Resolver) defaultString(c *binstream.Cursor) (any, bool) {
	if r.img.Version >= 29 {
		raw, err := c.ReadCompressedUint32()
		if err != nil {
			return nil, false
		}
		length := zigzagDecode(raw)
		if length == -1 {
			return nil, true
		}
		b, err := c.ReadBytes(int(length))
		if err != nil {
			return nil, false
		}
		return string(b), true
	}
	length, err := c.ReadI32()
	if err != nil {
		return nil, false
	}
	b, err := c.ReadBytes(int(length))
	if err != nil {
		return nil, false
	}
	return string(b), true
}

// MethodPointer resolves a method definition's runtime code address, either
// via the legacy flat method-pointer table (pre-24.2) or the per-image
// CodeGenModule table keyed by method token (24.2+).
func (r *Resolver) MethodPointer(imageName string, methodIndex int32, token uint32) (uint64, error) {
	if r.img.Version >= 24.2 {
		ptrs := r.img.CodeGenModuleMethodPointers[imageName]
		idx := token & 0x00FFFFFF
		if idx == 0 || int(idx) > len(ptrs) {
			return 0, nil
		}
		return ptrs[idx-1], nil
	}
	if methodIndex < 0 || int(methodIndex) >= len(r.img.MethodPointers) {
		return 0, nil
	}
	return r.img.MethodPointers[methodIndex], nil
}
