package registration

import (
	"encoding/binary"
	"testing"

	"il2cppdump/internal/vmem"
)

func newView64(data []byte) *vmem.View {
	return &vmem.View{
		Data:        data,
		PointerSize: 8,
		Segments: []vmem.Segment{
			{Name: "seg", VAddr: 0, Size: uint64(len(data)), FileOffset: 0, FileSize: uint64(len(data)), Perm: vmem.PermRead},
		},
	}
}

func newView32(data []byte) *vmem.View {
	return &vmem.View{
		Data:        data,
		PointerSize: 4,
		Segments: []vmem.Segment{
			{Name: "seg", VAddr: 0, Size: uint64(len(data)), FileOffset: 0, FileSize: uint64(len(data)), Perm: vmem.PermRead},
		},
	}
}

func TestDecodeCodeRegistrationVersion24(t *testing.T) {
	// version 24: MethodPointers* present (max=24.1), ReversePInvokeWrapper*
	// present (min=22), CustomAttribute* present (max=24.5),
	// UnresolvedVirtualCall* present (min=22), InteropData* present (min=23);
	// GenericAdjustorThunks/WindowsRuntimeFactory/CodeGenModules all absent.
	data := make([]byte, 200)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(data[off:], v)
		off += 8
	}
	putU64(10)     // MethodPointersCount
	putU64(0x1000) // MethodPointers
	putU64(7)      // ReversePInvokeWrapperCount
	putU64(0x4000) // ReversePInvokeWrappers
	putU64(20)     // GenericMethodPointersCount
	putU64(0x2000) // GenericMethodPointers
	putU64(5)      // InvokerPointersCount
	putU64(0x3000) // InvokerPointers
	putU64(3)      // CustomAttributeCount
	putU64(0x6000) // CustomAttributeGenerators
	putU64(9)      // UnresolvedVirtualCallCount
	putU64(0x7000) // UnresolvedVirtualCallPointers
	putU64(11)     // InteropDataCount
	putU64(0x8000) // InteropData

	view := newView64(data)
	cr, err := DecodeCodeRegistration(view, 0, 24)
	if err != nil {
		t.Fatal(err)
	}
	if cr.MethodPointersCount != 10 || cr.MethodPointers != 0x1000 {
		t.Fatalf("method pointers: %+v", cr)
	}
	if cr.ReversePInvokeWrapperCount != 7 || cr.ReversePInvokeWrappers != 0x4000 {
		t.Fatalf("reverse pinvoke: %+v", cr)
	}
	if cr.GenericMethodPointersCount != 20 || cr.GenericMethodPointers != 0x2000 {
		t.Fatalf("generic method pointers: %+v", cr)
	}
	if cr.InvokerPointersCount != 5 || cr.InvokerPointers != 0x3000 {
		t.Fatalf("invoker pointers: %+v", cr)
	}
	if cr.CustomAttributeCount != 3 || cr.CustomAttributeGenerators != 0x6000 {
		t.Fatalf("custom attributes: %+v", cr)
	}
	if cr.UnresolvedVirtualCallCount != 9 || cr.UnresolvedVirtualCallPointers != 0x7000 {
		t.Fatalf("unresolved virtual calls: %+v", cr)
	}
	if cr.InteropDataCount != 11 || cr.InteropData != 0x8000 {
		t.Fatalf("interop data: %+v", cr)
	}
	if cr.GenericAdjustorThunks != 0 || cr.CodeGenModules != 0 || cr.WindowsRuntimeFactoryTable != 0 {
		t.Fatalf("expected v24.5+/v24.2+/v24.3+ fields unset at v24: %+v", cr)
	}
}

func TestDecodeCodeRegistrationVersion27(t *testing.T) {
	// version 27: no MethodPointersCount/MethodPointers (max=24.1), no
	// CustomAttribute* (max=24.5); has GenericAdjustorThunks (min=24.5),
	// WindowsRuntimeFactory* (min=24.3) and CodeGenModules* (min=24.2).
	data := make([]byte, 200)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(data[off:], v)
		off += 8
	}
	putU64(7)      // ReversePInvokeWrapperCount
	putU64(0x4000) // ReversePInvokeWrappers
	putU64(20)     // GenericMethodPointersCount
	putU64(0x2000) // GenericMethodPointers
	putU64(0x5000) // GenericAdjustorThunks
	putU64(5)      // InvokerPointersCount
	putU64(0x3000) // InvokerPointers
	putU64(9)      // UnresolvedVirtualCallCount
	putU64(0x7000) // UnresolvedVirtualCallPointers
	putU64(11)     // InteropDataCount
	putU64(0x8000) // InteropData
	putU64(2)      // WindowsRuntimeFactoryCount
	putU64(0x9000) // WindowsRuntimeFactoryTable
	putU64(4)      // CodeGenModulesCount
	putU64(0xA000) // CodeGenModules

	view := newView64(data)
	cr, err := DecodeCodeRegistration(view, 0, 27)
	if err != nil {
		t.Fatal(err)
	}
	if cr.MethodPointersCount != 0 || cr.MethodPointers != 0 {
		t.Fatalf("expected method pointers absent at v27, got %+v", cr)
	}
	if cr.ReversePInvokeWrapperCount != 7 || cr.ReversePInvokeWrappers != 0x4000 {
		t.Fatalf("reverse pinvoke: %+v", cr)
	}
	if cr.GenericAdjustorThunks != 0x5000 {
		t.Fatalf("generic adjustor thunks: %+v", cr)
	}
	if cr.InvokerPointersCount != 5 || cr.InvokerPointers != 0x3000 {
		t.Fatalf("invoker pointers: %+v", cr)
	}
	if cr.CustomAttributeCount != 0 || cr.CustomAttributeGenerators != 0 {
		t.Fatalf("expected custom attribute fields absent at v27: %+v", cr)
	}
	if cr.CodeGenModulesCount != 4 || cr.CodeGenModules != 0xA000 {
		t.Fatalf("code gen modules: %+v", cr)
	}
	if cr.WindowsRuntimeFactoryCount != 2 || cr.WindowsRuntimeFactoryTable != 0x9000 {
		t.Fatalf("windows runtime factory: %+v", cr)
	}
}

func TestDecodeCodeGenModule32Bit(t *testing.T) {
	data := make([]byte, 200)
	off := 0
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(data[off:], v)
		off += 4
	}
	putU32(0x100)  // ModuleNameVA
	putU32(12)     // MethodPointerCount
	putU32(0x200)  // MethodPointers
	putU32(0x300)  // InvokerIndices
	putU32(3)      // ReversePInvokeWrapperCount
	putU32(0x400)  // ReversePInvokeWrapperIndices
	putU32(2)      // RgctxRangesCount
	putU32(0x500)  // RgctxRanges
	putU32(4)      // RgctxsCount
	putU32(0x600)  // Rgctxs
	putU32(0x700)  // DebuggerMetadata

	view := newView32(data)
	m, err := DecodeCodeGenModule(view, 0, 21)
	if err != nil {
		t.Fatal(err)
	}
	if m.ModuleNameVA != 0x100 || m.MethodPointerCount != 12 || m.MethodPointers != 0x200 {
		t.Fatalf("%+v", m)
	}
	if m.AdjustorThunkCount != 0 || m.AdjustorThunks != 0 {
		t.Fatalf("expected no adjustor thunks below v24.5: %+v", m)
	}
	if m.DebuggerMetadata != 0x700 {
		t.Fatalf("%+v", m)
	}
}

func TestReadPointerTable(t *testing.T) {
	data := make([]byte, 64)
	binary.LittleEndian.PutUint64(data[0x10:], 0xAAAA)
	binary.LittleEndian.PutUint64(data[0x18:], 0xBBBB)
	binary.LittleEndian.PutUint64(data[0x20:], 0xCCCC)
	view := newView64(data)
	got, err := ReadPointerTable(view, 0x10, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0xAAAA, 0xBBBB, 0xCCCC}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("index %d: got %#x, want %#x", i, got[i], w)
		}
	}
}

func TestReadPointerTableEmpty(t *testing.T) {
	view := newView64(make([]byte, 16))
	got, err := ReadPointerTable(view, 0, 0)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestDecodeTypePre272(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[0:], 0xDEADBEEF)
	// bits: attrs=0x1234, type=0x12(Class), num_mods=5 at bit24 (6 bits), byref at bit30, pinned at bit31.
	var bits uint32
	bits |= 0x1234
	bits |= uint32(TypeClass) << 16
	bits |= 5 << 24
	bits |= 1 << 30 // byref
	binary.LittleEndian.PutUint32(data[8:], bits)

	view := newView64(data)
	typ, err := DecodeType(view, 0, 21)
	if err != nil {
		t.Fatal(err)
	}
	if typ.Datapoint != 0xDEADBEEF {
		t.Fatalf("datapoint: %#x", typ.Datapoint)
	}
	if typ.Attrs != 0x1234 {
		t.Fatalf("attrs: %#x", typ.Attrs)
	}
	if typ.TypeKind != TypeClass {
		t.Fatalf("kind: %v", typ.TypeKind)
	}
	if typ.NumMods != 5 {
		t.Fatalf("nummods: %d", typ.NumMods)
	}
	if !typ.ByRef {
		t.Fatal("expected byref")
	}
	if typ.Pinned {
		t.Fatal("expected not pinned")
	}
}

func TestDecodeTypePost272(t *testing.T) {
	data := make([]byte, 16)
	var bits uint32
	bits |= uint32(TypeGenericInst) << 16
	bits |= 3 << 24  // num_mods, 5 bits
	bits |= 1 << 29  // byref
	bits |= 1 << 31  // valuetype
	binary.LittleEndian.PutUint32(data[8:], bits)

	view := newView64(data)
	typ, err := DecodeType(view, 0, 27.2)
	if err != nil {
		t.Fatal(err)
	}
	if typ.TypeKind != TypeGenericInst {
		t.Fatalf("kind: %v", typ.TypeKind)
	}
	if typ.NumMods != 3 {
		t.Fatalf("nummods: %d", typ.NumMods)
	}
	if !typ.ByRef {
		t.Fatal("expected byref")
	}
	if typ.Pinned {
		t.Fatal("expected not pinned")
	}
	if !typ.ValueType {
		t.Fatal("expected valuetype")
	}
}

func TestDecodeGenericInstAndTypeArgs(t *testing.T) {
	data := make([]byte, 64)
	binary.LittleEndian.PutUint64(data[0:], 2)    // TypeArgc
	binary.LittleEndian.PutUint64(data[8:], 0x20) // TypeArgvVA
	binary.LittleEndian.PutUint64(data[0x20:], 0x1111)
	binary.LittleEndian.PutUint64(data[0x28:], 0x2222)

	view := newView64(data)
	gi, err := DecodeGenericInst(view, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gi.TypeArgc != 2 || gi.TypeArgvVA != 0x20 {
		t.Fatalf("%+v", gi)
	}
	args, err := gi.TypeArgs(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 || args[0] != 0x1111 || args[1] != 0x2222 {
		t.Fatalf("args: %v", args)
	}
}

func TestDecodeGenericClassPre245(t *testing.T) {
	data := make([]byte, 64)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(data[off:], v)
		off += 8
	}
	putU64(42)     // TypeDefinitionIndex
	putU64(0x1000) // ClassInstVA
	putU64(0x2000) // MethodInstVA
	putU64(0x3000) // CachedClass

	view := newView64(data)
	gc, err := DecodeGenericClass(view, 0, 21)
	if err != nil {
		t.Fatal(err)
	}
	if gc.TypeDefinitionIndex != 42 {
		t.Fatalf("index: %d", gc.TypeDefinitionIndex)
	}
	if gc.Type != 0 {
		t.Fatalf("expected no Type field pre-27, got %#x", gc.Type)
	}
	if gc.ClassInstVA != 0x1000 || gc.MethodInstVA != 0x2000 || gc.CachedClass != 0x3000 {
		t.Fatalf("%+v", gc)
	}
}

func TestDecodeGenericClassPost27(t *testing.T) {
	data := make([]byte, 64)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(data[off:], v)
		off += 8
	}
	putU64(0x9000) // Type
	putU64(0x1000) // ClassInstVA
	putU64(0x2000) // MethodInstVA
	putU64(0x3000) // CachedClass

	view := newView64(data)
	gc, err := DecodeGenericClass(view, 0, 27)
	if err != nil {
		t.Fatal(err)
	}
	if gc.TypeDefinitionIndex != 0 {
		t.Fatalf("expected no index field at v27, got %d", gc.TypeDefinitionIndex)
	}
	if gc.Type != 0x9000 {
		t.Fatalf("type: %#x", gc.Type)
	}
}

func TestDecodeArrayType(t *testing.T) {
	data := make([]byte, 64)
	off := 0
	binary.LittleEndian.PutUint64(data[off:], 0x4000) // EtypeVA
	off += 8
	data[off] = 2  // Rank
	data[off+1] = 1 // NumSizes
	data[off+2] = 0 // NumLoBounds
	off += 8 // three byte fields plus five bytes of 64-bit struct padding
	binary.LittleEndian.PutUint64(data[off:], 0x5000) // SizesVA
	off += 8
	binary.LittleEndian.PutUint64(data[off:], 0x6000) // LoBoundsVA

	view := newView64(data)
	at, err := DecodeArrayType(view, 0)
	if err != nil {
		t.Fatal(err)
	}
	if at.EtypeVA != 0x4000 || at.Rank != 2 || at.NumSizes != 1 || at.NumLoBounds != 0 {
		t.Fatalf("%+v", at)
	}
	if at.SizesVA != 0x5000 || at.LoBoundsVA != 0x6000 {
		t.Fatalf("%+v", at)
	}
}

func TestDecodeGenericContext(t *testing.T) {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint64(data[0:], 0xAAAA)
	binary.LittleEndian.PutUint64(data[8:], 0xBBBB)
	view := newView64(data)
	gctx, err := DecodeGenericContext(view, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gctx.ClassInstVA != 0xAAAA || gctx.MethodInstVA != 0xBBBB {
		t.Fatalf("%+v", gctx)
	}
}
