// Package registration decodes the CodeRegistration/MetadataRegistration
// root structures the loader's locator finds, plus the Il2CppType tagged
// union and the generic-class/generic-inst tables hanging off of them.
package registration

import (
	"fmt"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/vmem"
)

// CodeRegistration is the root table of method/invoker/generic-method
// pointer arrays. Every field is pointer-width; the `ver` struct tag records
// which versions carry it, in the same convention binstream.Decode uses.
// Decoding does not go through binstream.Decode, since pointer width is a
// runtime property of the image rather than the metadata version:
// DecodeCodeRegistration walks an explicit field/version table and reads
// each present field with decoder.ptr, widened to uint64 from
// View.PointerSize bytes.
type CodeRegistration struct {
	MethodPointersCount uint64 `ver:"max=24.1"`
	MethodPointers      uint64 `ver:"max=24.1"`

	DelegateWrappersFromNativeToManagedCount uint64 `ver:"max=21"`
	DelegateWrappersFromNativeToManaged      uint64 `ver:"max=21"`

	ReversePInvokeWrapperCount uint64 `ver:"min=22"`
	ReversePInvokeWrappers     uint64 `ver:"min=22"`

	DelegateWrappersFromManagedToNativeCount uint64 `ver:"max=22"`
	DelegateWrappersFromManagedToNative      uint64 `ver:"max=22"`
	MarshalingFunctionsCount                 uint64 `ver:"max=22"`
	MarshalingFunctions                      uint64 `ver:"max=22"`

	CcwMarshalingFunctionsCount uint64 `ver:"min=21,max=22"`
	CcwMarshalingFunctions      uint64 `ver:"min=21,max=22"`

	GenericMethodPointersCount uint64
	GenericMethodPointers      uint64

	GenericAdjustorThunks uint64 `ver:"min=24.5"`

	InvokerPointersCount uint64
	InvokerPointers      uint64

	CustomAttributeCount      uint64 `ver:"max=24.5"`
	CustomAttributeGenerators uint64 `ver:"max=24.5"`

	GuidCount uint64 `ver:"min=21,max=22"`
	Guids     uint64 `ver:"min=21,max=22"`

	UnresolvedVirtualCallCount    uint64 `ver:"min=22"`
	UnresolvedVirtualCallPointers uint64 `ver:"min=22"`

	UnresolvedInstanceCallPointers uint64 `ver:"min=29.1"`
	UnresolvedStaticCallPointers   uint64 `ver:"min=29.1"`

	InteropDataCount uint64 `ver:"min=23"`
	InteropData      uint64 `ver:"min=23"`

	WindowsRuntimeFactoryCount uint64 `ver:"min=24.3"`
	WindowsRuntimeFactoryTable uint64 `ver:"min=24.3"`

	CodeGenModulesCount uint64 `ver:"min=24.2"`
	CodeGenModules      uint64 `ver:"min=24.2"`
}

// MetadataRegistration is the root table of type/generic-class/metadata-
// usage pointer arrays.
type MetadataRegistration struct {
	GenericClassesCount uint64
	GenericClasses      uint64
	GenericInstsCount   uint64
	GenericInsts        uint64
	GenericMethodTableCount uint64
	GenericMethodTable      uint64
	TypesCount          uint64
	Types               uint64
	MethodSpecsCount    uint64
	MethodSpecs         uint64

	MethodReferencesCount uint64 `ver:"max=16"`
	MethodReferences      uint64 `ver:"max=16"`

	FieldOffsetsCount          uint64
	FieldOffsets               uint64
	TypeDefinitionsSizesCount  uint64
	TypeDefinitionsSizes       uint64

	MetadataUsagesCount uint64 `ver:"min=19,max=24.5"`
	MetadataUsages      uint64 `ver:"min=19,max=24.5"`
}

// CodeGenModule is one per-image entry of the codeGenModules table found by
// the "plus search" locator strategy.
type CodeGenModule struct {
	ModuleNameVA            uint64
	MethodPointerCount      uint64
	MethodPointers          uint64
	AdjustorThunkCount      uint64 `ver:"min=24.5"`
	AdjustorThunks          uint64 `ver:"min=24.5"`
	InvokerIndices          uint64
	ReversePInvokeWrapperCount    uint64
	ReversePInvokeWrapperIndices uint64
	RgctxRangesCount        uint64
	RgctxRanges             uint64
	RgctxsCount             uint64
	Rgctxs                  uint64
	DebuggerMetadata        uint64
	CustomAttributeCacheGenerator uint64 `ver:"min=27,max=27.2"`
}

// decoder reads pointer-width fields (4 or 8 bytes depending on the image)
// honoring the same version-gating convention as binstream's int32 schema,
// since IL2CPP registration structures are entirely pointer-sized fields
// whose width is a target-architecture property, not a metadata-version one.
type decoder struct {
	view    *vmem.View
	cursor  *binstream.Cursor
	version float64
}

func newDecoder(view *vmem.View, va uint64) (*decoder, error) {
	off, err := view.VAToOffset(va)
	if err != nil {
		return nil, err
	}
	return &decoder{view: view, cursor: binstream.NewCursorAt(view.Data, int(off))}, nil
}

func (d *decoder) ptr() (uint64, error) {
	if d.view.PointerSize == 4 {
		v, err := d.cursor.ReadU32()
		return uint64(v), err
	}
	return d.cursor.ReadU64()
}

// DecodeCodeRegistration reads a CodeRegistration at va, honoring field
// presence at the given metadata version.
func DecodeCodeRegistration(view *vmem.View, va uint64, version float64) (*CodeRegistration, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: CodeRegistration: %w", err)
	}
	var cr CodeRegistration
	fields := []struct {
		ptr        *uint64
		minVer     float64
		maxVer     float64
	}{
		{&cr.MethodPointersCount, 0, 24.1},
		{&cr.MethodPointers, 0, 24.1},
		{&cr.DelegateWrappersFromNativeToManagedCount, 0, 21},
		{&cr.DelegateWrappersFromNativeToManaged, 0, 21},
		{&cr.ReversePInvokeWrapperCount, 22, 0},
		{&cr.ReversePInvokeWrappers, 22, 0},
		{&cr.DelegateWrappersFromManagedToNativeCount, 0, 22},
		{&cr.DelegateWrappersFromManagedToNative, 0, 22},
		{&cr.MarshalingFunctionsCount, 0, 22},
		{&cr.MarshalingFunctions, 0, 22},
		{&cr.CcwMarshalingFunctionsCount, 21, 22},
		{&cr.CcwMarshalingFunctions, 21, 22},
		{&cr.GenericMethodPointersCount, 0, 0},
		{&cr.GenericMethodPointers, 0, 0},
		{&cr.GenericAdjustorThunks, 24.5, 0},
		{&cr.InvokerPointersCount, 0, 0},
		{&cr.InvokerPointers, 0, 0},
		{&cr.CustomAttributeCount, 0, 24.5},
		{&cr.CustomAttributeGenerators, 0, 24.5},
		{&cr.GuidCount, 21, 22},
		{&cr.Guids, 21, 22},
		{&cr.UnresolvedVirtualCallCount, 22, 0},
		{&cr.UnresolvedVirtualCallPointers, 22, 0},
		{&cr.UnresolvedInstanceCallPointers, 29.1, 0},
		{&cr.UnresolvedStaticCallPointers, 29.1, 0},
		{&cr.InteropDataCount, 23, 0},
		{&cr.InteropData, 23, 0},
		{&cr.WindowsRuntimeFactoryCount, 24.3, 0},
		{&cr.WindowsRuntimeFactoryTable, 24.3, 0},
		{&cr.CodeGenModulesCount, 24.2, 0},
		{&cr.CodeGenModules, 24.2, 0},
	}
	for _, f := range fields {
		if version < f.minVer || (f.maxVer > 0 && version > f.maxVer) {
			continue
		}
		v, err := d.ptr()
		if err != nil {
			return nil, fmt.Errorf("registration: CodeRegistration: %w", err)
		}
		*f.ptr = v
	}
	return &cr, nil
}

// DecodeMetadataRegistration reads a MetadataRegistration at va.
func DecodeMetadataRegistration(view *vmem.View, va uint64, version float64) (*MetadataRegistration, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: MetadataRegistration: %w", err)
	}
	var mr MetadataRegistration
	fields := []struct {
		ptr    *uint64
		minVer float64
		maxVer float64
	}{
		{&mr.GenericClassesCount, 0, 0},
		{&mr.GenericClasses, 0, 0},
		{&mr.GenericInstsCount, 0, 0},
		{&mr.GenericInsts, 0, 0},
		{&mr.GenericMethodTableCount, 0, 0},
		{&mr.GenericMethodTable, 0, 0},
		{&mr.TypesCount, 0, 0},
		{&mr.Types, 0, 0},
		{&mr.MethodSpecsCount, 0, 0},
		{&mr.MethodSpecs, 0, 0},
		{&mr.MethodReferencesCount, 0, 16},
		{&mr.MethodReferences, 0, 16},
		{&mr.FieldOffsetsCount, 0, 0},
		{&mr.FieldOffsets, 0, 0},
		{&mr.TypeDefinitionsSizesCount, 0, 0},
		{&mr.TypeDefinitionsSizes, 0, 0},
		{&mr.MetadataUsagesCount, 19, 24.5},
		{&mr.MetadataUsages, 19, 24.5},
	}
	for _, f := range fields {
		if version < f.minVer || (f.maxVer > 0 && version > f.maxVer) {
			continue
		}
		v, err := d.ptr()
		if err != nil {
			return nil, fmt.Errorf("registration: MetadataRegistration: %w", err)
		}
		*f.ptr = v
	}
	return &mr, nil
}

// DecodeCodeGenModule reads one CodeGenModule entry at va.
func DecodeCodeGenModule(view *vmem.View, va uint64, version float64) (*CodeGenModule, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return nil, fmt.Errorf("registration: CodeGenModule: %w", err)
	}
	var m CodeGenModule
	read := func(dst *uint64) error {
		v, err := d.ptr()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	for _, dst := range []*uint64{&m.ModuleNameVA, &m.MethodPointerCount, &m.MethodPointers} {
		if err := read(dst); err != nil {
			return nil, fmt.Errorf("registration: CodeGenModule: %w", err)
		}
	}
	if version >= 24.5 {
		if err := read(&m.AdjustorThunkCount); err != nil {
			return nil, err
		}
		if err := read(&m.AdjustorThunks); err != nil {
			return nil, err
		}
	}
	rest := []*uint64{
		&m.InvokerIndices, &m.ReversePInvokeWrapperCount, &m.ReversePInvokeWrapperIndices,
		&m.RgctxRangesCount, &m.RgctxRanges, &m.RgctxsCount, &m.Rgctxs, &m.DebuggerMetadata,
	}
	for _, dst := range rest {
		if err := read(dst); err != nil {
			return nil, fmt.Errorf("registration: CodeGenModule: %w", err)
		}
	}
	if version >= 27 && version <= 27.2 {
		if err := read(&m.CustomAttributeCacheGenerator); err != nil {
			return nil, fmt.Errorf("registration: CodeGenModule: %w", err)
		}
	}
	return &m, nil
}

// ReadCodeGenModules reads the codeGenModules pointer table (one VA per
// image) located by the registration locator and decodes each entry.
func ReadCodeGenModules(view *vmem.View, tableVA uint64, imageCount int, version float64) ([]*CodeGenModule, error) {
	out := make([]*CodeGenModule, imageCount)
	for i := 0; i < imageCount; i++ {
		entryPtrVA := tableVA + uint64(i*view.PointerSize)
		entryVA, err := readPointer(view, entryPtrVA)
		if err != nil {
			return nil, fmt.Errorf("registration: codeGenModules[%d]: %w", i, err)
		}
		m, err := DecodeCodeGenModule(view, entryVA, version)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func readPointer(view *vmem.View, va uint64) (uint64, error) {
	d, err := newDecoder(view, va)
	if err != nil {
		return 0, err
	}
	return d.ptr()
}

// ReadPointerTable reads a dense array of count pointer-width values
// starting at tableVA — used for methodPointers, genericMethodPointers,
// invokerPointers, types, and every other flat pointer array the
// registration structures reference.
func ReadPointerTable(view *vmem.View, tableVA uint64, count int) ([]uint64, error) {
	if count == 0 || tableVA == 0 {
		return nil, nil
	}
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		v, err := readPointer(view, tableVA+uint64(i*view.PointerSize))
		if err != nil {
			return nil, fmt.Errorf("registration: pointer table entry %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
