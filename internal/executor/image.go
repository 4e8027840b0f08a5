// Package executor ties a decoded metadata image to the registration
// structures recovered from a loaded binary and resolves the type graph
// between them: type names, generic instantiation, method addresses, and
// default values.
package executor

import (
	"fmt"

	"il2cppdump/internal/metadata"
	"il2cppdump/internal/registration"
	"il2cppdump/internal/vmem"
)

// Image binds a loaded executable's virtual address space to the
// registration tables it exposes and the metadata they describe.
type Image struct {
	View    *vmem.View
	Meta    *metadata.Image
	Version float64

	CodeReg *registration.CodeRegistration
	MetaReg *registration.MetadataRegistration

	TypeVAs []uint64
	types   map[uint64]*registration.Type

	GenericInstPointers []uint64
	genericInsts        map[uint64]*registration.GenericInst
	genericClasses       map[uint64]*registration.GenericClass

	MethodSpecs                    []registration.MethodSpec
	GenericMethodTable             []registration.GenericMethodTableEntry
	MethodDefinitionMethodSpecs    map[int32][]int // method def index -> MethodSpecs indices
	MethodSpecGenericMethodPointer map[int]uint64  // MethodSpecs index -> code pointer

	MethodPointers            []uint64
	GenericMethodPointers     []uint64
	InvokerPointers           []uint64
	CustomAttributeGenerators []uint64
	ReversePInvokeWrappers    []uint64

	FieldOffsets            []uint64
	fieldOffsetsArePointers bool

	// MetadataUsages is the pointer table Il2CppMetadataRegistration.metadataUsages
	// names (versions 19-24.5 only): each slot holds the resolved runtime
	// address for one MetadataUsagePair, keyed by that pair's DestinationIndex.
	MetadataUsages []uint64

	CodeGenModules              map[string]*registration.CodeGenModule
	CodeGenModuleMethodPointers map[string][]uint64

	IsDumped  bool
	Is32Bit   bool
	ImageBase uint64
}

// typeAtIndex resolves a types-table index (as used by
// TypeDefinition.DeclaringTypeIndex and friends) to its decoded Il2CppType.
func (img *Image) typeAtIndex(index int32) (*registration.Type, bool) {
	if index < 0 || int(index) >= len(img.TypeVAs) {
		return nil, false
	}
	return img.GetType(img.TypeVAs[index])
}

// TypeAtIndex is the exported form of typeAtIndex, for callers outside the
// executor package (output-building code in internal/dump) that need to
// resolve a field/parameter/return type index directly.
func (img *Image) TypeAtIndex(index int32) (*registration.Type, bool) {
	return img.typeAtIndex(index)
}

// NewImage constructs an Image over a loaded binary's address space and its
// already-decoded metadata.
func NewImage(view *vmem.View, meta *metadata.Image) *Image {
	return &Image{
		View:    view,
		Meta:    meta,
		Version: meta.Version,
		Is32Bit: view.PointerSize == 4,
		types:   make(map[uint64]*registration.Type),
		genericInsts: make(map[uint64]*registration.GenericInst),
		genericClasses: make(map[uint64]*registration.GenericClass),
		MethodDefinitionMethodSpecs:    make(map[int32][]int),
		MethodSpecGenericMethodPointer: make(map[int]uint64),
		CodeGenModules:              make(map[string]*registration.CodeGenModule),
		CodeGenModuleMethodPointers: make(map[string][]uint64),
	}
}

// Init reads CodeRegistration/MetadataRegistration at the given virtual
// addresses (as found by the registration locator) and loads every table
// that hangs off of them: method pointers, the type table, generic
// instances and classes, method specs, and (v24.2+) code-gen modules.
func (img *Image) Init(codeRegVA, metaRegVA uint64) error {
	cr, err := registration.DecodeCodeRegistration(img.View, codeRegVA, img.Version)
	if err != nil {
		return fmt.Errorf("executor: init: %w", err)
	}
	img.CodeReg = cr

	if refined := refineVersionFromCodeRegistration(img.Version, cr); refined != img.Version {
		img.Version = refined
		cr, err = registration.DecodeCodeRegistration(img.View, codeRegVA, img.Version)
		if err != nil {
			return fmt.Errorf("executor: init: re-decode after version refinement: %w", err)
		}
		img.CodeReg = cr
	}

	mr, err := registration.DecodeMetadataRegistration(img.View, metaRegVA, img.Version)
	if err != nil {
		return fmt.Errorf("executor: init: %w", err)
	}
	img.MetaReg = mr

	if err := img.loadPointers(); err != nil {
		return err
	}
	if err := img.loadTypes(); err != nil {
		return err
	}
	if img.Version >= 19 && img.Version <= 24.5 {
		if err := img.loadMetadataUsages(); err != nil {
			return err
		}
	}
	if err := img.loadGenerics(); err != nil {
		return err
	}
	if img.Version >= 24.2 {
		if err := img.loadCodeGenModules(); err != nil {
			return err
		}
	}
	return nil
}

// invokerPointerCountLimit tells a 24.4/24.5-shaped CodeRegistration apart
// from a misread one: past this many invoker pointers, the field being
// inspected has actually wandered into the next field over because the
// struct layout guessed one minor version too early.
const invokerPointerCountLimit = 0x50000

// refineVersionFromCodeRegistration resolves 24.2 vs 24.3 and 24.4 vs 24.5,
// which the metadata header alone can't distinguish (both pairs share an
// identical header shape; the difference is in Il2CppCodeRegistration,
// decoded only once registration is located): 24.2 with no
// code_gen_modules pointer is 24.3, and 24.4 whose invoker_pointers_count
// blows past the sanity limit is actually 24.5 misread one field short.
func refineVersionFromCodeRegistration(version float64, cr *registration.CodeRegistration) float64 {
	switch version {
	case 24.2:
		if cr.CodeGenModules == 0 {
			return 24.3
		}
	case 24.4:
		if cr.InvokerPointersCount > invokerPointerCountLimit {
			return 24.5
		}
	}
	return version
}

func (img *Image) loadPointers() error {
	cr := img.CodeReg
	var err error

	if cr.MethodPointersCount > 0 {
		img.MethodPointers, err = registration.ReadPointerTable(img.View, cr.MethodPointers, int(cr.MethodPointersCount))
		if err != nil {
			return fmt.Errorf("executor: method pointers: %w", err)
		}
	}
	if cr.GenericMethodPointersCount > 0 {
		img.GenericMethodPointers, err = registration.ReadPointerTable(img.View, cr.GenericMethodPointers, int(cr.GenericMethodPointersCount))
		if err != nil {
			return fmt.Errorf("executor: generic method pointers: %w", err)
		}
	}
	if cr.InvokerPointersCount > 0 {
		img.InvokerPointers, err = registration.ReadPointerTable(img.View, cr.InvokerPointers, int(cr.InvokerPointersCount))
		if err != nil {
			return fmt.Errorf("executor: invoker pointers: %w", err)
		}
	}
	if img.Version < 27 && cr.CustomAttributeCount > 0 {
		img.CustomAttributeGenerators, err = registration.ReadPointerTable(img.View, cr.CustomAttributeGenerators, int(cr.CustomAttributeCount))
		if err != nil {
			return fmt.Errorf("executor: custom attribute generators: %w", err)
		}
	}
	if img.Version >= 22 && cr.ReversePInvokeWrapperCount > 0 {
		img.ReversePInvokeWrappers, err = registration.ReadPointerTable(img.View, cr.ReversePInvokeWrappers, int(cr.ReversePInvokeWrapperCount))
		if err != nil {
			return fmt.Errorf("executor: reverse pinvoke wrappers: %w", err)
		}
	}
	return nil
}

func (img *Image) loadMetadataUsages() error {
	mr := img.MetaReg
	if mr.MetadataUsagesCount == 0 {
		return nil
	}
	usages, err := registration.ReadPointerTable(img.View, mr.MetadataUsages, int(mr.MetadataUsagesCount))
	if err != nil {
		return fmt.Errorf("executor: metadata usages: %w", err)
	}
	img.MetadataUsages = usages
	return nil
}

func (img *Image) loadTypes() error {
	mr := img.MetaReg
	typeVAs, err := registration.ReadPointerTable(img.View, mr.Types, int(mr.TypesCount))
	if err != nil {
		return fmt.Errorf("executor: type table: %w", err)
	}
	img.TypeVAs = typeVAs
	for _, va := range typeVAs {
		t, err := registration.DecodeType(img.View, va, img.Version)
		if err != nil {
			return fmt.Errorf("executor: type at %#x: %w", va, err)
		}
		img.types[va] = t
	}

	img.fieldOffsetsArePointers = img.Version > 21
	if img.Version == 21 {
		n := int(mr.FieldOffsetsCount)
		if n > 6 {
			n = 6
		}
		test, err := registration.ReadPointerTable(img.View, mr.FieldOffsets, n)
		if err == nil && len(test) == 6 {
			img.fieldOffsetsArePointers = test[0] == 0 && test[1] == 0 && test[2] == 0 &&
				test[3] == 0 && test[4] == 0 && test[5] > 0
		}
	}
	if img.fieldOffsetsArePointers {
		img.FieldOffsets, err = registration.ReadPointerTable(img.View, mr.FieldOffsets, int(mr.FieldOffsetsCount))
		if err != nil {
			return fmt.Errorf("executor: field offsets: %w", err)
		}
	} else {
		raw, err := img.View.ReadAt(mr.FieldOffsets, int(mr.FieldOffsetsCount)*4)
		if err != nil {
			return fmt.Errorf("executor: field offsets: %w", err)
		}
		img.FieldOffsets = make([]uint64, mr.FieldOffsetsCount)
		for i := range img.FieldOffsets {
			img.FieldOffsets[i] = uint64(le32(raw[i*4:]))
		}
	}
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// FieldOffset resolves a field's byte offset within its declaring type.
// For versions whose fieldOffsets table holds per-type pointers (above 21,
// or 21 when the heuristic detected pointers), the offset is read from the
// type's own int32 array at 4*fieldIndexInType; otherwise the table is a
// flat per-field array indexed by the global field index. Instance fields
// of value types are reported relative to the unboxed struct start, so the
// object header size is subtracted.
func (img *Image) FieldOffset(typeIndex, fieldIndexInType, fieldIndex int32, isValueType, isStatic bool) (int64, bool) {
	offset := int64(-1)
	if img.fieldOffsetsArePointers {
		if typeIndex < 0 || int(typeIndex) >= len(img.FieldOffsets) {
			return 0, false
		}
		ptr := img.FieldOffsets[typeIndex]
		if ptr > 0 {
			raw, err := img.View.ReadAt(ptr+uint64(4*fieldIndexInType), 4)
			if err != nil {
				return 0, false
			}
			offset = int64(int32(le32(raw)))
		}
	} else {
		if fieldIndex < 0 || int(fieldIndex) >= len(img.FieldOffsets) {
			return 0, false
		}
		offset = int64(int32(uint32(img.FieldOffsets[fieldIndex])))
	}
	if offset < 0 {
		return 0, false
	}
	if offset > 0 && isValueType && !isStatic {
		if img.Is32Bit {
			offset -= 8
		} else {
			offset -= 16
		}
	}
	return offset, true
}

// GetType returns the previously-decoded Il2CppType at va, as found via the
// global type table — the equivalent of the original's pointer-keyed type
// dictionary lookup.
func (img *Image) GetType(va uint64) (*registration.Type, bool) {
	t, ok := img.types[va]
	return t, ok
}

// GenericClassAt decodes (and caches) the Il2CppGenericClass at va.
func (img *Image) GenericClassAt(va uint64) (*registration.GenericClass, error) {
	if gc, ok := img.genericClasses[va]; ok {
		return gc, nil
	}
	gc, err := registration.DecodeGenericClass(img.View, va, img.Version)
	if err != nil {
		return nil, err
	}
	img.genericClasses[va] = gc
	return gc, nil
}

// GenericInstAt decodes (and caches) the Il2CppGenericInst at va.
func (img *Image) GenericInstAt(va uint64) (*registration.GenericInst, error) {
	if gi, ok := img.genericInsts[va]; ok {
		return gi, nil
	}
	gi, err := registration.DecodeGenericInst(img.View, va)
	if err != nil {
		return nil, err
	}
	img.genericInsts[va] = gi
	return gi, nil
}
