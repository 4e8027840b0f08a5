package registration

import (
	"fmt"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/vmem"
)

// GenericMethodIndices resolves a generic method instantiation to its
// concrete code, invoker, and (v24.5+/27.1+) adjustor-thunk pointer indices.
type GenericMethodIndices struct {
	MethodIndex   int32
	InvokerIndex  int32
	AdjustorThunk int32 `ver:"min=24.5"`
}

// GenericMethodTableEntry links one MethodSpecs entry to its
// GenericMethodIndices, both dense fixed-width fields (not pointer-sized),
// unlike the rest of the registration tables.
type GenericMethodTableEntry struct {
	GenericMethodIndex int32
	Indices            GenericMethodIndices
}

// ReadGenericMethodTable decodes the dense generic_method_table array: count
// entries starting at tableVA.
func ReadGenericMethodTable(view *vmem.View, tableVA uint64, count int, version float64) ([]GenericMethodTableEntry, error) {
	if count == 0 {
		return nil, nil
	}
	off, err := view.VAToOffset(tableVA)
	if err != nil {
		return nil, fmt.Errorf("registration: generic method table: %w", err)
	}
	c := binstream.NewCursorAt(view.Data, int(off))
	out := make([]GenericMethodTableEntry, count)
	for i := range out {
		if err := binstream.Decode(c, &out[i], version); err != nil {
			return nil, fmt.Errorf("registration: generic method table entry %d: %w", i, err)
		}
	}
	return out, nil
}

// MethodSpec is a generic method/class instantiation record
// (Il2CppMethodSpec): three dense int32 fields.
type MethodSpec struct {
	MethodDefinitionIndex int32
	ClassIndexIndex       int32
	MethodIndexIndex      int32
}

// ReadMethodSpecs decodes the dense method_specs array: count 12-byte
// records starting at tableVA.
func ReadMethodSpecs(view *vmem.View, tableVA uint64, count int) ([]MethodSpec, error) {
	if count == 0 {
		return nil, nil
	}
	raw, err := view.ReadAt(tableVA, count*12)
	if err != nil {
		return nil, fmt.Errorf("registration: method specs: %w", err)
	}
	out := make([]MethodSpec, count)
	for i := range out {
		b := raw[i*12:]
		out[i] = MethodSpec{
			MethodDefinitionIndex: int32(leUint32(b[0:4])),
			ClassIndexIndex:       int32(leUint32(b[4:8])),
			MethodIndexIndex:      int32(leUint32(b[8:12])),
		}
	}
	return out, nil
}
