package metadata

import (
	"fmt"
	"reflect"

	"il2cppdump/internal/binstream"
)

// Sanity is the fixed magic value every global-metadata.dat begins with.
const Sanity = 0xFAB11BAF

// Header is the fixed-position table-of-contents at the start of
// global-metadata.dat. Fields tagged `ver` are only present for a subset of
// metadata versions; binstream.Decode skips absent fields, leaving them at
// their zero value.
type Header struct {
	Sanity                                  int32
	Version                                 int32
	StringLiteralOffset                     int32
	StringLiteralSize                       int32
	StringLiteralDataOffset                 int32
	StringLiteralDataSize                   int32
	StringOffset                            int32
	StringSize                              int32
	EventsOffset                            int32
	EventsSize                              int32
	PropertiesOffset                        int32
	PropertiesSize                          int32
	MethodsOffset                           int32
	MethodsSize                             int32
	ParameterDefaultValuesOffset            int32
	ParameterDefaultValuesSize              int32
	FieldDefaultValuesOffset                int32
	FieldDefaultValuesSize                  int32
	FieldAndParameterDefaultValueDataOffset int32
	FieldAndParameterDefaultValueDataSize   int32
	FieldMarshaledSizesOffset               int32
	FieldMarshaledSizesSize                 int32
	ParametersOffset                        int32
	ParametersSize                          int32
	FieldsOffset                            int32
	FieldsSize                              int32
	GenericParametersOffset                 int32
	GenericParametersSize                   int32
	GenericParameterConstraintsOffset       int32
	GenericParameterConstraintsSize         int32
	GenericContainersOffset                 int32
	GenericContainersSize                   int32
	NestedTypesOffset                       int32
	NestedTypesSize                         int32
	InterfacesOffset                        int32
	InterfacesSize                          int32
	VtableMethodsOffset                     int32
	VtableMethodsSize                       int32
	InterfaceOffsetsOffset                  int32
	InterfaceOffsetsSize                    int32
	TypeDefinitionsOffset                   int32
	TypeDefinitionsSize                     int32

	RgctxEntriesOffset int32 `ver:"max=24.1"`
	RgctxEntriesCount  int32 `ver:"max=24.1"`

	ImagesOffset     int32
	ImagesSize       int32
	AssembliesOffset int32
	AssembliesSize   int32

	MetadataUsageListsOffset int32 `ver:"min=19,max=24.5"`
	MetadataUsageListsCount  int32 `ver:"min=19,max=24.5"`
	MetadataUsagePairsOffset int32 `ver:"min=19,max=24.5"`
	MetadataUsagePairsCount  int32 `ver:"min=19,max=24.5"`

	FieldRefsOffset int32 `ver:"min=19"`
	FieldRefsSize   int32 `ver:"min=19"`

	ReferencedAssembliesOffset int32 `ver:"min=20"`
	ReferencedAssembliesSize   int32 `ver:"min=20"`

	AttributesInfoOffset int32 `ver:"min=21,max=27.2"`
	AttributesInfoCount  int32 `ver:"min=21,max=27.2"`
	AttributeTypesOffset int32 `ver:"min=21,max=27.2"`
	AttributeTypesCount  int32 `ver:"min=21,max=27.2"`

	AttributeDataOffset      int32 `ver:"min=29"`
	AttributeDataSize        int32 `ver:"min=29"`
	AttributeDataRangeOffset int32 `ver:"min=29"`
	AttributeDataRangeSize   int32 `ver:"min=29"`

	UnresolvedVirtualCallParameterTypesOffset  int32 `ver:"min=22"`
	UnresolvedVirtualCallParameterTypesSize    int32 `ver:"min=22"`
	UnresolvedVirtualCallParameterRangesOffset int32 `ver:"min=22"`
	UnresolvedVirtualCallParameterRangesSize   int32 `ver:"min=22"`

	WindowsRuntimeTypeNamesOffset int32 `ver:"min=23"`
	WindowsRuntimeTypeNamesSize   int32 `ver:"min=23"`

	WindowsRuntimeStringsOffset int32 `ver:"min=27"`
	WindowsRuntimeStringsSize   int32 `ver:"min=27"`

	ExportedTypeDefinitionsOffset int32 `ver:"min=24"`
	ExportedTypeDefinitionsSize   int32 `ver:"min=24"`
}

var headerType = reflect.TypeOf(Header{})

// ProbeVersion reads the sanity value and a best-effort integer version from
// the first 8 bytes without committing to a layout, since the header's own
// layout depends on the version it declares.
func ProbeVersion(data []byte) (version int32, err error) {
	c := binstream.NewCursor(data)
	sanity, err := c.ReadU32()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if sanity != Sanity {
		return 0, fmt.Errorf("%w: got %#x", ErrBadMagic, sanity)
	}
	v, err := c.ReadI32()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if v < 16 || v > 31 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return v, nil
}

// DecodeHeader decodes the header at the given refined version (which may
// carry a fractional minor component, e.g. 24.2).
func DecodeHeader(data []byte, version float64) (*Header, error) {
	c := binstream.NewCursor(data)
	var h Header
	if err := binstream.Decode(c, &h, version); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedMetadata, err)
	}
	return &h, nil
}

// refineVersion resolves a header's exact minor version from its integer
// major version using fixed header heuristics: at 24, string_literal_offset
// == 264 leads to refineFrom242 and otherwise any image token other than 1
// means 24.1; at 27 and 29, refineFrom27/refineFrom29 look at a single
// table's declared size or count. It does not compare declared table sizes
// against expected record sizes in general, and it always settles on a
// version: it never returns ErrAmbiguousVersion.
func refineVersion(data []byte, major int32) (float64, error) {
	switch major {
	case 24:
		h24, err := DecodeHeader(data, 24)
		if err != nil {
			return 0, err
		}
		if h24.StringLiteralOffset == 264 {
			return refineFrom242(data)
		}
		images, err := decodeImagesForRefinement(data, h24, 24)
		if err != nil {
			return 0, err
		}
		for _, img := range images {
			if img.Token != 1 {
				return 24.1, nil
			}
		}
		return 24, nil
	case 27:
		return refineFrom27(data)
	case 29:
		return refineFrom29(data)
	default:
		return float64(major), nil
	}
}

// refineFrom242 resolves 24.2 vs 24.4 from the metadata header alone, which
// is as far as a header-only refinement can go: 24.2 vs 24.3 and 24.4 vs
// 24.5 both turn on Il2CppCodeRegistration field values (code_gen_modules,
// invoker_pointers_count), which don't exist until registration is located
// and decoded — that further split happens in
// executor.refineVersionFromCodeRegistration, once the binary side of the
// dump has a CodeRegistration to inspect.
func refineFrom242(data []byte) (float64, error) {
	h, err := DecodeHeader(data, 24.2)
	if err != nil {
		return 0, err
	}
	if h.AssembliesSize > 0 {
		asm, err := binstream.CompileLayout(reflect.TypeOf(AssemblyDefinition{}), 24.2)
		if err != nil {
			return 0, err
		}
		imageCount := int(h.ImagesSize) / imageDefSize(24.2)
		if imageCount > 0 && asm.Size() > 0 && int(h.AssembliesSize)/asm.Size() < imageCount {
			return 24.4, nil
		}
	}
	return 24.2, nil
}

func refineFrom27(data []byte) (float64, error) {
	h, err := DecodeHeader(data, 27)
	if err != nil {
		return 0, err
	}
	if h.WindowsRuntimeStringsSize > 0 {
		return 27.2, nil
	}
	if h.AttributesInfoSize1() > 0 {
		return 27, nil
	}
	return 27.1, nil
}

func refineFrom29(data []byte) (float64, error) {
	h, err := DecodeHeader(data, 29)
	if err != nil {
		return 0, err
	}
	const dataRangeRecSize = 12 // token, start_offset, + implicit pad in this decoder's 4-byte fields
	if h.AttributeDataRangeSize > 0 && h.AttributeDataRangeSize%dataRangeRecSize == 0 {
		return 29.1, nil
	}
	return 29, nil
}

// AttributesInfoSize1 is a small accessor kept separate so refineFrom27 reads
// clearly; attributes_info_count in the 21-27.2 window is the same field as
// AttributesInfoCount.
func (h *Header) AttributesInfoSize1() int32 { return h.AttributesInfoCount }

func decodeImagesForRefinement(data []byte, h *Header, version float64) ([]ImageDefinition, error) {
	c := binstream.NewCursorAt(data, int(h.ImagesOffset))
	count := int(h.ImagesSize) / imageDefSize(version)
	out := make([]ImageDefinition, 0, count)
	for i := 0; i < count; i++ {
		var img ImageDefinition
		if err := binstream.Decode(c, &img, version); err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrMalformedMetadata, i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func imageDefSize(version float64) int {
	l, err := binstream.CompileLayout(reflect.TypeOf(ImageDefinition{}), version)
	if err != nil {
		return 1 // force a division result of 0/huge rather than panic
	}
	return l.Size()
}

// DetectVersion probes the magic+integer version and, for the ambiguous
// major versions (24, 27, 29), refines it to an exact minor version. Pass a
// non-zero forceVersion to bypass detection entirely.
func DetectVersion(data []byte, forceVersion float64) (float64, error) {
	if forceVersion != 0 {
		sanity, err := binstream.NewCursor(data).ReadU32()
		if err != nil || sanity != Sanity {
			return 0, fmt.Errorf("%w", ErrBadMagic)
		}
		return forceVersion, nil
	}
	major, err := ProbeVersion(data)
	if err != nil {
		return 0, err
	}
	return refineVersion(data, major)
}
