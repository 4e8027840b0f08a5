// Package metadata decodes global-metadata.dat: the version-tagged header,
// every dense table it points into, and the string/string-literal blobs.
// Tables are decoded once at Load time into plain slices; callers index them
// directly rather than re-parsing on every access.
package metadata

import (
	"fmt"
	"reflect"

	"il2cppdump/internal/binstream"
)

// Image is a fully decoded global-metadata.dat.
type Image struct {
	Version float64
	Header  *Header
	raw     []byte

	Images              []ImageDefinition
	Assemblies           []AssemblyDefinition
	TypeDefinitions       []TypeDefinition
	Methods               []MethodDefinition
	Parameters            []ParameterDefinition
	Fields                []FieldDefinition
	FieldDefaultValues    []FieldDefaultValue
	ParameterDefaultValues []ParameterDefaultValue
	Properties            []PropertyDefinition
	Events                []EventDefinition
	GenericContainers      []GenericContainer
	GenericParameters      []GenericParameter
	GenericParameterConstraints []GenericParameterConstraint
	NestedTypes           []NestedTypeIndex
	Interfaces            []InterfaceIndex
	VtableMethods         []VTableMethodIndex
	InterfaceOffsets      []InterfaceOffsetPair
	FieldRefs             []FieldRef
	StringLiterals        []StringLiteral
	MetadataUsageLists    []MetadataUsageList
	MetadataUsagePairs    []MetadataUsagePair
	AttributeTypeRanges   []CustomAttributeTypeRange
	AttributeTypes        []int32
	AttributeDataRanges   []CustomAttributeDataRange

	stringBlobOffset int32
	stringBlobSize   int32
	literalDataOffset int32
	literalDataSize   int32

	stringCache map[int32]string
}

// Load decodes a complete global-metadata.dat buffer. forceVersion, if
// non-zero, bypasses magic-version refinement.
func Load(data []byte, forceVersion float64) (*Image, error) {
	version, err := DetectVersion(data, forceVersion)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(data, version)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Version:          version,
		Header:           h,
		raw:               data,
		stringBlobOffset:  h.StringOffset,
		stringBlobSize:    h.StringSize,
		literalDataOffset: h.StringLiteralDataOffset,
		literalDataSize:   h.StringLiteralDataSize,
		stringCache:       make(map[int32]string),
	}

	loaders := []func() error{
		func() (e error) { img.Images, e = loadArray[ImageDefinition](data, h.ImagesOffset, h.ImagesSize, version); return },
		func() (e error) { img.Assemblies, e = loadArray[AssemblyDefinition](data, h.AssembliesOffset, h.AssembliesSize, version); return },
		func() (e error) { img.TypeDefinitions, e = loadArray[TypeDefinition](data, h.TypeDefinitionsOffset, h.TypeDefinitionsSize, version); return },
		func() (e error) { img.Methods, e = loadArray[MethodDefinition](data, h.MethodsOffset, h.MethodsSize, version); return },
		func() (e error) { img.Parameters, e = loadArray[ParameterDefinition](data, h.ParametersOffset, h.ParametersSize, version); return },
		func() (e error) { img.Fields, e = loadArray[FieldDefinition](data, h.FieldsOffset, h.FieldsSize, version); return },
		func() (e error) {
			img.FieldDefaultValues, e = loadArray[FieldDefaultValue](data, h.FieldDefaultValuesOffset, h.FieldDefaultValuesSize, version)
			return
		},
		func() (e error) {
			img.ParameterDefaultValues, e = loadArray[ParameterDefaultValue](data, h.ParameterDefaultValuesOffset, h.ParameterDefaultValuesSize, version)
			return
		},
		func() (e error) { img.Properties, e = loadArray[PropertyDefinition](data, h.PropertiesOffset, h.PropertiesSize, version); return },
		func() (e error) { img.Events, e = loadArray[EventDefinition](data, h.EventsOffset, h.EventsSize, version); return },
		func() (e error) {
			img.GenericContainers, e = loadArray[GenericContainer](data, h.GenericContainersOffset, h.GenericContainersSize, version)
			return
		},
		func() (e error) {
			img.GenericParameters, e = loadArray[GenericParameter](data, h.GenericParametersOffset, h.GenericParametersSize, version)
			return
		},
		func() (e error) {
			img.GenericParameterConstraints, e = loadInt32Array(data, h.GenericParameterConstraintsOffset, h.GenericParameterConstraintsSize)
			return
		},
		func() (e error) { img.NestedTypes, e = loadInt32Array(data, h.NestedTypesOffset, h.NestedTypesSize); return },
		func() (e error) { img.Interfaces, e = loadInt32Array(data, h.InterfacesOffset, h.InterfacesSize); return },
		func() (e error) {
			img.VtableMethods, e = loadInt32Array(data, h.VtableMethodsOffset, h.VtableMethodsSize)
			return
		},
		func() (e error) {
			img.InterfaceOffsets, e = loadArray[InterfaceOffsetPair](data, h.InterfaceOffsetsOffset, h.InterfaceOffsetsSize, version)
			return
		},
		func() (e error) { img.StringLiterals, e = loadArray[StringLiteral](data, h.StringLiteralOffset, h.StringLiteralSize, version); return },
	}
	if version >= 19 {
		loaders = append(loaders, func() (e error) {
			img.FieldRefs, e = loadArray[FieldRef](data, h.FieldRefsOffset, h.FieldRefsSize, version)
			return
		})
	}
	if version >= 19 && version <= 24.5 {
		loaders = append(loaders, func() (e error) {
			img.MetadataUsageLists, e = loadArray[MetadataUsageList](data, h.MetadataUsageListsOffset, h.MetadataUsageListsCount*8, version)
			return
		}, func() (e error) {
			img.MetadataUsagePairs, e = loadArray[MetadataUsagePair](data, h.MetadataUsagePairsOffset, h.MetadataUsagePairsCount*8, version)
			return
		})
	}
	if version >= 21 && version <= 27.2 {
		loaders = append(loaders, func() (e error) {
			img.AttributeTypeRanges, e = loadArray[CustomAttributeTypeRange](data, h.AttributesInfoOffset, h.AttributesInfoCount*int32(customAttrTypeRangeSize(version)), version)
			return
		}, func() (e error) {
			img.AttributeTypes, e = loadInt32Array(data, h.AttributeTypesOffset, h.AttributeTypesCount*4)
			return
		})
	}
	if version >= 29 {
		loaders = append(loaders, func() (e error) {
			img.AttributeDataRanges, e = loadArray[CustomAttributeDataRange](data, h.AttributeDataRangeOffset, h.AttributeDataRangeSize, version)
			return
		})
	}

	for _, fn := range loaders {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func customAttrTypeRangeSize(version float64) int {
	l, err := binstream.CompileLayout(reflect.TypeOf(CustomAttributeTypeRange{}), version)
	if err != nil {
		return 1
	}
	return l.Size()
}

// loadArray decodes a dense table of T starting at offset, spanning size
// bytes, at the given metadata version. A zero size yields a nil slice.
func loadArray[T any](data []byte, offset, size int32, version float64) ([]T, error) {
	if size <= 0 {
		return nil, nil
	}
	var zero T
	recSize := recordSize(reflect.TypeOf(zero), version)
	if recSize <= 0 {
		return nil, fmt.Errorf("%w: zero-size record type", ErrMalformedMetadata)
	}
	count := int(size) / recSize
	if int(offset) < 0 || int(offset)+count*recSize > len(data) {
		return nil, fmt.Errorf("%w: table at offset %d size %d exceeds buffer", ErrMalformedMetadata, offset, size)
	}
	c := binstream.NewCursorAt(data, int(offset))
	out := make([]T, count)
	for i := range out {
		if err := binstream.Decode(c, &out[i], version); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedMetadata, i, err)
		}
	}
	return out, nil
}

func recordSize(t reflect.Type, version float64) int {
	l, err := binstream.CompileLayout(t, version)
	if err != nil {
		return 0
	}
	return l.Size()
}

// loadInt32Array decodes a dense table of plain int32 values (the
// NestedTypes/Interfaces/VtableMethods/GenericParameterConstraints arrays,
// which carry no version-conditional fields of their own).
func loadInt32Array(data []byte, offset, size int32) ([]int32, error) {
	if size <= 0 {
		return nil, nil
	}
	count := int(size) / 4
	if int(offset) < 0 || int(offset)+count*4 > len(data) {
		return nil, fmt.Errorf("%w: table at offset %d size %d exceeds buffer", ErrMalformedMetadata, offset, size)
	}
	c := binstream.NewCursorAt(data, int(offset))
	raw, err := c.ReadU32Array(count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	out := make([]int32, count)
	for i, v := range raw {
		out[i] = int32(v)
	}
	return out, nil
}
