package metadata

import (
	"fmt"

	"il2cppdump/internal/binstream"
)

// StringAt fetches a NUL-terminated string from the string blob at the given
// byte offset within the blob, caching by offset since the same name index
// is looked up repeatedly while composing type and member names.
func (img *Image) StringAt(offset int32) (string, error) {
	if s, ok := img.stringCache[offset]; ok {
		return s, nil
	}
	if offset < 0 || offset >= img.stringBlobSize {
		return "", fmt.Errorf("%w: string offset %d out of range [0,%d)", ErrCorruptIndex, offset, img.stringBlobSize)
	}
	c := binstream.NewCursorAt(img.raw, int(img.stringBlobOffset+offset))
	s, err := c.ReadCString()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	img.stringCache[offset] = s
	return s, nil
}

// StringLiteralValue returns the decoded text of the i'th string-literal
// table entry.
func (img *Image) StringLiteralValue(i int) (string, error) {
	if i < 0 || i >= len(img.StringLiterals) {
		return "", fmt.Errorf("%w: string literal index %d", ErrCorruptIndex, i)
	}
	lit := img.StringLiterals[i]
	if lit.DataIndex < 0 || int64(lit.DataIndex)+int64(lit.Length) > int64(img.literalDataSize) {
		return "", fmt.Errorf("%w: string literal %d data out of range", ErrCorruptIndex, i)
	}
	b, err := binstream.NewCursorAt(img.raw, 0).Slice(int(img.literalDataOffset+lit.DataIndex), int(lit.Length))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return string(b), nil
}

// TypeDefinitionAt bounds-checks and returns a pointer to the i'th type
// definition.
func (img *Image) TypeDefinitionAt(i int32) (*TypeDefinition, error) {
	if i < 0 || int(i) >= len(img.TypeDefinitions) {
		return nil, fmt.Errorf("%w: type definition index %d", ErrCorruptIndex, i)
	}
	return &img.TypeDefinitions[i], nil
}

// MethodAt bounds-checks and returns a pointer to the i'th method definition.
func (img *Image) MethodAt(i int32) (*MethodDefinition, error) {
	if i < 0 || int(i) >= len(img.Methods) {
		return nil, fmt.Errorf("%w: method index %d", ErrCorruptIndex, i)
	}
	return &img.Methods[i], nil
}

// FieldAt bounds-checks and returns a pointer to the i'th field definition.
func (img *Image) FieldAt(i int32) (*FieldDefinition, error) {
	if i < 0 || int(i) >= len(img.Fields) {
		return nil, fmt.Errorf("%w: field index %d", ErrCorruptIndex, i)
	}
	return &img.Fields[i], nil
}

// encoded-source-index kinds (versions 17-26 metadata-usage encoding).
type UsageKind int

const (
	UsageKindClass UsageKind = iota + 1
	UsageKindMethodDef
	UsageKindField
	UsageKindStringLiteral
	UsageKindMethodRef
)

// DecodeUsageSourceIndex splits a MetadataUsagePair's EncodedSourceIndex into
// its kind and table index, per the 17-26 packed encoding: the top three
// bits select the kind and the low 29 bits are the index. At metadata
// version >= 27 the lowest bit is a flag for every kind, and the index is
// the remaining bits shifted right by one.
func DecodeUsageSourceIndex(encoded int32, version float64) (UsageKind, int32) {
	kind := UsageKind((uint32(encoded) & 0xE0000000) >> 29)
	var index int32
	if version >= 27 {
		index = int32((uint32(encoded) & 0x1FFFFFFE) >> 1)
	} else {
		index = int32(uint32(encoded) & 0x1FFFFFFF)
	}
	return kind, index
}

// FieldDefaultValueData returns the raw default-value byte slice for a field
// default value record, sized by the caller since the decoder has no
// independent length for this blob beyond the next entry's offset.
func (img *Image) FieldDefaultValueData(dataIndex, length int32) ([]byte, error) {
	if dataIndex < 0 || length < 0 {
		return nil, fmt.Errorf("%w: default value data index %d length %d", ErrCorruptIndex, dataIndex, length)
	}
	c := binstream.NewCursorAt(img.raw, 0)
	b, err := c.Slice(int(img.Header.FieldAndParameterDefaultValueDataOffset+dataIndex), int(length))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return b, nil
}
