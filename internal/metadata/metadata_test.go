package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestProbeVersionBadMagic(t *testing.T) {
	data := append(le32(0xDEADBEEF), le32(16)...)
	if _, err := ProbeVersion(data); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestProbeVersionUnsupported(t *testing.T) {
	data := append(le32(uint32(Sanity)), le32(5)...)
	if _, err := ProbeVersion(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestProbeVersionOK(t *testing.T) {
	data := append(le32(uint32(Sanity)), le32(24)...)
	v, err := ProbeVersion(data)
	if err != nil || v != 24 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}

func TestDecodeUsageSourceIndexPre27(t *testing.T) {
	// kind=3 (field), index=0x12345
	encoded := int32((uint32(3) << 29) | 0x12345)
	kind, idx := DecodeUsageSourceIndex(encoded, 26)
	if kind != UsageKindField || idx != 0x12345 {
		t.Fatalf("kind=%d idx=%#x", kind, idx)
	}
}

func TestDecodeUsageSourceIndexPost27(t *testing.T) {
	encoded := int32((uint32(2) << 29) | (0x2468 << 1))
	kind, idx := DecodeUsageSourceIndex(encoded, 27)
	if kind != UsageKindMethodDef || idx != 0x2468 {
		t.Fatalf("kind=%d idx=%#x", kind, idx)
	}
}

// encodeVersioned serializes a record the same way binstream.Decode reads it:
// fields in declaration order, little-endian, skipping fields whose `ver` tag
// excludes them at the given version. It exists so tests can build fixture
// metadata and assert the decode/encode/decode idempotence law.
func encodeVersioned(buf *bytes.Buffer, rec any, version float64) {
	v := reflect.ValueOf(rec)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if !versionTagAllows(f.Tag.Get("ver"), version) {
			continue
		}
		encodeValue(buf, v.Field(i), version)
	}
}

func versionTagAllows(tag string, version float64) bool {
	if tag == "" {
		return true
	}
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		bound, _ := strconv.ParseFloat(kv[1], 64)
		switch strings.TrimSpace(kv[0]) {
		case "min":
			if version < bound {
				return false
			}
		case "max":
			if version > bound {
				return false
			}
		}
	}
	return true
}

func encodeValue(buf *bytes.Buffer, fv reflect.Value, version float64) {
	switch fv.Kind() {
	case reflect.Int8, reflect.Uint8, reflect.Bool:
		var b byte
		switch fv.Kind() {
		case reflect.Bool:
			if fv.Bool() {
				b = 1
			}
		case reflect.Int8:
			b = byte(fv.Int())
		default:
			b = byte(fv.Uint())
		}
		buf.WriteByte(b)
	case reflect.Int16, reflect.Uint16:
		var u uint16
		if fv.Kind() == reflect.Int16 {
			u = uint16(fv.Int())
		} else {
			u = uint16(fv.Uint())
		}
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], u)
		buf.Write(tmp[:])
	case reflect.Int32, reflect.Uint32:
		var u uint32
		if fv.Kind() == reflect.Int32 {
			u = uint32(fv.Int())
		} else {
			u = uint32(fv.Uint())
		}
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], u)
		buf.Write(tmp[:])
	case reflect.Int64, reflect.Uint64:
		var u uint64
		if fv.Kind() == reflect.Int64 {
			u = uint64(fv.Int())
		} else {
			u = fv.Uint()
		}
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], u)
		buf.Write(tmp[:])
	case reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			encodeValue(buf, fv.Index(i), version)
		}
	case reflect.Struct:
		encodeVersioned(buf, fv.Interface(), version)
	}
}

// buildMetadataFixture241 synthesizes a v24.1 global-metadata.dat with one
// image, two type definitions, an interned string blob, and one string
// literal. Returns the file bytes plus the encoded type-definition table
// slice for round-trip assertions.
func buildMetadataFixture241(t *testing.T) (data []byte, typeDefBytes []byte) {
	t.Helper()
	const version = 24.1
	sanity := uint32(Sanity)

	// String blob: offset 0 is the empty string by convention.
	stringBlob := []byte{0}
	addString := func(s string) int32 {
		off := int32(len(stringBlob))
		stringBlob = append(stringBlob, []byte(s)...)
		stringBlob = append(stringBlob, 0)
		return off
	}
	imageNameOff := addString("Assembly-CSharp.dll")
	moduleOff := addString("<Module>")
	playerOff := addString("Player")
	gameOff := addString("Game")

	var typeDefs bytes.Buffer
	for _, td := range []TypeDefinition{
		{NameIndex: moduleOff, NamespaceIndex: 0, ParentIndex: -1, DeclaringTypeIndex: -1, ElementTypeIndex: -1, GenericContainerIndex: -1, Token: 0x02000001},
		{NameIndex: playerOff, NamespaceIndex: gameOff, ParentIndex: -1, DeclaringTypeIndex: -1, ElementTypeIndex: -1, GenericContainerIndex: -1, Token: 0x02000002},
	} {
		encodeVersioned(&typeDefs, td, version)
	}

	var images bytes.Buffer
	// Token 5 (not 1) is what steers the 24-vs-24.1 refinement to 24.1.
	encodeVersioned(&images, ImageDefinition{
		NameIndex: imageNameOff, AssemblyIndex: 0,
		TypeStart: 0, TypeCount: 2,
		EntryPointIndex: -1, Token: 5,
	}, version)

	var literals bytes.Buffer
	encodeVersioned(&literals, StringLiteral{Length: 2, DataIndex: 0}, version)
	literalData := []byte("hi")

	// First pass with zero offsets just measures the header.
	var probe bytes.Buffer
	encodeVersioned(&probe, Header{}, version)
	headerSize := int32(probe.Len())

	offset := headerSize
	place := func(b []byte) (off, size int32) {
		off, size = offset, int32(len(b))
		offset += size
		return
	}
	typeDefsOff, typeDefsSize := place(typeDefs.Bytes())
	imagesOff, imagesSize := place(images.Bytes())
	literalsOff, literalsSize := place(literals.Bytes())
	literalDataOff, literalDataSize := place(literalData)
	stringsOff, stringsSize := place(stringBlob)

	h := Header{
		Sanity:                  int32(sanity),
		Version:                 24,
		StringLiteralOffset:     literalsOff,
		StringLiteralSize:       literalsSize,
		StringLiteralDataOffset: literalDataOff,
		StringLiteralDataSize:   literalDataSize,
		StringOffset:            stringsOff,
		StringSize:              stringsSize,
		TypeDefinitionsOffset:   typeDefsOff,
		TypeDefinitionsSize:     typeDefsSize,
		ImagesOffset:            imagesOff,
		ImagesSize:              imagesSize,
	}
	var out bytes.Buffer
	encodeVersioned(&out, h, version)
	if int32(out.Len()) != headerSize {
		t.Fatalf("header size drifted: %d vs %d", out.Len(), headerSize)
	}
	out.Write(typeDefs.Bytes())
	out.Write(images.Bytes())
	out.Write(literals.Bytes())
	out.Write(literalData)
	out.Write(stringBlob)
	return out.Bytes(), typeDefs.Bytes()
}

func TestLoadFixtureV241(t *testing.T) {
	data, _ := buildMetadataFixture241(t)

	meta, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Version != 24.1 {
		t.Fatalf("version = %v, want 24.1", meta.Version)
	}
	if len(meta.Images) != 1 || len(meta.TypeDefinitions) != 2 {
		t.Fatalf("tables: %d images, %d typedefs", len(meta.Images), len(meta.TypeDefinitions))
	}

	name, err := meta.StringAt(meta.Images[0].NameIndex)
	if err != nil || name != "Assembly-CSharp.dll" {
		t.Fatalf("image name = %q, %v", name, err)
	}
	first, err := meta.StringAt(meta.TypeDefinitions[0].NameIndex)
	if err != nil || first != "<Module>" {
		t.Fatalf("first type = %q, %v", first, err)
	}
	ns, err := meta.StringAt(meta.TypeDefinitions[1].NamespaceIndex)
	if err != nil || ns != "Game" {
		t.Fatalf("namespace = %q, %v", ns, err)
	}

	lit, err := meta.StringLiteralValue(0)
	if err != nil || lit != "hi" {
		t.Fatalf("literal = %q, %v", lit, err)
	}
}

func TestTypeDefinitionDecodeEncodeIdempotent(t *testing.T) {
	data, typeDefBytes := buildMetadataFixture241(t)

	meta, err := Load(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	var reencoded bytes.Buffer
	for _, td := range meta.TypeDefinitions {
		encodeVersioned(&reencoded, td, meta.Version)
	}
	if !bytes.Equal(reencoded.Bytes(), typeDefBytes) {
		t.Fatalf("re-encoded type definitions differ from fixture bytes")
	}
}

func TestImageStringAtOutOfRange(t *testing.T) {
	img := &Image{stringBlobSize: 4, stringCache: map[int32]string{}}
	if _, err := img.StringAt(100); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
}

func TestTypeDefinitionAtOutOfRange(t *testing.T) {
	img := &Image{TypeDefinitions: make([]TypeDefinition, 2)}
	if _, err := img.TypeDefinitionAt(5); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
	if td, err := img.TypeDefinitionAt(1); err != nil || td == nil {
		t.Fatalf("expected valid lookup, got %v %v", td, err)
	}
}
