package loader

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/vmem"
)

// nsoHeaderSize is the byte length of the fixed NSO0 header.
const nsoHeaderSize = 0x100

// nsoHeader mirrors the fixed-layout Nintendo Switch NSO0 header.
type nsoHeader struct {
	Magic                 [4]byte
	Version               uint32
	Reserved              uint32
	Flags                 uint32
	TextFileOffset        uint32
	TextMemoryOffset      uint32
	TextDecompressedSize  uint32
	ModuleNameOffset      uint32
	RodataFileOffset      uint32
	RodataMemoryOffset    uint32
	RodataDecompressedSize uint32
	ModuleNameSize        uint32
	DataFileOffset        uint32
	DataMemoryOffset      uint32
	DataDecompressedSize  uint32
	BssSize               uint32
}

const (
	nsoFlagTextCompressed = 1 << 0
	nsoFlagRodataCompressed = 1 << 1
	nsoFlagDataCompressed = 1 << 2
)

// compressedSizesOffset is the fixed file offset (per the NSO0 format) of
// the three uint32 compressed-segment sizes (text, rodata, data).
const compressedSizesOffset = 0x60

// loadNSO decompresses each of an NSO's LZ4-block-compressed segments
// (text/rodata/data) into a single flat memory image and exposes it as a
// vmem.View with one segment per section plus the trailing BSS.
func loadNSO(data []byte) (*vmem.View, error) {
	if len(data) < nsoHeaderSize {
		return nil, fmt.Errorf("%w: NSO header truncated", ErrMalformedBinary)
	}
	c := binstream.NewCursor(data)
	var h nsoHeader
	if err := decodeNSOHeader(c, &h); err != nil {
		return nil, err
	}

	sizesCursor := binstream.NewCursorAt(data, compressedSizesOffset)
	textCompSize, err := sizesCursor.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	rodataCompSize, err := sizesCursor.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	dataCompSize, err := sizesCursor.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}

	totalSize := uint64(h.DataMemoryOffset) + uint64(h.DataDecompressedSize) + uint64(h.BssSize)
	image := make([]byte, totalSize)

	if err := placeSegment(image, data, h.Flags, nsoFlagTextCompressed, h.TextFileOffset, textCompSize, h.TextMemoryOffset, h.TextDecompressedSize); err != nil {
		return nil, err
	}
	if err := placeSegment(image, data, h.Flags, nsoFlagRodataCompressed, h.RodataFileOffset, rodataCompSize, h.RodataMemoryOffset, h.RodataDecompressedSize); err != nil {
		return nil, err
	}
	if err := placeSegment(image, data, h.Flags, nsoFlagDataCompressed, h.DataFileOffset, dataCompSize, h.DataMemoryOffset, h.DataDecompressedSize); err != nil {
		return nil, err
	}

	view := &vmem.View{
		Data:         image,
		PointerSize:  8,
		LittleEndian: true,
		Segments: []vmem.Segment{
			{Name: ".text", VAddr: uint64(h.TextMemoryOffset), Size: uint64(h.TextDecompressedSize), FileOffset: uint64(h.TextMemoryOffset), FileSize: uint64(h.TextDecompressedSize), Perm: vmem.PermRead | vmem.PermExec},
			{Name: ".rodata", VAddr: uint64(h.RodataMemoryOffset), Size: uint64(h.RodataDecompressedSize), FileOffset: uint64(h.RodataMemoryOffset), FileSize: uint64(h.RodataDecompressedSize), Perm: vmem.PermRead},
			{Name: ".data", VAddr: uint64(h.DataMemoryOffset), Size: uint64(h.DataDecompressedSize) + uint64(h.BssSize), FileOffset: uint64(h.DataMemoryOffset), FileSize: uint64(h.DataDecompressedSize), Perm: vmem.PermRead | vmem.PermWrite},
		},
	}
	return view, nil
}

func decodeNSOHeader(c *binstream.Cursor, h *nsoHeader) error {
	magic, err := c.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	copy(h.Magic[:], magic)
	fields := []*uint32{
		&h.Version, &h.Reserved, &h.Flags,
		&h.TextFileOffset, &h.TextMemoryOffset, &h.TextDecompressedSize,
		&h.ModuleNameOffset,
		&h.RodataFileOffset, &h.RodataMemoryOffset, &h.RodataDecompressedSize,
		&h.ModuleNameSize,
		&h.DataFileOffset, &h.DataMemoryOffset, &h.DataDecompressedSize,
		&h.BssSize,
	}
	for _, f := range fields {
		v, err := c.ReadU32()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBinary, err)
		}
		*f = v
	}
	return nil
}

// placeSegment copies (or LZ4-block-decompresses) one NSO segment into its
// place in the flat memory image.
func placeSegment(image, data []byte, flags, compressedBit uint32, fileOffset, compSize, memOffset, decompSize uint32) error {
	if uint64(memOffset)+uint64(decompSize) > uint64(len(image)) {
		return fmt.Errorf("%w: NSO segment exceeds computed image size", ErrMalformedBinary)
	}
	if flags&compressedBit == 0 {
		if uint64(fileOffset)+uint64(decompSize) > uint64(len(data)) {
			return fmt.Errorf("%w: NSO segment exceeds file size", ErrMalformedBinary)
		}
		copy(image[memOffset:memOffset+decompSize], data[fileOffset:fileOffset+decompSize])
		return nil
	}
	if uint64(fileOffset)+uint64(compSize) > uint64(len(data)) {
		return fmt.Errorf("%w: NSO compressed segment exceeds file size", ErrMalformedBinary)
	}
	n, err := lz4.UncompressBlock(data[fileOffset:fileOffset+compSize], image[memOffset:memOffset+decompSize])
	if err != nil {
		return fmt.Errorf("%w: LZ4 decompress: %v", ErrMalformedBinary, err)
	}
	if uint32(n) != decompSize {
		return fmt.Errorf("%w: LZ4 decompressed size mismatch: got %d want %d", ErrMalformedBinary, n, decompSize)
	}
	return nil
}
