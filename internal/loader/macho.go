package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	macho "github.com/blacktop/go-macho"

	"il2cppdump/internal/vmem"
)

const (
	fatMagic32 = 0xCAFEBABE
	fatMagic64 = 0xCAFEBABF
)

// loadMachO parses a 32/64-bit Mach-O image via github.com/blacktop/go-macho.
// That library does not parse FAT (universal) containers itself, so FAT
// slice selection is done here: the first arch slice is picked (IL2CPP
// binaries are overwhelmingly single-arch per file even when fat-packaged),
// and the chosen slice's raw bytes are handed to go-macho for parsing.
func loadMachO(data []byte) (*vmem.View, error) {
	slice, err := selectMachOSlice(data)
	if err != nil {
		return nil, err
	}

	mf, err := macho.NewFile(bytes.NewReader(slice))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	defer mf.Close()

	ptrSize := 4
	if is64BitMachO(slice) {
		ptrSize = 8
	}

	view := &vmem.View{
		Data:         slice,
		PointerSize:  ptrSize,
		LittleEndian: true,
	}

	for _, seg := range mf.Segments() {
		view.Segments = append(view.Segments, vmem.Segment{
			Name:       seg.Name,
			VAddr:      seg.Addr,
			Size:       seg.Memsz,
			FileOffset: seg.Offset,
			FileSize:   seg.Filesz,
			Perm:       machoPerm(int32(seg.Prot)),
		})
	}

	// Mach-O exports aren't resolved to VAs by go-macho's basic symbol
	// accessors either; see the PE loader's equivalent note.
	return view, nil
}

// selectMachOSlice returns the raw bytes of a single Mach-O image: either
// data itself (thin binary) or the first architecture slice of a FAT
// container.
func selectMachOSlice(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: truncated Mach-O header", ErrMalformedBinary)
	}
	magic := binary.BigEndian.Uint32(data[:4])
	if magic != fatMagic32 && magic != fatMagic64 {
		return data, nil
	}
	nArch := binary.BigEndian.Uint32(data[4:8])
	if nArch == 0 {
		return nil, fmt.Errorf("%w: FAT binary has no architectures", ErrMalformedBinary)
	}
	archHeaderSize := 20
	if magic == fatMagic64 {
		archHeaderSize = 32
	}
	off := 8
	if off+archHeaderSize > len(data) {
		return nil, fmt.Errorf("%w: truncated FAT arch table", ErrMalformedBinary)
	}
	var sliceOff, sliceSize uint64
	if magic == fatMagic64 {
		sliceOff = binary.BigEndian.Uint64(data[off+8 : off+16])
		sliceSize = binary.BigEndian.Uint64(data[off+16 : off+24])
	} else {
		sliceOff = uint64(binary.BigEndian.Uint32(data[off+8 : off+12]))
		sliceSize = uint64(binary.BigEndian.Uint32(data[off+12 : off+16]))
	}
	if sliceOff+sliceSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: FAT arch slice out of range", ErrMalformedBinary)
	}
	return data[sliceOff : sliceOff+sliceSize], nil
}

func is64BitMachO(slice []byte) bool {
	if len(slice) < 4 {
		return false
	}
	m := binary.BigEndian.Uint32(slice[:4])
	return m == 0xFEEDFACF || binary.LittleEndian.Uint32(slice[:4]) == 0xFEEDFACF
}

func machoPerm(prot int32) vmem.Perm {
	const (
		vmProtRead    = 0x1
		vmProtWrite   = 0x2
		vmProtExecute = 0x4
	)
	var p vmem.Perm
	if prot&vmProtRead != 0 {
		p |= vmem.PermRead
	}
	if prot&vmProtWrite != 0 {
		p |= vmem.PermWrite
	}
	if prot&vmProtExecute != 0 {
		p |= vmem.PermExec
	}
	return p
}
