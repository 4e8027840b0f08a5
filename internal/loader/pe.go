package loader

import (
	"bytes"
	"debug/pe"
	"fmt"

	"il2cppdump/internal/vmem"
)

// loadPE parses a Windows PE/COFF image using the standard library's
// debug/pe. No ecosystem PE *reader* dependency appears anywhere in the
// example corpus (the only PE-related example code is a writer for a
// hand-rolled compiler backend), so this is the one loader built on the
// standard library rather than a third-party parser.
func loadPE(data []byte) (*vmem.View, error) {
	pf, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	defer pf.Close()

	var imageBase uint64
	ptrSize := 4
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
		ptrSize = 8
	default:
		return nil, fmt.Errorf("%w: missing optional header", ErrMalformedBinary)
	}

	view := &vmem.View{
		Data:         data,
		PointerSize:  ptrSize,
		LittleEndian: true,
	}

	for _, sec := range pf.Sections {
		perm := vmem.PermRead
		if sec.Characteristics&0x80000000 != 0 { // IMAGE_SCN_MEM_WRITE
			perm |= vmem.PermWrite
		}
		if sec.Characteristics&0x20000000 != 0 { // IMAGE_SCN_MEM_EXECUTE
			perm |= vmem.PermExec
		}
		view.Segments = append(view.Segments, vmem.Segment{
			Name:       sec.Name,
			VAddr:      imageBase + uint64(sec.VirtualAddress),
			Size:       uint64(sec.VirtualSize),
			FileOffset: uint64(sec.Offset),
			FileSize:   uint64(sec.Size),
			Perm:       perm,
		})
	}

	// debug/pe exposes imports by name, not exports resolved to VAs, so the
	// symbol table stays empty; the registration locator never depends on
	// it for PE targets, which are shipped release-stripped in practice.
	return view, nil
}
