package loader

import (
	"fmt"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/vmem"
)

const (
	wasmSectionCustom = 0
	wasmSectionCode   = 10
	wasmSectionData   = 11
)

// loadWasm scans a WebAssembly module's section headers (magic \0asm,
// version 1) without executing anything: the registration locator only
// needs the flat data-section bytes and the code section's byte range.
func loadWasm(data []byte) (*vmem.View, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: WebAssembly header truncated", ErrMalformedBinary)
	}
	c := binstream.NewCursor(data)
	if _, err := c.ReadBytes(4); err != nil { // magic, already matched by Detect
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	version, err := c.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	if version != 1 {
		return nil, fmt.Errorf("%w: unsupported WebAssembly version %d", ErrMalformedBinary, version)
	}

	view := &vmem.View{
		Data:         data,
		PointerSize:  4,
		LittleEndian: true,
	}

	for c.Remaining() > 0 {
		id, err := c.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
		}
		size, err := readLEB128Unsigned(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
		}
		start := c.Position()
		if start+int(size) > c.Len() {
			return nil, fmt.Errorf("%w: WebAssembly section exceeds module size", ErrMalformedBinary)
		}
		switch id {
		case wasmSectionCode:
			view.Segments = append(view.Segments, vmem.Segment{
				Name: "code", VAddr: uint64(start), Size: uint64(size),
				FileOffset: uint64(start), FileSize: uint64(size), Perm: vmem.PermRead | vmem.PermExec,
			})
		case wasmSectionData:
			view.Segments = append(view.Segments, vmem.Segment{
				Name: "data", VAddr: uint64(start), Size: uint64(size),
				FileOffset: uint64(start), FileSize: uint64(size), Perm: vmem.PermRead | vmem.PermWrite,
			})
		default:
			view.Segments = append(view.Segments, vmem.Segment{
				Name: sectionName(id), VAddr: uint64(start), Size: uint64(size),
				FileOffset: uint64(start), FileSize: uint64(size), Perm: vmem.PermRead,
			})
		}
		if err := c.SetPosition(start + int(size)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
		}
	}
	return view, nil
}

func sectionName(id uint8) string {
	names := map[uint8]string{
		0: "custom", 1: "type", 2: "import", 3: "function", 4: "table",
		5: "memory", 6: "global", 7: "export", 8: "start", 9: "element",
		10: "code", 11: "data", 12: "data-count",
	}
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("section-%d", id)
}

// readLEB128Unsigned reads a ULEB128-encoded value, as specified by the
// WebAssembly binary format for section sizes and counts.
func readLEB128Unsigned(c *binstream.Cursor) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := c.ReadU8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("LEB128 value too large")
		}
	}
}
