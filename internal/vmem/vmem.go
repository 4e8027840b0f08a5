// Package vmem provides a format-independent view over an executable's
// address space: a list of mapped segments plus VA<->file-offset
// translation, shared by every loader backend in internal/loader.
package vmem

import (
	"errors"
	"fmt"
)

// ErrUnmappedAddress is returned when a virtual address falls outside every
// known segment.
var ErrUnmappedAddress = errors.New("vmem: unmapped address")

// Perm is the permission set of a segment, mirroring typical ELF/PE/Mach-O
// program-header flags.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func (p Perm) String() string {
	s := []byte("---")
	if p&PermRead != 0 {
		s[0] = 'r'
	}
	if p&PermWrite != 0 {
		s[1] = 'w'
	}
	if p&PermExec != 0 {
		s[2] = 'x'
	}
	return string(s)
}

// Segment is one mapped region of the executable's address space.
type Segment struct {
	Name       string
	VAddr      uint64
	Size       uint64 // size in memory; may exceed FileSize (e.g. BSS).
	FileOffset uint64
	FileSize   uint64
	Perm       Perm
}

// Contains reports whether va falls within this segment's mapped range.
func (s Segment) Contains(va uint64) bool {
	return va >= s.VAddr && va < s.VAddr+s.Size
}

// View is a read-only window over an executable image's address space.
// PointerSize is 4 or 8 and determines how the registration locator
// interprets pointer-width fields.
type View struct {
	Data        []byte
	Segments    []Segment
	PointerSize int
	LittleEndian bool
	Symbols     map[string]uint64 // optional; nil if the image carries no symbol table
}

// VAToOffset translates a virtual address into a file offset using the
// segment table. It returns ErrUnmappedAddress if va is not covered by any
// segment, or if the translated offset would fall in the portion of memory
// beyond what the file actually backs (e.g. BSS padding).
func (v *View) VAToOffset(va uint64) (int64, error) {
	for _, seg := range v.Segments {
		if seg.Contains(va) {
			delta := va - seg.VAddr
			if delta >= seg.FileSize {
				return 0, fmt.Errorf("%w: va=%#x in zero-fill tail of segment %q", ErrUnmappedAddress, va, seg.Name)
			}
			return int64(seg.FileOffset + delta), nil
		}
	}
	return 0, fmt.Errorf("%w: va=%#x", ErrUnmappedAddress, va)
}

// ReadAt reads n bytes starting at virtual address va.
func (v *View) ReadAt(va uint64, n int) ([]byte, error) {
	off, err := v.VAToOffset(va)
	if err != nil {
		return nil, err
	}
	if off < 0 || int(off)+n > len(v.Data) {
		return nil, fmt.Errorf("%w: va=%#x len=%d", ErrUnmappedAddress, va, n)
	}
	return v.Data[off : int(off)+n], nil
}

// SegmentsWithPerm returns the subset of segments carrying all bits of want.
func (v *View) SegmentsWithPerm(want Perm) []Segment {
	var out []Segment
	for _, seg := range v.Segments {
		if seg.Perm&want == want {
			out = append(out, seg)
		}
	}
	return out
}

// Symbol looks up a named symbol's virtual address, if the image carries a
// symbol table.
func (v *View) Symbol(name string) (uint64, bool) {
	va, ok := v.Symbols[name]
	return va, ok
}
