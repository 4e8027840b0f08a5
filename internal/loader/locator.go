package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"il2cppdump/internal/ilog"
	"il2cppdump/internal/vmem"

	"go.uber.org/zap"
)

// ErrRegistrationNotFound is returned when the locator exhausts every
// strategy without finding a candidate whose pointer tables validate.
var ErrRegistrationNotFound = errors.New("loader: registration structures not found")

// LocatorCounts carries the metadata-derived counts the locator validates
// candidate pointer tables against.
type LocatorCounts struct {
	MethodCount          int
	TypeDefinitionsCount int
	MetadataUsagesCount  int
	ImageCount           int
}

// LocatorOptions tunes the registration search.
type LocatorOptions struct {
	// RequireAllPointers rejects a candidate unless every entry of the one
	// pointer array the old searches validate (methodPointers for
	// CodeRegistration, metadataUsages for MetadataRegistration) lands in a
	// suitably permissioned segment; when false, half of the entries
	// suffice. The zero value is false; dump.Dump sets it to true. Other
	// pointer arrays of the registration layouts are not checked, and the
	// 24.2+ CodeRegistration search and the 27+ MetadataRegistration search
	// do not read this option.
	RequireAllPointers bool
}

// Registration holds the two root VAs the executor needs.
type Registration struct {
	CodeRegistration     uint64
	MetadataRegistration uint64
}

const mscorlibLiteral = "mscorlib.dll\x00"

// fieldCountBackoff resolves the §4.3.1 version-sensitive field count used
// to back up from a located CodeGenModule* reference to CodeRegistration's
// own base address.
func fieldCountBackoff(version float64) int {
	switch {
	case version >= 29.1:
		return 16
	case version >= 29:
		return 14
	default:
		return 13
	}
}

// Locate finds CodeRegistration and MetadataRegistration within view,
// dispatching to the pre-24.2 ("old") or 24.2+ ("plus") strategy.
func Locate(view *vmem.View, format Format, version float64, counts LocatorCounts, opts LocatorOptions) (*Registration, error) {
	log := ilog.Logger()
	if version < 24.2 {
		return locateOld(view, counts, opts)
	}
	return locatePlus(view, format, version, counts, opts, log)
}

func locateOld(view *vmem.View, counts LocatorCounts, opts LocatorOptions) (*Registration, error) {
	codeReg, err := findCodeRegistrationOld(view, counts, opts)
	if err != nil {
		return nil, err
	}
	metaReg, err := findMetadataRegistrationOld(view, counts, opts)
	if err != nil {
		return nil, err
	}
	return &Registration{CodeRegistration: codeReg, MetadataRegistration: metaReg}, nil
}

// findCodeRegistrationOld scans every readable, non-executable segment for a
// pointer-width value equal to methodCount; the following pointer, once
// dereferenced, must yield methodCount consecutive pointers that all land
// in an executable segment.
func findCodeRegistrationOld(view *vmem.View, counts LocatorCounts, opts LocatorOptions) (uint64, error) {
	ptrSize := view.PointerSize
	for _, seg := range view.SegmentsWithPerm(vmem.PermRead) {
		if seg.Perm&vmem.PermExec != 0 {
			continue
		}
		raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
		if err != nil {
			continue
		}
		for off := 0; off+ptrSize*2 <= len(raw); off += ptrSize {
			if readPtr(raw[off:], ptrSize) != uint64(counts.MethodCount) {
				continue
			}
			candidatePtrVA := readPtr(raw[off+ptrSize:], ptrSize)
			if !inRange(candidatePtrVA, view) {
				continue
			}
			ptrs, err := readPointerArray(view, candidatePtrVA, counts.MethodCount, ptrSize)
			if err != nil {
				continue
			}
			if allLandIn(ptrs, view, vmem.PermExec, opts.RequireAllPointers) {
				return seg.VAddr + uint64(off), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: CodeRegistration (old search)", ErrRegistrationNotFound)
}

func findMetadataRegistrationOld(view *vmem.View, counts LocatorCounts, opts LocatorOptions) (uint64, error) {
	ptrSize := view.PointerSize
	for _, seg := range view.SegmentsWithPerm(vmem.PermRead) {
		if seg.Perm&vmem.PermExec != 0 {
			continue
		}
		raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
		if err != nil {
			continue
		}
		// The hit is typeDefinitionsSizesCount (field 12 of the struct);
		// metadataUsages, the pointer validated below, sits three words
		// further on (field 15), and the struct base twelve words back.
		for off := 0; off+ptrSize*4 <= len(raw); off += ptrSize {
			if readPtr(raw[off:], ptrSize) != uint64(counts.TypeDefinitionsCount) {
				continue
			}
			ptrOff := off + ptrSize*3
			candidatePtrVA := readPtr(raw[ptrOff:], ptrSize)
			if !inRange(candidatePtrVA, view) {
				continue
			}
			ptrs, err := readPointerArray(view, candidatePtrVA, counts.MetadataUsagesCount, ptrSize)
			if err != nil {
				continue
			}
			if allLandIn(ptrs, view, 0, opts.RequireAllPointers) {
				return seg.VAddr + uint64(off) - uint64(ptrSize*12), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: MetadataRegistration (old search)", ErrRegistrationNotFound)
}

// locatePlus implements the >=24.2 "plus_search" strategy: locate the
// mscorlib.dll string literal, trace two pointer-reference hops back to a
// CodeGenModule* candidate, then solve for CodeRegistration's base address.
func locatePlus(view *vmem.View, format Format, version float64, counts LocatorCounts, opts LocatorOptions, log *zap.Logger) (*Registration, error) {
	ptrSize := view.PointerSize

	primary, secondary := view.SegmentsWithPerm(vmem.PermRead), view.SegmentsWithPerm(vmem.PermRead|vmem.PermExec)
	if format == FormatELF {
		primary, secondary = secondary, primary
	}

	var stringVA uint64
	var found bool
	for _, seg := range append(append([]vmem.Segment{}, primary...), secondary...) {
		raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
		if err != nil {
			continue
		}
		idx := bytes.Index(raw, []byte(mscorlibLiteral))
		if idx < 0 {
			continue
		}
		stringVA = seg.VAddr + uint64(idx)
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: mscorlib.dll literal not found", ErrRegistrationNotFound)
	}
	log.Debug("located mscorlib.dll literal", zap.Uint64("va", stringVA))

	refs1 := findReferences(view, stringVA, ptrSize)
	if len(refs1) == 0 {
		return nil, fmt.Errorf("%w: no references to mscorlib.dll string", ErrRegistrationNotFound)
	}
	var codeGenModuleCandidate uint64
	var hop2found bool
	for _, ref1 := range refs1 {
		refs2 := findReferences(view, ref1, ptrSize)
		if len(refs2) > 0 {
			codeGenModuleCandidate = refs2[0]
			hop2found = true
			break
		}
	}
	if !hop2found {
		return nil, fmt.Errorf("%w: no second-hop reference found", ErrRegistrationNotFound)
	}

	var codeRegVA uint64
	if version < 27 {
		var ok bool
		for i := 0; i < counts.ImageCount; i++ {
			target := codeGenModuleCandidate - uint64(i*ptrSize)
			refs := findReferences(view, target, ptrSize)
			for _, ref := range refs {
				candidate := ref - uint64(13*ptrSize)
				if candidate > 0 {
					codeRegVA = candidate
					ok = true
					break
				}
			}
			if ok {
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: CodeRegistration (plus search, pre-27)", ErrRegistrationNotFound)
		}
	} else {
		minTarget := codeGenModuleCandidate - uint64(counts.ImageCount-1)*uint64(ptrSize)
		maxTarget := codeGenModuleCandidate
		found := false
		for _, seg := range view.SegmentsWithPerm(vmem.PermRead) {
			raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
			if err != nil {
				continue
			}
			for off := 0; off+ptrSize*2 <= len(raw); off += ptrSize {
				if readPtr(raw[off:], ptrSize) != uint64(counts.ImageCount) {
					continue
				}
				next := readPtr(raw[off+ptrSize:], ptrSize)
				if next < minTarget || next > maxTarget {
					continue
				}
				backoff := fieldCountBackoff(version)
				codeRegVA = seg.VAddr + uint64(off+ptrSize) - uint64(backoff*ptrSize)
				found = true
				break
			}
			if found {
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: CodeRegistration (plus search, 27+)", ErrRegistrationNotFound)
		}
	}

	// Metadata-usage slots disappear at 27, and with them the old
	// usages-pointer validation, so only 27+ switches to the
	// [count][pointer][count] pattern search.
	var metaRegVA uint64
	var err error
	if version < 27 {
		metaRegVA, err = findMetadataRegistrationOld(view, counts, opts)
	} else {
		metaRegVA, err = findMetadataRegistrationPlus(view, counts, ptrSize, codeGenModuleCandidate)
	}
	if err != nil {
		return nil, err
	}

	return &Registration{CodeRegistration: codeRegVA, MetadataRegistration: metaRegVA}, nil
}

// findMetadataRegistrationPlus locates the [typeCount][pointer][typeCount]
// triple pattern used for versions >= 27: the middle pointer's first ten
// elements (fewer when there are fewer types) must each translate to a
// mapped file offset. Their segment's permissions are not compared, and
// codeGenModuleVA is not consulted.
func findMetadataRegistrationPlus(view *vmem.View, counts LocatorCounts, ptrSize int, codeGenModuleVA uint64) (uint64, error) {
	for _, seg := range view.SegmentsWithPerm(vmem.PermRead) {
		raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
		if err != nil {
			continue
		}
		for off := 0; off+ptrSize*3 <= len(raw); off += ptrSize {
			if readPtr(raw[off:], ptrSize) != uint64(counts.TypeDefinitionsCount) {
				continue
			}
			midPtr := readPtr(raw[off+ptrSize:], ptrSize)
			tailOff := off + ptrSize*2
			if tailOff+ptrSize > len(raw) || readPtr(raw[tailOff:], ptrSize) != uint64(counts.TypeDefinitionsCount) {
				continue
			}
			sample := counts.TypeDefinitionsCount
			if sample > 10 {
				sample = 10
			}
			ptrs, err := readPointerArray(view, midPtr, sample, ptrSize)
			if err != nil {
				continue
			}
			ok := true
			for _, p := range ptrs {
				if _, err := view.VAToOffset(p); err != nil {
					ok = false
					break
				}
			}
			if ok {
				return seg.VAddr + uint64(off) - uint64(10*ptrSize), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: MetadataRegistration (plus search)", ErrRegistrationNotFound)
}

// findReferences scans every readable segment for pointer-sized values
// equal to target, returning their virtual addresses.
func findReferences(view *vmem.View, target uint64, ptrSize int) []uint64 {
	var out []uint64
	for _, seg := range view.SegmentsWithPerm(vmem.PermRead) {
		raw, err := view.ReadAt(seg.VAddr, int(seg.FileSize))
		if err != nil {
			continue
		}
		for off := 0; off+ptrSize <= len(raw); off += ptrSize {
			if readPtr(raw[off:], ptrSize) == target {
				out = append(out, seg.VAddr+uint64(off))
			}
		}
	}
	return out
}

func readPointerArray(view *vmem.View, va uint64, count, ptrSize int) ([]uint64, error) {
	raw, err := view.ReadAt(va, count*ptrSize)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		out[i] = readPtr(raw[i*ptrSize:], ptrSize)
	}
	return out, nil
}

func readPtr(b []byte, ptrSize int) uint64 {
	if ptrSize == 4 {
		if len(b) < 4 {
			return 0
		}
		return uint64(binary.LittleEndian.Uint32(b))
	}
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func inRange(va uint64, view *vmem.View) bool {
	_, err := view.VAToOffset(va)
	return err == nil
}

// allLandIn reports whether every pointer in ptrs dereferences into a
// segment carrying all of want's permission bits. If requireAll is false,
// a match of at least half of the pointers is accepted instead, supporting
// partially mapped dumps.
func allLandIn(ptrs []uint64, view *vmem.View, want vmem.Perm, requireAll bool) bool {
	hits := 0
	for _, p := range ptrs {
		for _, seg := range view.Segments {
			if seg.Contains(p) && seg.Perm&want == want {
				hits++
				break
			}
		}
	}
	if requireAll {
		return hits == len(ptrs)
	}
	return len(ptrs) > 0 && hits*2 >= len(ptrs)
}
