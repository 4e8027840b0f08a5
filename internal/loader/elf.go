package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"il2cppdump/internal/vmem"
)

// loadELF parses a 32- or 64-bit ELF image of any machine type into a
// vmem.View using the standard library's debug/elf; IL2CPP ships on ARM,
// ARM64, x86, and x86-64 targets so no machine filter is applied.
func loadELF(data []byte) (*vmem.View, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBinary, err)
	}
	defer ef.Close()

	ptrSize := 4
	if ef.Class == elf.ELFCLASS64 {
		ptrSize = 8
	}

	view := &vmem.View{
		Data:         data,
		PointerSize:  ptrSize,
		LittleEndian: ef.ByteOrder == binary.LittleEndian,
	}

	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		view.Segments = append(view.Segments, vmem.Segment{
			Name:       "LOAD",
			VAddr:      prog.Vaddr,
			Size:       prog.Memsz,
			FileOffset: prog.Off,
			FileSize:   prog.Filesz,
			Perm:       elfPerm(prog.Flags),
		})
	}

	if syms, err := ef.DynamicSymbols(); err == nil {
		view.Symbols = make(map[string]uint64, len(syms))
		for _, s := range syms {
			if s.Name != "" && s.Value != 0 {
				view.Symbols[s.Name] = s.Value
			}
		}
	}
	if syms, err := ef.Symbols(); err == nil {
		if view.Symbols == nil {
			view.Symbols = make(map[string]uint64, len(syms))
		}
		for _, s := range syms {
			if s.Name != "" && s.Value != 0 {
				view.Symbols[s.Name] = s.Value
			}
		}
	}

	return view, nil
}

func elfPerm(flags elf.ProgFlag) vmem.Perm {
	var p vmem.Perm
	if flags&elf.PF_R != 0 {
		p |= vmem.PermRead
	}
	if flags&elf.PF_W != 0 {
		p |= vmem.PermWrite
	}
	if flags&elf.PF_X != 0 {
		p |= vmem.PermExec
	}
	return p
}
