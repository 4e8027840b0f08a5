// Package loader detects and parses the executable image (ELF, PE, Mach-O,
// NSO, or WebAssembly) that carries the compiled IL2CPP code, producing the
// common vmem.View the registration locator and executor operate on.
package loader

import (
	"bytes"
	"errors"
	"fmt"

	"il2cppdump/internal/vmem"
)

// Format identifies the executable container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
	FormatMachO
	FormatNSO
	FormatWasm
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	case FormatNSO:
		return "NSO"
	case FormatWasm:
		return "WebAssembly"
	default:
		return "unknown"
	}
}

// ErrUnsupportedBinaryFormat is returned when the magic bytes match none of
// the supported container formats.
var ErrUnsupportedBinaryFormat = errors.New("loader: unsupported binary format")

// ErrMalformedBinary covers any other structurally invalid executable image.
var ErrMalformedBinary = errors.New("loader: malformed binary")

var (
	elfMagic   = []byte{0x7F, 'E', 'L', 'F'}
	peMagic    = []byte{'M', 'Z'}
	nsoMagic   = []byte{'N', 'S', 'O', '0'}
	wasmMagic  = []byte{0x00, 'a', 's', 'm'}
	machoMagics = [][4]byte{
		{0xFE, 0xED, 0xFA, 0xCE}, // MH_MAGIC (32-bit BE)
		{0xCE, 0xFA, 0xED, 0xFE}, // MH_CIGAM (32-bit LE host)
		{0xFE, 0xED, 0xFA, 0xCF}, // MH_MAGIC_64
		{0xCF, 0xFA, 0xED, 0xFE}, // MH_CIGAM_64
		{0xCA, 0xFE, 0xBA, 0xBE}, // FAT_MAGIC
		{0xBE, 0xBA, 0xFE, 0xCA}, // FAT_CIGAM
	}
)

// Detect identifies the container format from its leading magic bytes.
func Detect(data []byte) (Format, error) {
	if bytes.HasPrefix(data, elfMagic) {
		return FormatELF, nil
	}
	if bytes.HasPrefix(data, nsoMagic) {
		return FormatNSO, nil
	}
	if bytes.HasPrefix(data, wasmMagic) {
		return FormatWasm, nil
	}
	if len(data) >= 4 {
		var m [4]byte
		copy(m[:], data[:4])
		for _, magic := range machoMagics {
			if m == magic {
				return FormatMachO, nil
			}
		}
	}
	if bytes.HasPrefix(data, peMagic) {
		return FormatPE, nil
	}
	return FormatUnknown, fmt.Errorf("%w", ErrUnsupportedBinaryFormat)
}

// Load detects the container format and parses it into a vmem.View.
func Load(data []byte) (*vmem.View, Format, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, FormatUnknown, err
	}
	var view *vmem.View
	switch format {
	case FormatELF:
		view, err = loadELF(data)
	case FormatPE:
		view, err = loadPE(data)
	case FormatMachO:
		view, err = loadMachO(data)
	case FormatNSO:
		view, err = loadNSO(data)
	case FormatWasm:
		view, err = loadWasm(data)
	default:
		return nil, format, fmt.Errorf("%w", ErrUnsupportedBinaryFormat)
	}
	if err != nil {
		return nil, format, err
	}
	return view, format, nil
}
