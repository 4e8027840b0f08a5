package dump

import (
	"il2cppdump/internal/binstream"
	"il2cppdump/internal/loader"
	"il2cppdump/internal/metadata"
	"il2cppdump/internal/vmem"
)

// The sentinels below re-export the stage-specific errors each underlying
// package already defines, giving callers a single package to check
// errors.Is against regardless of which stage failed, per the taxonomy in
// the error handling design.
var (
	ErrUnsupportedVersion      = metadata.ErrUnsupportedVersion
	ErrAmbiguousVersion        = metadata.ErrAmbiguousVersion
	ErrMalformedMetadata       = metadata.ErrMalformedMetadata
	ErrCorruptIndex            = metadata.ErrCorruptIndex
	ErrUnsupportedBinaryFormat = loader.ErrUnsupportedBinaryFormat
	ErrMalformedBinary         = loader.ErrMalformedBinary
	ErrRegistrationNotFound    = loader.ErrRegistrationNotFound
	ErrUnmappedAddress         = vmem.ErrUnmappedAddress
	ErrUnexpectedEOF           = binstream.ErrUnexpectedEOF
	ErrMalformedString         = binstream.ErrMalformedString
)
