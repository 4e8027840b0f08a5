package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is returned when the global-metadata.dat magic number
	// does not match the expected sanity value. It wraps
	// ErrMalformedMetadata.
	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrMalformedMetadata)
	// ErrUnsupportedVersion is returned for a major version outside [16, 31].
	ErrUnsupportedVersion = errors.New("metadata: unsupported version")
	// ErrAmbiguousVersion names the case where minor-version refinement
	// cannot settle on one sub-version. refineVersion always settles on a
	// version, so no decoding path in this package returns it.
	ErrAmbiguousVersion = errors.New("metadata: ambiguous version")
	// ErrMalformedMetadata covers any other structurally invalid metadata.
	ErrMalformedMetadata = errors.New("metadata: malformed metadata")
	// ErrCorruptIndex is returned when a table index falls outside its
	// referent table's bounds.
	ErrCorruptIndex = errors.New("metadata: corrupt index")
)
