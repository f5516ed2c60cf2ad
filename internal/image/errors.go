package image

import "errors"

var (
	// ErrUnsupportedFormat means the container is not ELF, PE or thin Mach-O.
	ErrUnsupportedFormat = errors.New("unsupported binary format")
	// ErrUnsupportedArch means the format was recognised but its instruction
	// set cannot be decoded.
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrAddressOutOfRange means a virtual address has no backing section or segment.
	ErrAddressOutOfRange = errors.New("address out of range")
	// ErrMalformedBinary means a structure every loadable image needs is missing.
	ErrMalformedBinary = errors.New("malformed binary")
	// ErrIO wraps failures to open, stat or map the input file.
	ErrIO = errors.New("i/o error")
)
