// Package image describes a loaded executable independently of its container format.
package image

import "fmt"

// Arch is the instruction set an image was built for.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_32
	ArchX86_64
	ArchARM
	ArchARM64
	ArchMIPS
	ArchPPC
	ArchPPC64
	ArchRISCV
)

func (a Arch) String() string {
	switch a {
	case ArchX86_32:
		return "x86-32"
	case ArchX86_64:
		return "x86-64"
	case ArchARM:
		return "arm"
	case ArchARM64:
		return "arm64"
	case ArchMIPS:
		return "mips"
	case ArchPPC:
		return "ppc"
	case ArchPPC64:
		return "ppc64"
	case ArchRISCV:
		return "riscv"
	default:
		return "unknown"
	}
}

// Bits returns the native word size of a, or 0 if unknown.
func (a Arch) Bits() int {
	switch a {
	case ArchX86_32, ArchARM, ArchMIPS, ArchPPC:
		return 32
	case ArchX86_64, ArchARM64, ArchPPC64, ArchRISCV:
		return 64
	}
	return 0
}

// Format is the container format of an image.
type Format int

const (
	FormatELF Format = iota + 1
	FormatPE
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Section is a named virtual address range backed by file bytes.
type Section struct {
	Name string `json:"name"`
	VA   uint64 `json:"va"`
	Off  uint64 `json:"offset"`
	Size uint64 `json:"size"`
}

// Contains reports whether va lies inside s.
func (s Section) Contains(va uint64) bool {
	return s.Size != 0 && va >= s.VA && va < s.VA+s.Size
}

// Image is a read-only view of an executable. Implementations borrow a mapped
// file and must not mutate it.
type Image interface {
	Path() string
	Format() Format
	Arch() Arch
	LittleEndian() bool

	// Entry returns the virtual address execution starts at.
	Entry() uint64

	// Text returns the primary code section. It fails with
	// ErrMalformedBinary if the image has none.
	Text() (Section, error)

	// VAToOffset translates a virtual address to an offset into Bytes.
	// Unmapped addresses fail with ErrAddressOutOfRange.
	VAToOffset(va uint64) (uint64, error)

	// Bytes returns the whole mapped file.
	Bytes() []byte

	Symbols() *SymbolTable

	Close() error
}
