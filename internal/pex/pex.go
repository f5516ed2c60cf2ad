// Package pex adapts PE/COFF executables to image.Image.
package pex

import (
	"fmt"

	"github.com/saferwall/pe"

	"x2arm/internal/image"
)

type Image struct {
	path      string
	File      *pe.File
	ImageBase uint64
	EntryRVA  uint32
	Sections  []image.Section
	text      image.Section
	symtab    *image.SymbolTable
	m         *image.Mapping
}

var machines = map[uint16]image.Arch{
	uint16(pe.ImageFileMachineI386):  image.ArchX86_32,
	uint16(pe.ImageFileMachineAMD64): image.ArchX86_64,
	uint16(pe.ImageFileMachineARMNT): image.ArchARM,
	uint16(pe.ImageFileMachineARM64): image.ArchARM64,
}

// Open maps path and parses it as PE.
func Open(path string) (*Image, error) {
	m, err := image.Map(path)
	if err != nil {
		return nil, err
	}
	im, err := New(m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return im, nil
}

// New parses an already mapped PE file. On success the Image owns m.
func New(m *image.Mapping) (*Image, error) {
	f, err := pe.NewBytes(m.Bytes(), &pe.Options{})
	if err != nil {
		return nil, fmt.Errorf("pex: %w: %w", image.ErrMalformedBinary, err)
	}
	if err := f.Parse(); err != nil {
		return nil, fmt.Errorf("pex: %w: %w", image.ErrMalformedBinary, err)
	}

	im := &Image{path: m.Path, File: f, m: m}
	switch oh := f.NtHeader.OptionalHeader.(type) {
	case pe.ImageOptionalHeader64:
		im.ImageBase, im.EntryRVA = oh.ImageBase, oh.AddressOfEntryPoint
	case *pe.ImageOptionalHeader64:
		im.ImageBase, im.EntryRVA = oh.ImageBase, oh.AddressOfEntryPoint
	case pe.ImageOptionalHeader32:
		im.ImageBase, im.EntryRVA = uint64(oh.ImageBase), oh.AddressOfEntryPoint
	case *pe.ImageOptionalHeader32:
		im.ImageBase, im.EntryRVA = uint64(oh.ImageBase), oh.AddressOfEntryPoint
	default:
		return nil, fmt.Errorf("pex: %w: no optional header", image.ErrMalformedBinary)
	}

	for _, s := range f.Sections {
		h := s.Header
		size := uint64(h.VirtualSize)
		if size == 0 || uint64(h.SizeOfRawData) < size {
			// Only file-backed bytes can be decoded.
			size = uint64(h.SizeOfRawData)
		}
		sec := image.Section{
			Name: s.String(),
			VA:   im.ImageBase + uint64(h.VirtualAddress),
			Off:  uint64(h.PointerToRawData),
			Size: size,
		}
		im.Sections = append(im.Sections, sec)
		if im.text.Size == 0 && (sec.Name == ".text" || h.Characteristics&pe.ImageSectionMemExecute != 0) {
			im.text = sec
		}
	}

	var syms []image.Symbol
	for _, fn := range f.Export.Functions {
		if fn.FunctionRVA == 0 {
			continue
		}
		syms = append(syms, image.Symbol{
			Name: fn.Name,
			Addr: im.ImageBase + uint64(fn.FunctionRVA),
			Func: true,
		})
	}
	if entry := im.Entry(); entry != im.ImageBase {
		syms = append(syms, image.Symbol{Name: "entry", Addr: entry, Func: true})
	}
	im.symtab = image.NewSymbolTable(syms)
	return im, nil
}

// Close unmaps the file. The parser works on the mapping's bytes and owns no
// resources of its own.
func (im *Image) Close() error {
	im.File = nil
	return im.m.Close()
}

func (im *Image) Path() string                { return im.path }
func (im *Image) Format() image.Format        { return image.FormatPE }
func (im *Image) Bytes() []byte               { return im.m.Bytes() }
func (im *Image) LittleEndian() bool          { return true }
func (im *Image) Symbols() *image.SymbolTable { return im.symtab }

// Entry is the image base plus AddressOfEntryPoint.
func (im *Image) Entry() uint64 { return im.ImageBase + uint64(im.EntryRVA) }

func (im *Image) Arch() image.Arch {
	if a, ok := machines[uint16(im.File.NtHeader.FileHeader.Machine)]; ok {
		return a
	}
	return image.ArchUnknown
}

func (im *Image) Text() (image.Section, error) {
	if im.text.Size == 0 {
		return image.Section{}, fmt.Errorf("pex: %w: no code section", image.ErrMalformedBinary)
	}
	return im.text, nil
}

func (im *Image) VAToOffset(va uint64) (uint64, error) {
	for _, s := range im.Sections {
		if s.Contains(va) {
			off := s.Off + (va - s.VA)
			if off < uint64(len(im.m.Bytes())) {
				return off, nil
			}
		}
	}
	return 0, fmt.Errorf("pex: %w: va %#x", image.ErrAddressOutOfRange, va)
}

var _ image.Image = (*Image)(nil)
