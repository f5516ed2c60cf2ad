// Package elfx opens ELF executables, locates their code and maps virtual
// addresses to file offsets.
package elfx

import (
	"bytes"
	"debug/elf"
	"fmt"

	"x2arm/internal/image"
)

type Image struct {
	path    string
	File    *elf.File
	All     []byte
	Loads   []Seg
	Allocs  []image.Section
	text    image.Section
	PLT     image.Section
	PLTSec  image.Section
	Dynsyms []image.Symbol
	Syms    []image.Symbol
	PLTRels []PLTRel
	symtab  *image.SymbolTable
	m       *image.Mapping
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

var machines = map[elf.Machine]image.Arch{
	elf.EM_386:     image.ArchX86_32,
	elf.EM_X86_64:  image.ArchX86_64,
	elf.EM_ARM:     image.ArchARM,
	elf.EM_AARCH64: image.ArchARM64,
	elf.EM_MIPS:    image.ArchMIPS,
	elf.EM_PPC:     image.ArchPPC,
	elf.EM_PPC64:   image.ArchPPC64,
	elf.EM_RISCV:   image.ArchRISCV,
}

// Open maps path and parses it as ELF.
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

// New parses an already mapped ELF file. On success the Image owns m.
func New(m *image.Mapping) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(m.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("elfx: %w: %w", image.ErrMalformedBinary, err)
	}

	im := &Image{path: m.Path, File: f, All: m.Bytes(), m: m}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		sec := image.Section{Name: s.Name, VA: s.Addr, Off: s.Offset, Size: s.Size}
		if s.Flags&elf.SHF_ALLOC != 0 && s.Type != elf.SHT_NOBITS && s.Addr != 0 {
			im.Allocs = append(im.Allocs, sec)
		}
		switch s.Name {
		case ".text":
			im.text = sec
		case ".plt":
			im.PLT = sec
		case ".plt.sec":
			im.PLTSec = sec
		}
	}

	// Stripped section headers: fall back to the first executable segment.
	if im.text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.text = image.Section{Name: "LOAD(exec)", VA: l.Vaddr, Off: l.Off, Size: l.Filesz}
				break
			}
		}
	}

	im.loadDynamicSymbols()
	im.loadStaticSymbols()
	im.parsePLTRelocations()

	all := make([]image.Symbol, 0, len(im.Syms)+len(im.Dynsyms)+len(im.PLTRels))
	all = append(all, im.Syms...)
	all = append(all, im.Dynsyms...)
	all = append(all, im.pltSymbols()...)
	im.symtab = image.NewSymbolTable(all)
	return im, nil
}

// Close unmaps the file.
func (im *Image) Close() error {
	if im.File != nil {
		im.File.Close()
		im.File = nil
	}
	im.All = nil
	return im.m.Close()
}

func (im *Image) Path() string                { return im.path }
func (im *Image) Format() image.Format        { return image.FormatELF }
func (im *Image) Entry() uint64               { return im.File.Entry }
func (im *Image) Bytes() []byte               { return im.All }
func (im *Image) LittleEndian() bool          { return im.File.Data == elf.ELFDATA2LSB }
func (im *Image) Symbols() *image.SymbolTable { return im.symtab }

func (im *Image) Arch() image.Arch {
	if a, ok := machines[im.File.Machine]; ok {
		return a
	}
	return image.ArchUnknown
}

func (im *Image) Text() (image.Section, error) {
	if im.text.Size == 0 {
		return image.Section{}, fmt.Errorf("elfx: %w: no .text section or executable segment", image.ErrMalformedBinary)
	}
	return im.text, nil
}

// VAToOffset translates a virtual address into a file offset using PT_LOAD
// segments, falling back to allocated sections for images without program
// headers.
func (im *Image) VAToOffset(va uint64) (uint64, error) {
	off, ok := im.va2off(va)
	if !ok || off >= uint64(len(im.All)) {
		return 0, fmt.Errorf("elfx: %w: va %#x", image.ErrAddressOutOfRange, va)
	}
	return off, nil
}

func (im *Image) va2off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	if len(im.Loads) == 0 {
		for _, s := range im.Allocs {
			if s.Contains(va) {
				return s.Off + (va - s.VA), true
			}
		}
	}
	return 0, false
}

// loadDynamicSymbols loads .dynsym.
func (im *Image) loadDynamicSymbols() {
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}
	for _, sym := range dynsyms {
		im.Dynsyms = append(im.Dynsyms, image.Symbol{
			Name: sym.Name,
			Addr: sym.Value,
			Size: sym.Size,
			Func: elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
		})
	}
}

// loadStaticSymbols loads .symtab; stripped binaries have none.
func (im *Image) loadStaticSymbols() {
	syms, err := im.File.Symbols()
	if err != nil {
		return
	}
	for _, sym := range syms {
		if sym.Value == 0 || elf.ST_TYPE(sym.Info) == elf.STT_SECTION || elf.ST_TYPE(sym.Info) == elf.STT_FILE {
			continue
		}
		im.Syms = append(im.Syms, image.Symbol{
			Name: sym.Name,
			Addr: sym.Value,
			Size: sym.Size,
			Func: elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
		})
	}
}

var _ image.Image = (*Image)(nil)
