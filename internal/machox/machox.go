// Package machox adapts thin Mach-O executables to image.Image.
package machox

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"

	"x2arm/internal/image"
)

// Mach-O cputype values.
const (
	cpuArch64 = 0x01000000
	cpuX86    = 7
	cpuArm    = 12
	cpuPpc    = 18
)

var cpus = map[uint32]image.Arch{
	cpuX86:             image.ArchX86_32,
	cpuX86 | cpuArch64: image.ArchX86_64,
	cpuArm:             image.ArchARM,
	cpuArm | cpuArch64: image.ArchARM64,
	cpuPpc:             image.ArchPPC,
	cpuPpc | cpuArch64: image.ArchPPC64,
}

type Image struct {
	path   string
	File   *macho.File
	entry  uint64
	text   image.Section
	segs   []image.Section
	symtab *image.SymbolTable
	m      *image.Mapping
}

// Open maps path and parses it as a thin Mach-O file.
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

// New parses an already mapped Mach-O file. On success the Image owns m.
func New(m *image.Mapping) (*Image, error) {
	f, err := macho.NewFile(bytes.NewReader(m.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("machox: %w: %w", image.ErrMalformedBinary, err)
	}

	im := &Image{path: m.Path, File: f, m: m}
	var textSeg uint64
	for _, seg := range f.Segments() {
		if seg.Name == "__TEXT" {
			textSeg = seg.Addr
		}
		if seg.Filesz == 0 {
			continue
		}
		im.segs = append(im.segs, image.Section{
			Name: seg.Name,
			VA:   seg.Addr,
			Off:  seg.Offset,
			Size: seg.Filesz,
		})
	}

	if sec := f.Section("__TEXT", "__text"); sec != nil {
		im.text = image.Section{
			Name: sec.Seg + "," + sec.Name,
			VA:   sec.Addr,
			Off:  uint64(sec.Offset),
			Size: sec.Size,
		}
	}

	for _, l := range f.Loads {
		if ep, ok := l.(*macho.EntryPoint); ok {
			im.entry = textSeg + ep.EntryOffset
		}
	}
	// LC_UNIXTHREAD binaries carry no LC_MAIN; start at the first code byte.
	if im.entry == 0 {
		im.entry = im.text.VA
	}

	var syms []image.Symbol
	if f.Symtab != nil {
		for _, s := range f.Symtab.Syms {
			if s.Type&types.N_TYPE != types.N_SECT {
				continue
			}
			syms = append(syms, image.Symbol{
				Name: s.Name,
				Addr: s.Value,
				Func: im.text.Contains(s.Value),
			})
		}
	}
	im.symtab = image.NewSymbolTable(syms)
	return im, nil
}

func (im *Image) Close() error {
	if im.File != nil {
		im.File.Close()
		im.File = nil
	}
	return im.m.Close()
}

func (im *Image) Path() string                { return im.path }
func (im *Image) Format() image.Format        { return image.FormatMachO }
func (im *Image) Entry() uint64               { return im.entry }
func (im *Image) Bytes() []byte               { return im.m.Bytes() }
func (im *Image) Symbols() *image.SymbolTable { return im.symtab }

func (im *Image) LittleEndian() bool { return im.File.ByteOrder == binary.LittleEndian }

func (im *Image) Arch() image.Arch {
	if a, ok := cpus[uint32(im.File.CPU)]; ok {
		return a
	}
	return image.ArchUnknown
}

func (im *Image) Text() (image.Section, error) {
	if im.text.Size == 0 {
		return image.Section{}, fmt.Errorf("machox: %w: no __TEXT,__text section", image.ErrMalformedBinary)
	}
	return im.text, nil
}

func (im *Image) VAToOffset(va uint64) (uint64, error) {
	for _, s := range im.segs {
		if s.Contains(va) {
			off := s.Off + (va - s.VA)
			if off < uint64(len(im.m.Bytes())) {
				return off, nil
			}
		}
	}
	return 0, fmt.Errorf("machox: %w: va %#x", image.ErrAddressOutOfRange, va)
}

var _ image.Image = (*Image)(nil)
