// Package elftest builds small ELF64 executables for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	Base       = 0x400000
	TextOffset = 0x100
	TextVA     = Base + TextOffset
)

// Sym is a function symbol placed in .symtab.
type Sym struct {
	Name string
	Addr uint64
	Size uint64
}

type Options struct {
	Machine elf.Machine // default EM_X86_64
	Entry   uint64      // default TextVA
	NoText  bool        // omit the .text section header
	NoExec  bool        // map the load segment without PF_X
	Symbols []Sym
}

// Build returns an ELF image with code at TextVA, covered by a single
// PT_LOAD segment that maps the whole file at Base.
func Build(code []byte, opts Options) []byte {
	if opts.Machine == 0 {
		opts.Machine = elf.EM_X86_64
	}
	if opts.Entry == 0 {
		opts.Entry = TextVA
	}

	var shstr, str bytes.Buffer
	shstr.WriteByte(0)
	str.WriteByte(0)
	addName := func(b *bytes.Buffer, s string) uint32 {
		off := uint32(b.Len())
		b.WriteString(s)
		b.WriteByte(0)
		return off
	}

	body := make([]byte, TextOffset, TextOffset+len(code)+256)
	body = append(body, code...)
	align := func(n int) {
		for len(body)%n != 0 {
			body = append(body, 0)
		}
	}

	shdrs := []elf.Section64{{}}
	textIdx := uint16(0)
	if !opts.NoText {
		textIdx = uint16(len(shdrs))
		shdrs = append(shdrs, elf.Section64{
			Name:      addName(&shstr, ".text"),
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:      TextVA,
			Off:       TextOffset,
			Size:      uint64(len(code)),
			Addralign: 16,
		})
	}

	if len(opts.Symbols) > 0 {
		align(8)
		var syms bytes.Buffer
		binary.Write(&syms, binary.LittleEndian, elf.Sym64{})
		for _, s := range opts.Symbols {
			binary.Write(&syms, binary.LittleEndian, elf.Sym64{
				Name:  addName(&str, s.Name),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
				Shndx: textIdx,
				Value: s.Addr,
				Size:  s.Size,
			})
		}
		symtabOff := len(body)
		body = append(body, syms.Bytes()...)
		strtabOff := len(body)
		body = append(body, str.Bytes()...)

		symIdx := len(shdrs)
		shdrs = append(shdrs,
			elf.Section64{
				Name:      addName(&shstr, ".symtab"),
				Type:      uint32(elf.SHT_SYMTAB),
				Off:       uint64(symtabOff),
				Size:      uint64(syms.Len()),
				Link:      uint32(symIdx + 1),
				Info:      1,
				Addralign: 8,
				Entsize:   elf.Sym64Size,
			},
			elf.Section64{
				Name:      addName(&shstr, ".strtab"),
				Type:      uint32(elf.SHT_STRTAB),
				Off:       uint64(strtabOff),
				Size:      uint64(str.Len()),
				Addralign: 1,
			})
	}

	shstrIdx := len(shdrs)
	shstrName := addName(&shstr, ".shstrtab")
	shstrOff := len(body)
	body = append(body, shstr.Bytes()...)
	shdrs = append(shdrs, elf.Section64{
		Name:      shstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       uint64(shstrOff),
		Size:      uint64(shstr.Len()),
		Addralign: 1,
	})

	align(8)
	shoff := len(body)
	fileSize := shoff + len(shdrs)*64

	flags := elf.PF_R | elf.PF_X
	if opts.NoExec {
		flags = elf.PF_R
	}

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(opts.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     opts.Entry,
		Phoff:     64,
		Shoff:     uint64(shoff),
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     uint16(len(shdrs)),
		Shstrndx:  uint16(shstrIdx),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&out, binary.LittleEndian, hdr)
	binary.Write(&out, binary.LittleEndian, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(flags),
		Off:    0,
		Vaddr:  Base,
		Paddr:  Base,
		Filesz: uint64(fileSize),
		Memsz:  uint64(fileSize),
		Align:  0x1000,
	})

	// Header and program header live inside the zeroed prefix of body.
	copy(body, out.Bytes())
	for _, sh := range shdrs {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, sh)
		body = append(body, b.Bytes()...)
	}
	return body
}

// Write builds an image and stores it in a temporary file, returning its path.
func Write(t testing.TB, code []byte, opts Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, Build(code, opts), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
