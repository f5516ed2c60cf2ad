package elfx

import (
	"debug/elf"

	"x2arm/internal/image"
)

// x86 PLT entries are 16 bytes; .plt slot 0 is the resolver.
const pltEntrySize = 16

// PLTRel is one jump-slot relocation from .rela.plt or .rel.plt.
type PLTRel struct {
	Offset   uint64 // GOT slot
	SymIndex uint32
	SymName  string
	PLTAddr  uint64
}

// parsePLTRelocations maps each jump-slot relocation to its stub address.
func (im *Image) parsePLTRelocations() {
	sec := im.File.Section(".rela.plt")
	if sec == nil {
		sec = im.File.Section(".rel.plt")
	}
	if sec == nil {
		return
	}
	data, err := sec.Data()
	if err != nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	bo := im.File.ByteOrder
	is64 := im.File.Class == elf.ELFCLASS64
	rela := sec.Type == elf.SHT_RELA

	var entrySize int
	switch {
	case is64 && rela:
		entrySize = 24
	case is64:
		entrySize = 16
	case rela:
		entrySize = 12
	default:
		entrySize = 8
	}

	for i := 0; i+entrySize <= len(data); i += entrySize {
		var off uint64
		var symIndex uint32
		if is64 {
			off = bo.Uint64(data[i:])
			symIndex = uint32(bo.Uint64(data[i+8:]) >> 32)
		} else {
			off = uint64(bo.Uint32(data[i:]))
			symIndex = bo.Uint32(data[i+4:]) >> 8
		}

		var name string
		if symIndex > 0 && int(symIndex) <= len(dynsyms) {
			name = dynsyms[symIndex-1].Name
		}
		im.PLTRels = append(im.PLTRels, PLTRel{
			Offset:   off,
			SymIndex: symIndex,
			SymName:  name,
			PLTAddr:  im.stubAddr(len(im.PLTRels)),
		})
	}
}

// stubAddr returns the address of the n-th PLT stub, preferring .plt.sec
// (IBT layouts) over the lazy .plt.
func (im *Image) stubAddr(n int) uint64 {
	switch {
	case im.PLTSec.Size > 0:
		a := im.PLTSec.VA + uint64(n)*pltEntrySize
		if a < im.PLTSec.VA+im.PLTSec.Size {
			return a
		}
	case im.PLT.Size > 0:
		a := im.PLT.VA + uint64(n+1)*pltEntrySize
		if a < im.PLT.VA+im.PLT.Size {
			return a
		}
	}
	return 0
}

func (im *Image) pltSymbols() []image.Symbol {
	var out []image.Symbol
	for _, r := range im.PLTRels {
		if r.PLTAddr == 0 || r.SymName == "" {
			continue
		}
		out = append(out, image.Symbol{
			Name:  r.SymName + "@plt",
			Addr:  r.PLTAddr,
			Size:  pltEntrySize,
			Func:  true,
			IsPLT: true,
		})
	}
	return out
}
