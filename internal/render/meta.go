// Package render prints recovered control-flow graphs as text listings,
// JSON documents and Graphviz DOT.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"x2arm/internal/image"
)

// Meta is the file metadata printed ahead of a listing.
type Meta struct {
	Path         string        `json:"path"`
	Format       string        `json:"format"`
	Arch         string        `json:"arch"`
	LittleEndian bool          `json:"little_endian"`
	Entry        uint64        `json:"entry"`
	Text         image.Section `json:"text"`
	Symbols      int           `json:"symbols"`
}

// MetaOf collects metadata from im. It fails when the image has no code.
func MetaOf(im image.Image) (Meta, error) {
	text, err := im.Text()
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		Path:         im.Path(),
		Format:       im.Format().String(),
		Arch:         im.Arch().String(),
		LittleEndian: im.LittleEndian(),
		Entry:        im.Entry(),
		Text:         text,
		Symbols:      im.Symbols().Len(),
	}, nil
}

func (m Meta) Endianness() string {
	if m.LittleEndian {
		return "little"
	}
	return "big"
}

// WriteMeta prints m as aligned "key: value" lines.
func WriteMeta(w io.Writer, m Meta) error {
	_, err := fmt.Fprintf(w,
		"File:         %s\nFormat:       %s\nArchitecture: %s\nEndianness:   %s\nEntry point:  %#x\nText:         %s %#x-%#x (%d bytes)\n",
		m.Path, m.Format, m.Arch, m.Endianness(), m.Entry,
		m.Text.Name, m.Text.VA, m.Text.VA+m.Text.Size, m.Text.Size)
	return err
}

// Markdown renders m as a markdown table for glamour.
func Markdown(m Meta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Path)
	b.WriteString("| Property | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Format | %s |\n", m.Format)
	fmt.Fprintf(&b, "| Architecture | %s |\n", m.Arch)
	fmt.Fprintf(&b, "| Endianness | %s |\n", m.Endianness())
	fmt.Fprintf(&b, "| Entry point | `%#x` |\n", m.Entry)
	fmt.Fprintf(&b, "| Text section | `%s` `%#x`-`%#x` (%d bytes) |\n", m.Text.Name, m.Text.VA, m.Text.VA+m.Text.Size, m.Text.Size)
	fmt.Fprintf(&b, "| Symbols | %d |\n", m.Symbols)
	return b.String()
}

// symbolName returns the demangled symbol starting at addr.
func symbolName(syms *image.SymbolTable, addr uint64) string {
	s, ok := syms.Lookup(addr)
	if !ok {
		return ""
	}
	// Mach-O prefixes C and C++ names with an extra underscore.
	name := s.Name
	if strings.HasPrefix(name, "__Z") {
		name = name[1:]
	}
	return demangle.Filter(name)
}
