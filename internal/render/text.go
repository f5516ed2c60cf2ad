package render

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"x2arm/internal/cfg"
	"x2arm/internal/image"
	"x2arm/internal/ui/colorize"
)

// bytesWidth fits eight encoded bytes; longer encodings push the text right.
const bytesWidth = 8*3 - 1

type TextOptions struct {
	Full    bool   // show encoded bytes
	Color   bool   // ANSI styling
	Syntax  string // dialect name, used to pick a highlighter
	Symbols *image.SymbolTable
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	symStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bytesStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Text writes every block reachable from the graph's roots, in walk order.
func Text(w io.Writer, g *cfg.Graph, opts TextOptions) error {
	bw := bufio.NewWriter(w)
	reasons := unresolvedReasons(g)
	first := true
	err := g.WalkAll(func(b *cfg.Block) error {
		if !first {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		first = false
		_, err := bw.WriteString(BlockText(b, reasons[b.Addr], opts))
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// BlockText formats one block: a header line, then one line per instruction.
// reason explains why the block is incomplete and may be nil.
func BlockText(b *cfg.Block, reason error, opts TextOptions) string {
	var sb strings.Builder

	header := fmt.Sprintf("Block @ 0x%016X", b.Addr)
	sym := symbolName(opts.Symbols, b.Addr)
	count := fmt.Sprintf(" (%d instructions)", len(b.Insts))
	if opts.Color {
		sb.WriteString(headerStyle.Render(header))
		if sym != "" {
			sb.WriteString(" " + symStyle.Render("<"+sym+">"))
		}
		sb.WriteString(headerStyle.Render(count))
	} else {
		sb.WriteString(header)
		if sym != "" {
			sb.WriteString(" <" + sym + ">")
		}
		sb.WriteString(count)
	}
	sb.WriteByte('\n')

	for _, in := range b.Insts {
		addr := fmt.Sprintf("0x%016X:", in.VA)
		text := in.Text
		if opts.Color {
			addr = colorize.Address(addr)
			text = colorize.Instruction(text, opts.Syntax)
		}
		sb.WriteString("  " + addr + " ")
		if opts.Full {
			raw := fmt.Sprintf("%-*s", bytesWidth, spacedHex(in.Raw))
			if opts.Color {
				raw = bytesStyle.Render(raw)
			}
			sb.WriteString(raw + " ")
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	if reason == nil {
		reason = b.Err
	}
	if reason != nil || b.State() != cfg.Done {
		line := "  ; " + b.State().String()
		if reason != nil {
			line += ": " + reason.Error()
		}
		if opts.Color {
			line = errStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// WriteUnresolved lists every unresolved address with its reason.
func WriteUnresolved(w io.Writer, g *cfg.Graph) error {
	for _, u := range g.Unresolved {
		if _, err := fmt.Fprintf(w, "unresolved 0x%016X: %v\n", u.Addr, u.Err); err != nil {
			return err
		}
	}
	return nil
}

func unresolvedReasons(g *cfg.Graph) map[uint64]error {
	m := make(map[uint64]error, len(g.Unresolved))
	for _, u := range g.Unresolved {
		m[u.Addr] = u.Err
	}
	return m
}

// spacedHex formats b as "48 89 e5".
func spacedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s := hex.EncodeToString(b)
	var sb strings.Builder
	sb.Grow(len(s) + len(b))
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s[i : i+2])
	}
	return sb.String()
}
