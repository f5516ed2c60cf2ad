package render

import (
	"fmt"
	"io"
	"strings"

	"x2arm/internal/cfg"
	"x2arm/internal/disasm"
	"x2arm/internal/image"
)

// Theme holds colors for DOT output.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string
	RootBorder string
	FailedFill string
	EdgeJump   string
	EdgeCall   string
}

var Light = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",
	RootBorder: "#0B3D91",
	FailedFill: "#FDE0DC",
	EdgeJump:   "#424242",
	EdgeCall:   "#00695C",
}

type DOTOptions struct {
	Theme    Theme
	Symbols  *image.SymbolTable
	MaxLines int // instructions shown per node before eliding; 0 shows all
}

// DOT writes the reachable blocks as a Graphviz digraph, one node per block.
func DOT(w io.Writer, g *cfg.Graph, opts DOTOptions) error {
	t := opts.Theme
	if t == (Theme{}) {
		t = Light
	}
	roots := make(map[cfg.Handle]bool, len(g.Roots))
	for _, h := range g.Roots {
		roots[h] = true
	}

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	b.WriteString("  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee, fontsize=7];\n\n")

	var edges strings.Builder
	err := g.WalkAll(func(blk *cfg.Block) error {
		id := fmt.Sprintf("b_%x", blk.Addr)

		title := fmt.Sprintf("0x%x", blk.Addr)
		if sym := symbolName(opts.Symbols, blk.Addr); sym != "" {
			title += " &lt;" + dotEscape(sym) + "&gt;"
		}
		lines := []string{"<b>" + title + "</b>"}
		for i, in := range blk.Insts {
			if opts.MaxLines > 0 && i == opts.MaxLines && len(blk.Insts) > opts.MaxLines+1 {
				lines = append(lines, fmt.Sprintf("... (%d more)", len(blk.Insts)-i-1))
				last := blk.Insts[len(blk.Insts)-1]
				lines = append(lines, dotEscape(fmt.Sprintf("0x%x: %s", last.VA, last.Text)))
				break
			}
			lines = append(lines, dotEscape(fmt.Sprintf("0x%x: %s", in.VA, in.Text)))
		}
		failed := blk.Err != nil || blk.State() != cfg.Done
		if failed {
			reason := blk.State().String()
			if blk.Err != nil {
				reason = blk.Err.Error()
			}
			lines = append(lines, "<i>"+dotEscape(reason)+"</i>")
		}
		label := strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"

		attrs := ""
		if roots[blk.Handle] {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.RootBorder)
		}
		if failed {
			attrs += fmt.Sprintf(", fillcolor=%q, style=\"filled,dashed\"", t.FailedFill)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, label, attrs)

		for _, e := range blk.Succs {
			to := fmt.Sprintf("b_%x", g.Block(e.To).Addr)
			switch e.Kind {
			case disasm.KindCall:
				fmt.Fprintf(&edges, "  %s -> %s [label=\"call\", color=%q, style=dashed];\n", id, to, t.EdgeCall)
			default:
				fmt.Fprintf(&edges, "  %s -> %s [label=\"jmp\", color=%q];\n", id, to, t.EdgeJump)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.WriteByte('\n')
	b.WriteString(edges.String())
	b.WriteString("}\n")
	_, err = io.WriteString(w, b.String())
	return err
}

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
