package render

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"x2arm/internal/cfg"
	"x2arm/internal/disasm"
	"x2arm/internal/image"
)

type jsonDoc struct {
	Meta       *Meta            `json:"meta,omitempty"`
	Roots      []string         `json:"roots"`
	Stats      cfg.Stats        `json:"stats"`
	Complete   bool             `json:"complete"`
	Blocks     []jsonBlock      `json:"blocks"`
	Unresolved []jsonUnresolved `json:"unresolved"`
}

type jsonBlock struct {
	Addr   string     `json:"addr"`
	Symbol string     `json:"symbol,omitempty"`
	State  string     `json:"state"`
	Error  string     `json:"error,omitempty"`
	Size   uint64     `json:"size"`
	Insts  []jsonInst `json:"insts"`
	Succs  []jsonEdge `json:"succs"`
}

type jsonInst struct {
	Addr   string `json:"addr"`
	Len    int    `json:"len"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Bytes  string `json:"bytes,omitempty"`
	Target string `json:"target,omitempty"`
}

type jsonEdge struct {
	To   string `json:"to"`
	Kind string `json:"kind"`
	Site string `json:"site"`
}

type jsonUnresolved struct {
	Addr  string `json:"addr"`
	Error string `json:"error"`
}

type JSONOptions struct {
	Meta    *Meta
	Full    bool // include encoded bytes
	Symbols *image.SymbolTable
}

func hexAddr(a uint64) string { return fmt.Sprintf("%#x", a) }

// JSON writes the reachable blocks in walk order as one indented document.
func JSON(w io.Writer, g *cfg.Graph, opts JSONOptions) error {
	doc := jsonDoc{
		Meta:       opts.Meta,
		Stats:      g.Stats(),
		Complete:   g.Complete(),
		Blocks:     []jsonBlock{},
		Unresolved: []jsonUnresolved{},
	}
	for _, h := range g.Roots {
		doc.Roots = append(doc.Roots, hexAddr(g.Block(h).Addr))
	}

	err := g.WalkAll(func(b *cfg.Block) error {
		jb := jsonBlock{
			Addr:   hexAddr(b.Addr),
			Symbol: symbolName(opts.Symbols, b.Addr),
			State:  b.State().String(),
			Size:   b.Size(),
			Insts:  make([]jsonInst, 0, len(b.Insts)),
			Succs:  make([]jsonEdge, 0, len(b.Succs)),
		}
		if b.Err != nil {
			jb.Error = b.Err.Error()
		}
		for _, in := range b.Insts {
			ji := jsonInst{
				Addr: hexAddr(in.VA),
				Len:  in.Len,
				Kind: in.Kind.String(),
				Text: in.Text,
			}
			if opts.Full {
				ji.Bytes = hex.EncodeToString(in.Raw)
			}
			if in.Kind == disasm.KindJump || in.Kind == disasm.KindCall {
				ji.Target = hexAddr(in.Target)
			}
			jb.Insts = append(jb.Insts, ji)
		}
		for _, e := range b.Succs {
			jb.Succs = append(jb.Succs, jsonEdge{
				To:   hexAddr(g.Block(e.To).Addr),
				Kind: e.Kind.String(),
				Site: hexAddr(e.Site),
			})
		}
		doc.Blocks = append(doc.Blocks, jb)
		return nil
	})
	if err != nil {
		return err
	}

	for _, u := range g.Unresolved {
		doc.Unresolved = append(doc.Unresolved, jsonUnresolved{Addr: hexAddr(u.Addr), Error: u.Err.Error()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
