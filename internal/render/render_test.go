package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"x2arm/internal/cfg"
	"x2arm/internal/disasm"
	"x2arm/internal/elfx"
	"x2arm/internal/elfx/elftest"
	"x2arm/internal/image"
)

type flat struct {
	base uint64
	size uint64
}

func (f flat) VAToOffset(va uint64) (uint64, error) {
	if va < f.base || va >= f.base+f.size {
		return 0, fmt.Errorf("%w: va %#x", image.ErrAddressOutOfRange, va)
	}
	return va - f.base, nil
}

// graph explores code loaded at 0x1000.
func graph(t *testing.T, code []byte) *cfg.Graph {
	t.Helper()
	b := cfg.NewBuilder(flat{0x1000, uint64(len(code))}, code, disasm.NewX86(64, disasm.SyntaxIntel), cfg.Options{})
	g, err := b.Explore(context.Background(), 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// jmp 0x1010; int3 padding; ret at 0x1010.
func jumpThenRet() []byte {
	code := bytes.Repeat([]byte{0xcc}, 0x11)
	copy(code, []byte{0xe9, 0x0b, 0x00, 0x00, 0x00})
	code[0x10] = 0xc3
	return code
}

func TestText(t *testing.T) {
	g := graph(t, jumpThenRet())
	syms := image.NewSymbolTable([]image.Symbol{{Name: "_start", Addr: 0x1000, Func: true}})

	var buf bytes.Buffer
	if err := Text(&buf, g, TextOptions{Symbols: syms}); err != nil {
		t.Fatal(err)
	}
	want := "Block @ 0x0000000000001000 <_start> (1 instructions)\n" +
		"  0x0000000000001000: jmp 0x1010\n" +
		"\n" +
		"Block @ 0x0000000000001010 (1 instructions)\n" +
		"  0x0000000000001010: ret\n"
	if buf.String() != want {
		t.Errorf("Text output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTextFull(t *testing.T) {
	g := graph(t, jumpThenRet())
	var buf bytes.Buffer
	if err := Text(&buf, g, TextOptions{Full: true}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"e9 0b 00 00 00", "c3"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing bytes %q in:\n%s", want, buf.String())
		}
	}
}

func TestTextColor(t *testing.T) {
	t.Setenv("X2ARM_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")
	g := graph(t, jumpThenRet())
	var buf bytes.Buffer
	if err := Text(&buf, g, TextOptions{Color: true, Syntax: "intel"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("colored output has no escape sequences")
	}
}

func TestTextUnresolved(t *testing.T) {
	// call 0x70000000; ret
	code := []byte{0xe8, 0xfb, 0xef, 0xff, 0x6f, 0xc3}
	g := graph(t, code)
	if g.Complete() {
		t.Fatal("expected an unresolved target")
	}

	var buf bytes.Buffer
	if err := Text(&buf, g, TextOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Block @ 0x0000000070000000 (0 instructions)\n  ; done: address out of range") {
		t.Errorf("failed block not annotated:\n%s", out)
	}

	buf.Reset()
	if err := WriteUnresolved(&buf, g); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "unresolved 0x0000000070000000: ") {
		t.Errorf("WriteUnresolved = %q", buf.String())
	}
}

func TestJSON(t *testing.T) {
	g := graph(t, jumpThenRet())
	var buf bytes.Buffer
	if err := JSON(&buf, g, JSONOptions{Full: true}); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Roots  []string `json:"roots"`
		Stats  cfg.Stats
		Blocks []struct {
			Addr  string `json:"addr"`
			State string `json:"state"`
			Insts []struct {
				Kind   string `json:"kind"`
				Bytes  string `json:"bytes"`
				Target string `json:"target"`
			} `json:"insts"`
			Succs []struct {
				To   string `json:"to"`
				Kind string `json:"kind"`
			} `json:"succs"`
		} `json:"blocks"`
		Complete bool `json:"complete"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if len(doc.Roots) != 1 || doc.Roots[0] != "0x1000" || !doc.Complete {
		t.Errorf("roots = %v, complete = %v", doc.Roots, doc.Complete)
	}
	if doc.Stats.Blocks != 2 || doc.Stats.Edges != 1 {
		t.Errorf("stats = %+v", doc.Stats)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(doc.Blocks))
	}
	b0 := doc.Blocks[0]
	if b0.Addr != "0x1000" || b0.State != "done" || len(b0.Succs) != 1 || b0.Succs[0].To != "0x1010" || b0.Succs[0].Kind != "jump" {
		t.Errorf("block 0 = %+v", b0)
	}
	if in := b0.Insts[0]; in.Kind != "jump" || in.Bytes != "e90b000000" || in.Target != "0x1010" {
		t.Errorf("inst = %+v", in)
	}
}

func TestJSONZeroTarget(t *testing.T) {
	// jmp 0 at address 0 loops on itself.
	code := []byte{0xe9, 0xfb, 0xff, 0xff, 0xff}
	b := cfg.NewBuilder(flat{0, uint64(len(code))}, code, disasm.NewX86(64, disasm.SyntaxIntel), cfg.Options{})
	g, err := b.Explore(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := JSON(&buf, g, JSONOptions{}); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Blocks []struct {
			Insts []struct {
				Kind   string  `json:"kind"`
				Target *string `json:"target"`
			} `json:"insts"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(doc.Blocks) != 1 || len(doc.Blocks[0].Insts) != 1 {
		t.Fatalf("unexpected document:\n%s", buf.String())
	}
	in := doc.Blocks[0].Insts[0]
	if in.Kind != "jump" || in.Target == nil || *in.Target != "0x0" {
		t.Errorf("inst = %+v", in)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrors(t *testing.T) {
	g := graph(t, jumpThenRet())
	tests := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"text", func(w io.Writer) error { return Text(w, g, TextOptions{}) }},
		{"json", func(w io.Writer) error { return JSON(w, g, JSONOptions{}) }},
		{"dot", func(w io.Writer) error { return DOT(w, g, DOTOptions{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.write(failingWriter{}); err == nil || !strings.Contains(err.Error(), "disk full") {
				t.Errorf("err = %v, want disk full", err)
			}
		})
	}
}

func TestDOT(t *testing.T) {
	// call 0x1010; jmp 0x1010; padding; ret
	code := bytes.Repeat([]byte{0xcc}, 0x11)
	copy(code, []byte{0xe8, 0x0b, 0x00, 0x00, 0x00, 0xe9, 0x06, 0x00, 0x00, 0x00})
	code[0x10] = 0xc3
	g := graph(t, code)

	var buf bytes.Buffer
	if err := DOT(&buf, g, DOTOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"digraph cfg {",
		"b_1000 [label=<<b>0x1000</b>",
		"b_1000 -> b_1010 [label=\"call\"",
		"b_1000 -> b_1010 [label=\"jmp\"",
		"penwidth=1.5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n  b_1010 [label=<") != 1 {
		t.Errorf("block 0x1010 should appear once:\n%s", out)
	}
}

func TestSymbolName(t *testing.T) {
	syms := image.NewSymbolTable([]image.Symbol{
		{Name: "_ZN3foo3barEv", Addr: 0x10, Func: true},
		{Name: "__ZN3baz3quxEv", Addr: 0x20, Func: true},
		{Name: "puts@plt", Addr: 0x30, Func: true},
	})
	tests := []struct {
		addr uint64
		want string
	}{
		{0x10, "foo::bar()"},
		{0x20, "baz::qux()"},
		{0x30, "puts@plt"},
		{0x40, ""},
	}
	for _, tt := range tests {
		if got := symbolName(syms, tt.addr); got != tt.want {
			t.Errorf("symbolName(%#x) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestMeta(t *testing.T) {
	im, err := elfx.Open(elftest.Write(t, []byte{0xc3}, elftest.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()

	m, err := MetaOf(im)
	if err != nil {
		t.Fatal(err)
	}
	if m.Format != "ELF" || m.Arch != "x86-64" || m.Endianness() != "little" || m.Entry != elftest.TextVA {
		t.Errorf("meta = %+v", m)
	}

	var buf bytes.Buffer
	if err := WriteMeta(&buf, m); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Architecture: x86-64\n") || !strings.Contains(buf.String(), "Entry point:  0x400100\n") {
		t.Errorf("WriteMeta:\n%s", buf.String())
	}
	if md := Markdown(m); !strings.Contains(md, "| Architecture | x86-64 |") {
		t.Errorf("Markdown:\n%s", md)
	}
}
