package cmd

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"x2arm/internal/disasm"
	"x2arm/internal/elfx/elftest"
	"x2arm/internal/image"
	"x2arm/internal/x2arm/config"
)

// resetFlags restores every flag to its default between runs of the shared
// root command.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		c.Flags().VisitAll(reset)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// callThenRet is "call helper; ret; int3 x4; helper: ret" at TextVA.
func callThenRet(t *testing.T) string {
	code := []byte{0xe8, 0x05, 0x00, 0x00, 0x00, 0xc3, 0xcc, 0xcc, 0xcc, 0xcc, 0xc3}
	return elftest.Write(t, code, elftest.Options{Symbols: []elftest.Sym{
		{Name: "_start", Addr: elftest.TextVA, Size: 10},
		{Name: "helper", Addr: elftest.TextVA + 10, Size: 1},
	}})
}

func TestRootText(t *testing.T) {
	path := callThenRet(t)
	stdout, stderr, err := execute(t, "--no-tui", path)
	if err != nil {
		t.Fatalf("execute: %v\nstderr: %s", err, stderr)
	}
	for _, want := range []string{
		"Format:       ELF\n",
		"Architecture: x86-64\n",
		"Endianness:   little\n",
		"Entry point:  0x400100\n",
		"Block @ 0x0000000000400100 <_start> (2 instructions)\n",
		"Block @ 0x000000000040010A <helper> (1 instructions)\n",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	if stderr != "" {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestRootFull(t *testing.T) {
	stdout, _, err := execute(t, "-f", callThenRet(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "e8 05 00 00 00") {
		t.Errorf("--full output lacks bytes:\n%s", stdout)
	}
}

func TestRootJSON(t *testing.T) {
	stdout, _, err := execute(t, "--json", callThenRet(t))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Meta struct {
			Format string `json:"format"`
			Arch   string `json:"arch"`
		} `json:"meta"`
		Stats struct {
			Blocks int `json:"blocks"`
			Edges  int `json:"edges"`
		} `json:"stats"`
		Complete bool `json:"complete"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if doc.Meta.Format != "ELF" || doc.Meta.Arch != "x86-64" {
		t.Errorf("meta = %+v", doc.Meta)
	}
	if doc.Stats.Blocks != 2 || doc.Stats.Edges != 1 || !doc.Complete {
		t.Errorf("stats = %+v, complete = %v", doc.Stats, doc.Complete)
	}
}

func TestRootDOT(t *testing.T) {
	stdout, _, err := execute(t, "--dot", callThenRet(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "digraph cfg {") || !strings.Contains(stdout, "b_400100 -> b_40010a") {
		t.Errorf("DOT output:\n%s", stdout)
	}
}

func TestRootSymbolsRoots(t *testing.T) {
	// ret; orphan: ret. Only --symbols reaches the second block.
	path := elftest.Write(t, []byte{0xc3, 0xc3}, elftest.Options{Symbols: []elftest.Sym{
		{Name: "orphan", Addr: elftest.TextVA + 1, Size: 1},
	}})
	tests := []struct {
		name   string
		args   []string
		blocks int
	}{
		{"entry only", []string{"--json", path}, 1},
		{"with symbols", []string{"--json", "--symbols", path}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			var doc struct {
				Blocks []json.RawMessage `json:"blocks"`
			}
			if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
				t.Fatal(err)
			}
			if len(doc.Blocks) != tt.blocks {
				t.Errorf("blocks = %d, want %d", len(doc.Blocks), tt.blocks)
			}
		})
	}
}

func TestRootUnresolved(t *testing.T) {
	// jmp 0x70000000
	path := elftest.Write(t, []byte{0xe9, 0xfb, 0xfe, 0xbf, 0x6f}, elftest.Options{})
	stdout, stderr, err := execute(t, "-n", path)
	if !errors.Is(err, errUnresolved) {
		t.Fatalf("err = %v, want errUnresolved", err)
	}
	if !strings.Contains(stdout, "Block @ 0x0000000000400100 (1 instructions)") {
		t.Errorf("graph not printed before failing:\n%s", stdout)
	}
	if !strings.Contains(stderr, "unresolved 0x0000000070000000: ") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRootBudget(t *testing.T) {
	_, stderr, err := execute(t, "-n", "--max-blocks", "1", callThenRet(t))
	if !errors.Is(err, errUnresolved) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(stderr, "block budget exhausted") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRootErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	if err := os.WriteFile(garbage, []byte("not an executable"), 0o644); err != nil {
		t.Fatal(err)
	}
	arm := elftest.Write(t, []byte{0xc0, 0x03, 0x5f, 0xd6}, elftest.Options{Machine: elf.EM_AARCH64})

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing file", []string{"-n", filepath.Join(dir, "missing")}, image.ErrIO},
		{"unknown format", []string{"-n", garbage}, image.ErrUnsupportedFormat},
		{"arm64 image", []string{"-n", arm}, image.ErrUnsupportedArch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRootFlagErrors(t *testing.T) {
	path := callThenRet(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"json and dot", []string{"--json", "--dot", path}, "mutually exclusive"},
		{"bad syntax", []string{"-n", "--syntax", "masm", path}, "masm"},
		{"zero workers", []string{"-n", "--workers", "0", path}, "workers"},
		{"no file", []string{"-n"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSyntaxFlagUsage(t *testing.T) {
	usage := rootCmd.Flags().Lookup("syntax").Usage
	for _, s := range disasm.Syntaxes {
		if !strings.Contains(usage, string(s)) {
			t.Errorf("--syntax usage %q does not list %q", usage, s)
		}
	}
}

func TestSettingsPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x2arm.json")
	if err := os.WriteFile(path, []byte(`{"workers": 2, "syntax": "gnu", "output": "dot"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	resetFlags()
	if err := rootCmd.ParseFlags([]string{"--config", path, "--workers", "3"}); err != nil {
		t.Fatal(err)
	}
	c, err := settings(rootCmd)
	if err != nil {
		t.Fatal(err)
	}
	if c.Workers != 3 {
		t.Errorf("Workers = %d, flag should win", c.Workers)
	}
	if c.Syntax != "gnu" || c.Output != config.OutputDOT {
		t.Errorf("config file values lost: %+v", c)
	}
	if c.MaxBlocks != config.Default().MaxBlocks {
		t.Errorf("MaxBlocks = %d, want default", c.MaxBlocks)
	}
}

func TestRootParallel(t *testing.T) {
	path := callThenRet(t)
	seq, _, err := execute(t, "--json", path)
	if err != nil {
		t.Fatal(err)
	}
	par, _, err := execute(t, "--json", "--workers", "4", path)
	if err != nil {
		t.Fatal(err)
	}
	if seq != par {
		t.Errorf("parallel listing differs:\n%s\nvs\n%s", seq, par)
	}
}

func TestInfo(t *testing.T) {
	path := callThenRet(t)
	stdout, _, err := execute(t, "info", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Architecture: x86-64") || strings.Contains(stdout, "Block @") {
		t.Errorf("info output:\n%s", stdout)
	}

	stdout, _, err = execute(t, "info", "--json", path)
	if err != nil {
		t.Fatal(err)
	}
	var m struct {
		Entry   uint64 `json:"entry"`
		Symbols int    `json:"symbols"`
	}
	if err := json.Unmarshal([]byte(stdout), &m); err != nil {
		t.Fatal(err)
	}
	if m.Entry != elftest.TextVA || m.Symbols != 2 {
		t.Errorf("info --json = %+v", m)
	}
}

func TestSchemaCommand(t *testing.T) {
	stdout, _, err := execute(t, "schema")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, `"maxBlocks"`) || !strings.Contains(stdout, `"workers"`) {
		t.Errorf("schema output:\n%s", stdout)
	}
}
