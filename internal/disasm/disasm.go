// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers.
package disasm

import (
	"fmt"
	"iter"
	"strings"

	"x2arm/internal/image"
)

// Kind is the control-flow class of an instruction.
type Kind uint8

const (
	KindOrdinary Kind = iota
	KindJump          // unconditional direct jump
	KindCall          // direct near call
	KindReturn
	KindTrap
	KindInvalid
)

var kindNames = [...]string{
	KindOrdinary: "ordinary",
	KindJump:     "jump",
	KindCall:     "call",
	KindReturn:   "return",
	KindTrap:     "trap",
	KindInvalid:  "invalid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Terminates reports whether decoding of the current block stops after an
// instruction of this kind.
func (k Kind) Terminates() bool {
	switch k {
	case KindJump, KindReturn, KindTrap, KindInvalid:
		return true
	}
	return false
}

// Inst is a decoded instruction.
type Inst struct {
	VA     uint64 // virtual address of instruction
	Len    int    // encoded length in bytes
	Kind   Kind
	Target uint64 // absolute branch target, only for KindJump and KindCall
	Op     string // mnemonic in lowercase
	Text   string // formatted disassembly string
	Raw    []byte // encoding, a sub-slice of the decoded window
}

// End returns the address just past the instruction.
func (i Inst) End() uint64 { return i.VA + uint64(i.Len) }

// Stream is a linear sequence of instructions.
type Stream []Inst

// Decoder turns a byte window starting at pc into instructions. The sequence
// ends when the window is consumed or the consumer stops.
type Decoder interface {
	Instructions(window []byte, pc uint64) iter.Seq[Inst]
}

// Syntax selects the assembly dialect used for Inst.Text.
type Syntax string

const (
	SyntaxIntel Syntax = "intel"
	SyntaxGNU   Syntax = "gnu"
	SyntaxGo    Syntax = "go"
)

// Syntaxes lists the accepted dialect names.
var Syntaxes = []Syntax{SyntaxIntel, SyntaxGNU, SyntaxGo}

// ParseSyntax accepts a dialect name; "att" is an alias for gnu and the
// empty string selects intel.
func ParseSyntax(s string) (Syntax, error) {
	switch strings.ToLower(s) {
	case "", "intel":
		return SyntaxIntel, nil
	case "gnu", "att":
		return SyntaxGNU, nil
	case "go", "plan9":
		return SyntaxGo, nil
	}
	return "", fmt.Errorf("unknown syntax %q (want %s)", s, syntaxList())
}

// syntaxList joins Syntaxes for messages.
func syntaxList() string {
	names := make([]string, len(Syntaxes))
	for i, s := range Syntaxes {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// ForArch returns the decoder for arch.
func ForArch(arch image.Arch, syntax Syntax) (*X86, error) {
	switch arch {
	case image.ArchX86_64, image.ArchX86_32:
		return NewX86(arch.Bits(), syntax), nil
	}
	return nil, fmt.Errorf("disasm: %w: %s", image.ErrUnsupportedArch, arch)
}

// Collect decodes the whole window.
func Collect(d Decoder, window []byte, pc uint64) Stream {
	var s Stream
	for in := range d.Instructions(window, pc) {
		s = append(s, in)
	}
	return s
}
