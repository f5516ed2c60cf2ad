package disasm

import (
	"iter"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"x2arm/internal/image"
)

// X86 decodes 16, 32 or 64-bit x86 code with x86asm.
type X86 struct {
	bits   int
	syntax Syntax
	symtab *image.SymbolTable
}

// NewX86 returns a decoder for the given operand mode.
func NewX86(bits int, syntax Syntax) *X86 {
	if syntax == "" {
		syntax = SyntaxIntel
	}
	return &X86{bits: bits, syntax: syntax}
}

// WithSymbols makes formatted branch operands show symbol names.
func (d *X86) WithSymbols(t *image.SymbolTable) *X86 {
	d.symtab = t
	return d
}

func (d *X86) Bits() int { return d.bits }

func (d *X86) Instructions(window []byte, pc uint64) iter.Seq[Inst] {
	return func(yield func(Inst) bool) {
		for len(window) > 0 {
			in := d.Decode(window, pc)
			if !yield(in) {
				return
			}
			window = window[in.Len:]
			pc += uint64(in.Len)
		}
	}
}

// Decode decodes the single instruction at the start of window. Bytes that
// do not form a complete instruction yield a one-byte KindInvalid.
func (d *X86) Decode(window []byte, pc uint64) Inst {
	inst, err := x86asm.Decode(window, d.bits)
	if err != nil || inst.Len == 0 || inst.Op == 0 {
		n := min(1, len(window))
		return Inst{VA: pc, Len: n, Kind: KindInvalid, Op: "(bad)", Text: "(bad)", Raw: window[:n:n]}
	}

	out := Inst{
		VA:   pc,
		Len:  inst.Len,
		Op:   strings.ToLower(inst.Op.String()),
		Text: d.format(inst, pc),
		Raw:  window[:inst.Len:inst.Len],
	}
	out.Kind, out.Target = d.classify(inst, pc)
	return out
}

func (d *X86) classify(inst x86asm.Inst, pc uint64) (Kind, uint64) {
	switch inst.Op {
	case x86asm.JMP, x86asm.CALL:
		rel, ok := inst.Args[0].(x86asm.Rel)
		if !ok {
			// Indirect through a register or memory operand.
			return KindOrdinary, 0
		}
		target := d.wrap(uint64(int64(pc) + int64(inst.Len) + int64(rel)))
		if inst.Op == x86asm.JMP {
			return KindJump, target
		}
		return KindCall, target
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return KindReturn, 0
	case x86asm.UD0, x86asm.UD1, x86asm.UD2, x86asm.HLT:
		return KindTrap, 0
	case x86asm.INT:
		if imm, ok := inst.Args[0].(x86asm.Imm); ok && imm == 3 {
			return KindTrap, 0
		}
	}
	return KindOrdinary, 0
}

// wrap truncates a computed target to the address width.
func (d *X86) wrap(addr uint64) uint64 {
	if d.bits < 64 {
		return addr & (1<<d.bits - 1)
	}
	return addr
}

func (d *X86) format(inst x86asm.Inst, pc uint64) string {
	var sym x86asm.SymLookup
	if d.symtab.Len() > 0 {
		sym = d.lookup
	}
	switch d.syntax {
	case SyntaxGNU:
		return x86asm.GNUSyntax(inst, pc, sym)
	case SyntaxGo:
		return x86asm.GoSyntax(inst, pc, sym)
	}
	return x86asm.IntelSyntax(inst, pc, sym)
}

func (d *X86) lookup(addr uint64) (string, uint64) {
	if s, ok := d.symtab.Lookup(addr); ok {
		return s.Name, s.Addr
	}
	return "", 0
}

var _ Decoder = (*X86)(nil)
