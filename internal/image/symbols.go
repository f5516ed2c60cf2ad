package image

import (
	"cmp"
	"slices"
)

// Symbol is a named address taken from the image's symbol tables.
type Symbol struct {
	Name  string
	Addr  uint64
	Size  uint64
	Func  bool // symbol is known to be code
	IsPLT bool // synthesised name for a PLT/stub entry
}

// SymbolTable is an address-sorted set of symbols with at most one entry per
// address. The zero value and a nil *SymbolTable are empty tables.
type SymbolTable struct {
	syms []Symbol
}

// NewSymbolTable sorts syms by address and drops unnamed and zero-address
// entries. When several symbols share an address, the first code symbol wins,
// then the first one seen.
func NewSymbolTable(syms []Symbol) *SymbolTable {
	out := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" || s.Addr == 0 {
			continue
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Symbol) int {
		if c := cmp.Compare(a.Addr, b.Addr); c != 0 {
			return c
		}
		// Code symbols sort first so Compact keeps them.
		switch {
		case a.Func && !b.Func:
			return -1
		case !a.Func && b.Func:
			return 1
		}
		return 0
	})
	out = slices.CompactFunc(out, func(a, b Symbol) bool { return a.Addr == b.Addr })
	return &SymbolTable{syms: out}
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.syms)
}

// All returns the symbols in address order. The slice must not be modified.
func (t *SymbolTable) All() []Symbol {
	if t == nil {
		return nil
	}
	return t.syms
}

// Lookup returns the symbol starting exactly at addr.
func (t *SymbolTable) Lookup(addr uint64) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	i, ok := slices.BinarySearchFunc(t.syms, addr, func(s Symbol, a uint64) int {
		return cmp.Compare(s.Addr, a)
	})
	if !ok {
		return Symbol{}, false
	}
	return t.syms[i], true
}

// Functions returns the code symbols that start inside sec.
func (t *SymbolTable) Functions(sec Section) []Symbol {
	var out []Symbol
	for _, s := range t.All() {
		if s.Func && sec.Contains(s.Addr) {
			out = append(out, s)
		}
	}
	return out
}
