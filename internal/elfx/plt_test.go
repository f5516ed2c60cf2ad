package elfx

import (
	"testing"

	"x2arm/internal/image"
)

func TestStubAddr(t *testing.T) {
	tests := []struct {
		name string
		im   Image
		n    int
		want uint64
	}{
		{"plt skips resolver", Image{PLT: image.Section{VA: 0x1000, Size: 0x30}}, 0, 0x1010},
		{"plt second stub", Image{PLT: image.Section{VA: 0x1000, Size: 0x30}}, 1, 0x1020},
		{"plt out of range", Image{PLT: image.Section{VA: 0x1000, Size: 0x30}}, 2, 0},
		{"plt.sec preferred", Image{
			PLT:    image.Section{VA: 0x1000, Size: 0x30},
			PLTSec: image.Section{VA: 0x2000, Size: 0x20},
		}, 1, 0x2010},
		{"no plt", Image{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.im.stubAddr(tt.n); got != tt.want {
				t.Errorf("stubAddr(%d) = %#x, want %#x", tt.n, got, tt.want)
			}
		})
	}
}

func TestPLTSymbols(t *testing.T) {
	im := Image{PLTRels: []PLTRel{
		{SymName: "puts", PLTAddr: 0x1010},
		{SymName: "", PLTAddr: 0x1020},
		{SymName: "exit", PLTAddr: 0},
	}}
	syms := im.pltSymbols()
	if len(syms) != 1 {
		t.Fatalf("pltSymbols() = %+v", syms)
	}
	if s := syms[0]; s.Name != "puts@plt" || s.Addr != 0x1010 || !s.IsPLT || !s.Func {
		t.Errorf("symbol = %+v", s)
	}
}
