package cfg

import (
	"cmp"
	"errors"
	"slices"
)

// ErrStopWalk may be returned by a visit function to end a walk early
// without reporting an error.
var ErrStopWalk = errors.New("stop walk")

// Unresolved is an address whose block could not be fully decoded.
type Unresolved struct {
	Addr uint64
	Err  error
}

type Stats struct {
	Blocks int `json:"blocks"`
	Insts  int `json:"insts"`
	Edges  int `json:"edges"`
}

// Graph is the result of an exploration. It shares the builder's registry.
type Graph struct {
	Root       Handle
	Roots      []Handle
	Registry   *Registry
	Unresolved []Unresolved // sorted by address
}

// Complete reports whether every referenced block was decoded without error.
func (g *Graph) Complete() bool { return len(g.Unresolved) == 0 }

func (g *Graph) Block(h Handle) *Block { return g.Registry.Block(h) }

// Lookup returns the block starting at addr.
func (g *Graph) Lookup(addr uint64) (*Block, bool) {
	h, ok := g.Registry.Lookup(addr)
	if !ok {
		return nil, false
	}
	return g.Registry.Block(h), true
}

func (g *Graph) Stats() Stats {
	var s Stats
	for _, h := range g.Registry.Handles() {
		b := g.Registry.Block(h)
		s.Blocks++
		s.Insts += len(b.Insts)
		s.Edges += len(b.Succs)
	}
	return s
}

func (g *Graph) collectUnresolved(cause error) {
	g.Unresolved = g.Unresolved[:0]
	for _, h := range g.Registry.Handles() {
		b := g.Registry.Block(h)
		switch {
		case b.State() != Done:
			err := cause
			if err == nil {
				err = ErrBlockBudget
			}
			g.Unresolved = append(g.Unresolved, Unresolved{Addr: b.Addr, Err: err})
		case b.Err != nil:
			g.Unresolved = append(g.Unresolved, Unresolved{Addr: b.Addr, Err: b.Err})
		}
	}
	slices.SortFunc(g.Unresolved, func(a, b Unresolved) int { return cmp.Compare(a.Addr, b.Addr) })
}

// Walk visits every block reachable from root exactly once, depth-first in
// preorder, following successors in the order they were recorded. The walk
// stops at the first error returned by visit; ErrStopWalk ends it cleanly.
// visit must not modify the graph.
func (g *Graph) Walk(root Handle, visit func(*Block) error) error {
	return g.walk([]Handle{root}, make([]bool, g.Registry.Len()), visit)
}

// WalkAll walks from every root in turn, visiting each block once overall.
func (g *Graph) WalkAll(visit func(*Block) error) error {
	return g.walk(g.Roots, make([]bool, g.Registry.Len()), visit)
}

func (g *Graph) walk(roots []Handle, seen []bool, visit func(*Block) error) error {
	var stack []Handle
	for _, root := range roots {
		stack = append(stack[:0], root)
		for len(stack) > 0 {
			h := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if h < 0 || int(h) >= len(seen) || seen[h] {
				continue
			}
			seen[h] = true

			b := g.Registry.Block(h)
			if err := visit(b); err != nil {
				if errors.Is(err, ErrStopWalk) {
					return nil
				}
				return err
			}
			// Reverse push so the first successor is visited next.
			for i := len(b.Succs) - 1; i >= 0; i-- {
				if s := b.Succs[i].To; !seen[s] {
					stack = append(stack, s)
				}
			}
		}
	}
	return nil
}

// Reachable returns the handles reachable from root in walk order.
func (g *Graph) Reachable(root Handle) []Handle {
	var hs []Handle
	_ = g.Walk(root, func(b *Block) error {
		hs = append(hs, b.Handle)
		return nil
	})
	return hs
}
