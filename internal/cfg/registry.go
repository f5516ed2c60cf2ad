package cfg

import "sync"

// Registry owns every block of one exploration session and guarantees a
// single block per start address.
type Registry struct {
	mu     sync.RWMutex
	blocks []*Block
	index  map[uint64]Handle
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[uint64]Handle)}
}

// GetOrCreate returns the block for addr, creating a Pending one if the
// address was never referenced. The bool reports whether it was created.
func (r *Registry) GetOrCreate(addr uint64) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.index[addr]
	r.mu.RUnlock()
	if ok {
		return h, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.index[addr]; ok {
		return h, false
	}
	h = Handle(len(r.blocks))
	r.blocks = append(r.blocks, &Block{Handle: h, Addr: addr})
	r.index[addr] = h
	return h, true
}

func (r *Registry) Lookup(addr uint64) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.index[addr]
	return h, ok
}

// Block returns the block for h, or nil if h is out of range.
func (r *Registry) Block(h Handle) *Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h < 0 || int(h) >= len(r.blocks) {
		return nil
	}
	return r.blocks[h]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// Handles returns every handle in creation order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := make([]Handle, len(r.blocks))
	for i := range hs {
		hs[i] = Handle(i)
	}
	return hs
}
