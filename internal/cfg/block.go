// Package cfg recovers the control-flow graph reachable from an entry point
// by recursively decoding basic blocks.
package cfg

import (
	"fmt"
	"sync"
	"sync/atomic"

	"x2arm/internal/disasm"
)

// Handle is a stable index into a Registry's arena.
type Handle int32

// NoHandle is returned where no block exists.
const NoHandle Handle = -1

// State is a block's exploration state.
type State uint32

const (
	Pending    State = iota // referenced, not yet claimed
	InProgress              // claimed by one worker
	Done                    // decode loop finished; the block is frozen
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in-progress"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Edge is a direct transfer of control discovered while decoding a block.
type Edge struct {
	To   Handle
	Kind disasm.Kind // KindJump or KindCall
	Site uint64      // address of the branching instruction
}

// Block is a basic block keyed by its start address. Insts and Succs are
// append-only while InProgress and immutable once Done.
type Block struct {
	Handle Handle
	Addr   uint64
	Insts  disasm.Stream
	Succs  []Edge
	Err    error // address-resolution failure or a bound that cut the block short

	state atomic.Uint32
	mu    sync.Mutex
}

func (b *Block) State() State { return State(b.state.Load()) }

func (b *Block) claim() bool {
	return b.state.CompareAndSwap(uint32(Pending), uint32(InProgress))
}

func (b *Block) unclaim() {
	b.state.Store(uint32(Pending))
}

func (b *Block) finish(err error) {
	b.mu.Lock()
	b.Err = err
	b.mu.Unlock()
	b.state.Store(uint32(Done))
}

func (b *Block) appendInst(in disasm.Inst) {
	b.mu.Lock()
	b.Insts = append(b.Insts, in)
	b.mu.Unlock()
}

func (b *Block) appendSucc(e Edge) {
	b.mu.Lock()
	b.Succs = append(b.Succs, e)
	b.mu.Unlock()
}

// Size is the number of bytes covered by the block's instructions.
func (b *Block) Size() uint64 {
	var n uint64
	for _, in := range b.Insts {
		n += uint64(in.Len)
	}
	return n
}

// Last returns the final instruction, which decides how the block ended.
func (b *Block) Last() (disasm.Inst, bool) {
	if len(b.Insts) == 0 {
		return disasm.Inst{}, false
	}
	return b.Insts[len(b.Insts)-1], true
}
