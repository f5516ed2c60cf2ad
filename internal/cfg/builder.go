package cfg

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"x2arm/internal/disasm"
	"x2arm/internal/image"
)

const (
	DefaultMaxBlocks     = 1 << 16
	DefaultMaxBlockInsts = 1 << 16
)

var (
	// ErrBlockBudget marks blocks left undecoded because Options.MaxBlocks
	// blocks were already decoded.
	ErrBlockBudget = errors.New("block budget exhausted")
	// ErrBlockTooLong marks a block cut short at Options.MaxBlockInsts.
	ErrBlockTooLong = errors.New("block instruction limit reached")
)

// Mapper translates virtual addresses into offsets of the builder's data.
// Every image.Image satisfies it.
type Mapper interface {
	VAToOffset(va uint64) (uint64, error)
}

type Options struct {
	MaxBlocks     int         // blocks decoded per builder; 0 means DefaultMaxBlocks
	MaxBlockInsts int         // instructions per block; 0 means DefaultMaxBlockInsts
	Workers       int         // concurrent decoders; values below 2 explore sequentially
	Logger        *log.Logger // exploration tracing at debug level; nil is silent
}

func (o Options) withDefaults() Options {
	if o.MaxBlocks <= 0 {
		o.MaxBlocks = DefaultMaxBlocks
	}
	if o.MaxBlockInsts <= 0 {
		o.MaxBlockInsts = DefaultMaxBlockInsts
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// Builder explores one image. Its registry persists across Explore calls, so
// later roots reuse blocks decoded earlier.
type Builder struct {
	mem     Mapper
	data    []byte
	dec     disasm.Decoder
	opts    Options
	reg     *Registry
	decoded atomic.Int64
}

// NewBuilder borrows mem, data and dec for the builder's lifetime. data is
// never copied or modified.
func NewBuilder(mem Mapper, data []byte, dec disasm.Decoder, opts Options) *Builder {
	return &Builder{
		mem:  mem,
		data: data,
		dec:  dec,
		opts: opts.withDefaults(),
		reg:  NewRegistry(),
	}
}

func (b *Builder) Registry() *Registry { return b.reg }

// Explore decodes every block reachable from start through direct jumps and
// calls. On cancellation it returns the partial graph and ctx.Err().
func (b *Builder) Explore(ctx context.Context, start uint64) (*Graph, error) {
	return b.ExploreRoots(ctx, []uint64{start})
}

// ExploreRoots is Explore with several entry points; the graph's Root is the
// first of them. Blocks left Pending by an earlier cancelled call are resumed.
func (b *Builder) ExploreRoots(ctx context.Context, roots []uint64) (*Graph, error) {
	if len(roots) == 0 {
		return nil, errors.New("cfg: no roots to explore")
	}

	wl := newWorklist()
	g := &Graph{Registry: b.reg}
	for _, h := range b.reg.Handles() {
		if b.reg.Block(h).State() == Pending {
			wl.push(h)
		}
	}
	// Pushed last so the first root is decoded first.
	for i := len(roots) - 1; i >= 0; i-- {
		h, _ := b.reg.GetOrCreate(roots[i])
		wl.push(h)
	}
	for _, a := range roots {
		h, _ := b.reg.Lookup(a)
		g.Roots = append(g.Roots, h)
	}
	g.Root = g.Roots[0]

	stop := context.AfterFunc(ctx, wl.close)
	defer stop()

	var err error
	if b.opts.Workers == 1 {
		err = b.work(ctx, wl)
	} else {
		eg, ectx := errgroup.WithContext(ctx)
		for range b.opts.Workers {
			eg.Go(func() error { return b.work(ectx, wl) })
		}
		err = eg.Wait()
	}
	if err == nil {
		err = ctx.Err()
	}

	g.collectUnresolved(err)
	if b.opts.Logger != nil {
		st := g.Stats()
		b.opts.Logger.Debug("exploration finished",
			"blocks", st.Blocks, "insts", st.Insts, "edges", st.Edges, "unresolved", len(g.Unresolved))
	}
	return g, err
}

func (b *Builder) work(ctx context.Context, wl *worklist) error {
	for {
		h, ok := wl.pop()
		if !ok {
			return ctx.Err()
		}
		if ctx.Err() == nil {
			b.decode(h, wl)
		}
		wl.release()
	}
}

// reserve counts one more decoded block against MaxBlocks.
func (b *Builder) reserve() bool {
	for {
		n := b.decoded.Load()
		if n >= int64(b.opts.MaxBlocks) {
			return false
		}
		if b.decoded.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// decode is one unit of work: claim the block, decode it until a terminating
// instruction and queue newly referenced targets.
func (b *Builder) decode(h Handle, wl *worklist) {
	blk := b.reg.Block(h)
	if !blk.claim() {
		return
	}
	if !b.reserve() {
		blk.unclaim()
		return
	}
	lg := b.opts.Logger
	if lg != nil {
		lg.Debug("decode", "addr", fmt.Sprintf("%#x", blk.Addr))
	}

	off, err := b.mem.VAToOffset(blk.Addr)
	if err == nil && off >= uint64(len(b.data)) {
		err = fmt.Errorf("cfg: %w: va %#x maps past end of data", image.ErrAddressOutOfRange, blk.Addr)
	}
	if err != nil {
		if lg != nil {
			lg.Debug("unmapped", "addr", fmt.Sprintf("%#x", blk.Addr), "err", err)
		}
		blk.finish(err)
		return
	}

	n := 0
	for in := range b.dec.Instructions(b.data[off:], blk.Addr) {
		if n == b.opts.MaxBlockInsts {
			blk.finish(fmt.Errorf("%w: block %#x stopped at %#x after %d instructions",
				ErrBlockTooLong, blk.Addr, in.VA, n))
			return
		}
		blk.appendInst(in)
		n++

		if in.Kind == disasm.KindJump || in.Kind == disasm.KindCall {
			th, created := b.reg.GetOrCreate(in.Target)
			blk.appendSucc(Edge{To: th, Kind: in.Kind, Site: in.VA})
			if lg != nil {
				lg.Debug("edge", "from", fmt.Sprintf("%#x", in.VA), "to", fmt.Sprintf("%#x", in.Target),
					"kind", in.Kind, "new", created)
			}
			if b.reg.Block(th).State() == Pending {
				wl.push(th)
			}
		}
		if in.Kind.Terminates() {
			break
		}
	}
	blk.finish(nil)
}
