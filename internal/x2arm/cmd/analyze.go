package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"x2arm/internal/cfg"
	"x2arm/internal/disasm"
	"x2arm/internal/image"
	"x2arm/internal/loader"
	"x2arm/internal/render"
	"x2arm/internal/x2arm/config"
)

// errUnresolved is returned after a listing whose graph has failed blocks.
var errUnresolved = errors.New("unresolved addresses")

// session is one loaded image and the graph recovered from it.
type session struct {
	im    image.Image
	meta  render.Meta
	graph *cfg.Graph
	// err is the exploration error, usually a cancellation or timeout.
	// graph is still valid when it is set.
	err error
}

func (s *session) Close() error {
	if s == nil || s.im == nil {
		return nil
	}
	return s.im.Close()
}

// roots returns the entry point followed by, when symbols is set, every
// function symbol inside the text section. Duplicates are dropped.
func roots(im image.Image, text image.Section, symbols bool) []uint64 {
	out := []uint64{im.Entry()}
	if !symbols {
		return out
	}
	for _, s := range im.Symbols().Functions(text) {
		if !slices.Contains(out, s.Addr) {
			out = append(out, s.Addr)
		}
	}
	return out
}

// analyze loads path and explores it. Load and decoder errors are returned
// before any exploration starts. The caller closes the session.
func analyze(ctx context.Context, path string, c config.Config, logger *log.Logger) (*session, error) {
	im, err := loader.Open(path)
	if err != nil {
		return nil, err
	}
	s := &session{im: im}

	s.meta, err = render.MetaOf(im)
	if err != nil {
		s.Close()
		return nil, err
	}
	dec, err := disasm.ForArch(im.Arch(), c.DecoderSyntax())
	if err != nil {
		s.Close()
		return nil, err
	}
	dec = dec.WithSymbols(im.Symbols())

	timeout, err := c.TimeoutDuration()
	if err != nil {
		s.Close()
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rs := roots(im, s.meta.Text, c.Symbols)
	if logger != nil {
		logger.Debug("exploring", "path", path, "arch", s.meta.Arch, "roots", len(rs), "workers", c.Workers)
	}
	b := cfg.NewBuilder(im, im.Bytes(), dec, c.Options(logger))
	s.graph, s.err = b.ExploreRoots(ctx, rs)
	return s, nil
}

// writeListing prints the session in the configured format. Text output is
// preceded by the metadata block.
func writeListing(w io.Writer, s *session, c config.Config, color bool) error {
	switch c.Output {
	case config.OutputJSON:
		return render.JSON(w, s.graph, render.JSONOptions{
			Meta:    &s.meta,
			Full:    c.Full,
			Symbols: s.im.Symbols(),
		})
	case config.OutputDOT:
		return render.DOT(w, s.graph, render.DOTOptions{Symbols: s.im.Symbols()})
	default:
		if err := render.WriteMeta(w, s.meta); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		return render.Text(w, s.graph, render.TextOptions{
			Full:    c.Full,
			Color:   color,
			Syntax:  c.Syntax,
			Symbols: s.im.Symbols(),
		})
	}
}

// finish reports unresolved addresses on stderr and turns them into the
// command's error.
func finish(stderr io.Writer, s *session) error {
	if s.err != nil {
		fmt.Fprintf(stderr, "exploration stopped: %v\n", s.err)
	}
	if s.graph.Complete() && s.err == nil {
		return nil
	}
	if err := render.WriteUnresolved(stderr, s.graph); err != nil {
		return err
	}
	if s.err != nil {
		return s.err
	}
	return fmt.Errorf("%w: %d", errUnresolved, len(s.graph.Unresolved))
}
