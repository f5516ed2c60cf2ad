package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/log"

	"x2arm/internal/cfg"
	"x2arm/internal/render"
	"x2arm/internal/ui/colorize"
	"x2arm/internal/x2arm/config"
	"x2arm/internal/x2arm/styles"
)

type viewMode int

const (
	viewBlocks viewMode = iota
	viewBlock
	viewUnresolved
)

type blockItem struct {
	handle cfg.Handle
	addr   uint64
	symbol string
	insts  int
	failed bool
}

func (i blockItem) FilterValue() string { return fmt.Sprintf("%x %s", i.addr, i.symbol) }

type blockDelegate struct{}

func (d blockDelegate) Height() int                               { return 1 }
func (d blockDelegate) Spacing() int                              { return 0 }
func (d blockDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d blockDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(blockItem)
	if !ok {
		return
	}
	indicator, addr := " ", styles.Address.Render(fmt.Sprintf("%016x", i.addr))
	if index == m.Index() {
		indicator, addr = ">", styles.Selected.Render(fmt.Sprintf("%016x", i.addr))
	}
	line := fmt.Sprintf(" %s  %s  %4d", indicator, addr, i.insts)
	if i.symbol != "" {
		line += "  " + styles.Symbol.Render(i.symbol)
	}
	if i.failed {
		line += "  " + styles.Failed.Render("unresolved")
	}
	fmt.Fprint(w, line)
}

// exploredMsg carries the finished exploration into the model.
type exploredMsg struct {
	s   *session
	err error
}

type model struct {
	ctx     context.Context
	path    string
	cfg     config.Config
	logger  *log.Logger
	blocks  list.Model
	detail  viewport.Model
	spinner spinner.Model
	mode    viewMode
	s       *session
	err     error
	loading bool
	width   int
	height  int
}

func newModel(ctx context.Context, path string, c config.Config, logger *log.Logger) model {
	blocks := list.New([]list.Item{}, blockDelegate{}, 80, 22)
	blocks.SetShowStatusBar(false)
	blocks.SetFilteringEnabled(true)
	blocks.SetShowHelp(true)
	blocks.Title = "Blocks"
	blocks.Styles.Title = styles.Title

	detail := viewport.New()
	detail.SetWidth(80)
	detail.SetHeight(22)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return model{
		ctx:     ctx,
		path:    path,
		cfg:     c,
		logger:  logger,
		blocks:  blocks,
		detail:  detail,
		spinner: s,
		loading: true,
		width:   80,
		height:  24,
	}
}

func (m model) explore() tea.Msg {
	s, err := analyze(m.ctx, m.path, m.cfg, m.logger)
	return exploredMsg{s: s, err: err}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.explore, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case exploredMsg:
		m.loading = false
		m.s, m.err = msg.s, msg.err
		if m.err != nil {
			return m, tea.Quit
		}
		m.blocks.Title = m.title()
		return m, m.blocks.SetItems(m.items())

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.blocks.SetWidth(msg.Width)
		m.blocks.SetHeight(msg.Height - 2)
		m.detail.SetWidth(msg.Width)
		m.detail.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		filtering := m.mode == viewBlocks && m.blocks.FilterState() == list.Filtering
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if !filtering {
				return m, tea.Quit
			}
		case "enter":
			if m.mode == viewBlocks && !filtering {
				if item, ok := m.blocks.SelectedItem().(blockItem); ok {
					m.detail.SetContent(m.blockContent(item.handle))
					m.detail.GotoTop()
					m.mode = viewBlock
				}
				return m, nil
			}
		case "esc", "b":
			if m.mode != viewBlocks {
				m.mode = viewBlocks
				return m, nil
			}
		case "u":
			if !filtering && m.s != nil && !m.s.graph.Complete() {
				var sb strings.Builder
				render.WriteUnresolved(&sb, m.s.graph)
				m.detail.SetContent(styles.Failed.Render(sb.String()))
				m.detail.GotoTop()
				m.mode = viewUnresolved
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewBlocks:
		m.blocks, cmd = m.blocks.Update(msg)
	default:
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	if m.loading {
		return fmt.Sprintf("\n  %s Exploring %s...\n", m.spinner.View(), m.path)
	}

	var content, menu string
	switch m.mode {
	case viewBlocks:
		content = m.blocks.View()
		menu = " Enter: view block • /: filter • Q: quit "
		if m.s != nil && !m.s.graph.Complete() {
			menu = " Enter: view block • U: unresolved • /: filter • Q: quit "
		}
	default:
		content = m.detail.View()
		menu = " Esc: back to blocks • Q: quit "
	}
	return content + "\n" + styles.Menu.Width(m.width).Render(menu)
}

func (m model) title() string {
	st := m.s.graph.Stats()
	return fmt.Sprintf("%s · %s %s · %d blocks · %d edges",
		m.s.meta.Path, m.s.meta.Format, m.s.meta.Arch, st.Blocks, st.Edges)
}

// items lists the reachable blocks in walk order.
func (m model) items() []list.Item {
	var items []list.Item
	failed := make(map[uint64]bool, len(m.s.graph.Unresolved))
	for _, u := range m.s.graph.Unresolved {
		failed[u.Addr] = true
	}
	syms := m.s.im.Symbols()
	_ = m.s.graph.WalkAll(func(b *cfg.Block) error {
		item := blockItem{
			handle: b.Handle,
			addr:   b.Addr,
			insts:  len(b.Insts),
			failed: failed[b.Addr],
		}
		if s, ok := syms.Lookup(b.Addr); ok {
			item.symbol = s.Name
		}
		items = append(items, item)
		return nil
	})
	return items
}

func (m model) blockContent(h cfg.Handle) string {
	b := m.s.graph.Block(h)
	var reason error
	for _, u := range m.s.graph.Unresolved {
		if u.Addr == b.Addr {
			reason = u.Err
			break
		}
	}
	return render.BlockText(b, reason, render.TextOptions{
		Full:    true,
		Color:   colorize.Enabled(),
		Syntax:  m.cfg.Syntax,
		Symbols: m.s.im.Symbols(),
	})
}

// runTUI explores path behind a spinner and then lets the user browse the
// blocks. Unresolved addresses are reported after the TUI exits.
func runTUI(ctx context.Context, path string, c config.Config, logger *log.Logger) error {
	program := tea.NewProgram(
		newModel(ctx, path, c, logger),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	final, err := program.Run()
	if err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	m, ok := final.(model)
	if !ok {
		return nil
	}
	if m.err != nil {
		return m.err
	}
	if m.s == nil {
		return nil
	}
	defer m.s.Close()
	return finish(os.Stderr, m.s)
}
