package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Session is the live page the preview drives. *osdl.Engine satisfies it.
type Session interface {
	Render(ctx context.Context) (*domain.Tree, error)
	Dispatch(ctx context.Context, nodeID, event string, value any) error
	Subscribe(fn func(domain.Patch)) func()
}

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Padding(0, 1)

	styleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	styleTarget = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	styleErr = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)
)

// target is a node event the user can fire.
type target struct {
	nodeID string
	event  string
}

type treeMsg struct {
	tree *domain.Tree
	err  error
}

type patchMsg struct{}

type dispatchedMsg struct {
	target target
	err    error
}

type previewModel struct {
	ctx      context.Context
	session  Session
	renderer *Renderer
	viewport viewport.Model
	ready    bool

	tree    *domain.Tree
	targets []target
	cursor  int
	status  string
	err     error
}

func newPreviewModel(ctx context.Context, s Session) previewModel {
	return previewModel{ctx: ctx, session: s}
}

func (m previewModel) refresh() tea.Msg {
	tree, err := m.session.Render(m.ctx)
	return treeMsg{tree: tree, err: err}
}

func (m previewModel) dispatch(t target) tea.Cmd {
	return func() tea.Msg {
		return dispatchedMsg{target: t, err: m.session.Dispatch(m.ctx, t.nodeID, t.event, nil)}
	}
}

func (m previewModel) Init() tea.Cmd {
	return m.refresh
}

func (m previewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		if r, err := NewRenderer(msg.Width - 2); err == nil {
			m.renderer = r
		}
		m.setContent()
		return m, nil

	case treeMsg:
		m.err = msg.err
		if msg.err == nil {
			m.tree = msg.tree
			m.targets = collectTargets(msg.tree)
			if m.cursor >= len(m.targets) {
				m.cursor = 0
			}
		}
		m.setContent()
		return m, nil

	case patchMsg:
		return m, m.refresh

	case dispatchedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("%s fired on %s", msg.target.event, msg.target.nodeID)
		}
		return m, m.refresh

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if len(m.targets) > 0 {
				m.cursor = (m.cursor + 1) % len(m.targets)
			}
			return m, nil
		case "shift+tab":
			if len(m.targets) > 0 {
				m.cursor = (m.cursor - 1 + len(m.targets)) % len(m.targets)
			}
			return m, nil
		case "enter":
			if len(m.targets) == 0 {
				return m, nil
			}
			return m, m.dispatch(m.targets[m.cursor])
		case "r":
			return m, m.refresh
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *previewModel) setContent() {
	if !m.ready || m.tree == nil {
		return
	}
	content := Markdown(m.tree)
	if m.renderer != nil {
		if styled, err := m.renderer.Render(m.tree); err == nil {
			content = styled
		}
	}
	m.viewport.SetContent(content)
}

func (m previewModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "OSDL preview"
	if m.tree != nil {
		title += "  [" + m.tree.PageID + "]"
	}

	var footer []string
	if len(m.targets) > 0 {
		t := m.targets[m.cursor]
		footer = append(footer, styleTarget.Render(t.event+" → "+t.nodeID))
	}
	switch {
	case m.err != nil:
		footer = append(footer, styleErr.Render(m.err.Error()))
	case m.status != "":
		footer = append(footer, styleHelp.Render(m.status))
	}
	footer = append(footer, styleHelp.Render("tab next · enter fire · r render · q quit"))

	return styleTitle.Render(title) + "\n" + m.viewport.View() + "\n" + strings.Join(footer, " ")
}

// collectTargets lists every node event in tree order, click first.
func collectTargets(tree *domain.Tree) []target {
	if tree == nil {
		return nil
	}
	var out []target
	var walk func(nodes []*domain.RenderedNode)
	walk = func(nodes []*domain.RenderedNode) {
		for _, n := range nodes {
			events := slices.Clone(n.Events)
			if i := slices.Index(events, domain.EventClick); i > 0 {
				events[0], events[i] = events[i], events[0]
			}
			for _, e := range events {
				out = append(out, target{nodeID: n.ID, event: e})
			}
			walk(n.Children)
		}
	}
	walk(tree.Nodes)
	return out
}

// RunPreview opens a full screen preview of s. Tab cycles through node
// events, enter fires the selected one and patches re-render the view.
func RunPreview(ctx context.Context, s Session, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(newPreviewModel(ctx, s), opts...)

	unsubscribe := s.Subscribe(func(domain.Patch) {
		go p.Send(patchMsg{})
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
