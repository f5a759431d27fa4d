package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/osdl/pkg/domain"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	renders    int
	dispatched []target
	failNext   error
}

func (f *fakeSession) Render(ctx context.Context) (*domain.Tree, error) {
	f.renders++
	tree := sampleTree()
	tree.Nodes = append(tree.Nodes, &domain.RenderedNode{
		ID: "form", Kind: domain.KindComponent, Events: []string{domain.EventSubmit, domain.EventClick},
	})
	return tree, nil
}

func (f *fakeSession) Dispatch(ctx context.Context, nodeID, event string, value any) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.dispatched = append(f.dispatched, target{nodeID: nodeID, event: event})
	return nil
}

func (f *fakeSession) Subscribe(fn func(domain.Patch)) func() { return func() {} }

func step(t *testing.T, m previewModel, msg tea.Msg) (previewModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(previewModel)
	require.True(t, ok)
	return pm, cmd
}

func TestPreview_Flow(t *testing.T) {
	s := &fakeSession{}
	m := newPreviewModel(context.Background(), s)
	assert.Equal(t, "Loading...", m.View())

	m, _ = step(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = step(t, m, m.Init()())
	require.Equal(t, []target{
		{nodeID: "tabs", event: domain.EventClick},
		{nodeID: "form", event: domain.EventClick},
		{nodeID: "form", event: domain.EventSubmit},
	}, m.targets)
	assert.Contains(t, m.View(), "[home]")
	assert.Contains(t, m.View(), "onClick → tabs")

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 1, m.cursor)

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, cmd = step(t, m, cmd())
	assert.Equal(t, []target{{nodeID: "form", event: domain.EventClick}}, s.dispatched)
	assert.Contains(t, m.View(), "onClick fired on form")

	require.NotNil(t, cmd, "a dispatch re-renders")
	m, _ = step(t, m, cmd())
	assert.Equal(t, 2, s.renders)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, 2, m.cursor)

	_, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestPreview_DispatchError(t *testing.T) {
	s := &fakeSession{failNext: errors.New("boom")}
	m := newPreviewModel(context.Background(), s)
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	m, _ = step(t, m, m.Init()())

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = step(t, m, cmd())
	assert.Contains(t, m.View(), "boom")
	assert.Empty(t, s.dispatched)
}

func TestPreview_PatchRefreshes(t *testing.T) {
	s := &fakeSession{}
	m := newPreviewModel(context.Background(), s)
	_, cmd := step(t, m, patchMsg{})
	require.NotNil(t, cmd)
	_, ok := cmd().(treeMsg)
	assert.True(t, ok)
}
