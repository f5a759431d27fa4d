// Package tui renders materialized page trees for the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/charmbracelet/glamour"
	json "github.com/goccy/go-json"
)

// Renderer turns a tree into styled terminal output.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a Renderer wrapping at width columns. Zero keeps the
// glamour default.
func NewRenderer(width int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{md: r}, nil
}

// Render returns the styled view of the tree.
func (r *Renderer) Render(tree *domain.Tree) (string, error) {
	return r.md.Render(Markdown(tree))
}

// Markdown describes the tree as a markdown outline. Sections become
// headings; atoms and components become bullets with their resolved params.
func Markdown(tree *domain.Tree) string {
	var sb strings.Builder
	if tree == nil {
		return ""
	}
	fmt.Fprintf(&sb, "# %s\n\n", tree.PageID)
	for _, n := range tree.Nodes {
		writeNode(&sb, n, 2)
	}
	return sb.String()
}

func writeNode(sb *strings.Builder, n *domain.RenderedNode, depth int) {
	name := n.ID
	if n.Type != "" {
		name = fmt.Sprintf("%s (%s)", n.ID, n.Type)
	}

	switch {
	case n.Kind == domain.KindSection:
		fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", min(depth, 6)), name)
	case n.Kind == domain.KindCodeblock:
		fmt.Fprintf(sb, "**%s**\n\n```\n%s\n```\n\n", name, codeOf(n.Params))
		return
	default:
		fmt.Fprintf(sb, "- **%s**\n", name)
	}

	if n.Placeholder != nil {
		msg := n.Placeholder.Message
		if msg == "" {
			msg = "loading"
		}
		fmt.Fprintf(sb, "  - _%s: %s_\n\n", n.Placeholder.Type, msg)
		return
	}
	for _, line := range paramLines(n.Params) {
		fmt.Fprintf(sb, "  - %s\n", line)
	}
	if len(n.Pending) > 0 {
		fmt.Fprintf(sb, "  - _pending: %s_\n", strings.Join(n.Pending, ", "))
	}
	if len(n.Events) > 0 {
		fmt.Fprintf(sb, "  - _events: %s_\n", strings.Join(n.Events, ", "))
	}
	if n.Kind != domain.KindSection {
		sb.WriteString("\n")
	}

	for _, c := range n.Children {
		writeNode(sb, c, depth+1)
	}
}

func paramLines(params any) []string {
	m, ok := params.(map[string]any)
	if !ok {
		if params == nil {
			return nil
		}
		return []string{"`" + compact(params) + "`"}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		default:
			lines = append(lines, fmt.Sprintf("%s: `%s`", k, compact(v)))
		}
	}
	return lines
}

func codeOf(params any) string {
	if m, ok := params.(map[string]any); ok {
		for _, key := range []string{"code", "content", "source"} {
			if s, ok := m[key].(string); ok {
				return s
			}
		}
	}
	return compact(params)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
