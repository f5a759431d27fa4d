package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/presentation/graph"
	"github.com/aretw0/osdl/internal/presentation/tui"
	"github.com/aretw0/osdl/pkg/adapters/file"
	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/schema"
	json "github.com/goccy/go-json"
)

// Output formats understood by Render.
const (
	FormatJSON     = "json"
	FormatTUI      = "tui"
	FormatMarkdown = "markdown"
	FormatMermaid  = "mermaid"
)

// RenderOptions control a one-shot render.
type RenderOptions struct {
	PageID    string
	SessionID string
	Ambient   *domain.Ambient
	States    map[string]map[string]any
	Settle    bool
	Format    string
	Width     int
}

// Render materializes a page and writes it to w. With a SessionID the
// render goes through the session manager and its state is persisted.
func (a *App) Render(ctx context.Context, opts RenderOptions, w io.Writer) error {
	var e *osdl.Engine
	var tree *domain.Tree

	render := func(e *osdl.Engine) (err error) {
		if opts.Ambient != nil {
			e.SetAmbient(*opts.Ambient)
		}
		if len(opts.States) > 0 && e.LastTree() == nil {
			// Mount first so the declared initial state does not replace the overrides.
			if _, err := e.Render(ctx); err != nil {
				return err
			}
		}
		for id, st := range opts.States {
			if err := e.UpdateState(id, st); err != nil {
				return err
			}
		}
		if opts.Settle {
			tree, err = e.RenderSettled(ctx)
		} else {
			tree, err = e.Render(ctx)
		}
		return err
	}

	if opts.SessionID != "" {
		var err error
		if e, err = a.Sessions.Open(ctx, opts.SessionID, opts.PageID); err != nil {
			return err
		}
		if err := a.Sessions.Update(ctx, opts.SessionID, render); err != nil {
			return err
		}
	} else {
		var err error
		if e, err = a.NewEngine(ctx, opts.PageID); err != nil {
			return err
		}
		defer e.Close()
		if err := render(e); err != nil {
			return err
		}
	}
	return Write(w, opts.Format, opts.Width, e.Page(), tree)
}

// Write prints a tree in the requested format.
func Write(w io.Writer, format string, width int, page *domain.Page, tree *domain.Tree) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode tree: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, tui.Markdown(tree))
		return err
	case FormatTUI:
		r, err := tui.NewRenderer(width)
		if err != nil {
			return err
		}
		out, err := r.Render(tree)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case FormatMermaid:
		_, err := io.WriteString(w, graph.GenerateMermaid(page, graph.OverlayFromTree(tree)))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// LoaderFor serves pages from path. A directory is scanned for page files;
// a single file is decoded and served alone, and its page id is returned.
func LoaderFor(path string) (ports.PageLoader, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		l, err := file.NewLoader(path)
		return l, "", err
	}
	page, err := schema.DecodeFile(path)
	if err != nil {
		return nil, "", err
	}
	l, err := memory.NewLoader(page)
	if err != nil {
		return nil, "", err
	}
	return l, page.ID, nil
}
