package dsl

import (
	"fmt"

	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/schema"
)

// Builder manages the page construction.
type Builder struct {
	page  domain.Page
	nodes []*NodeBuilder
	opts  []schema.PageOption
}

// New creates a builder for the page with the given id.
func New(id string) *Builder {
	return &Builder{page: domain.Page{ID: id}}
}

// Title sets the page title.
func (b *Builder) Title(title string) *Builder {
	b.page.Title = title
	return b
}

// Data sets one key of the static page data.
func (b *Builder) Data(key string, value any) *Builder {
	if b.page.Data == nil {
		b.page.Data = make(map[string]any)
	}
	b.page.Data[key] = value
	return b
}

// Source adds a page-level data source merged into data under its key.
func (b *Builder) Source(req domain.DataRequirement) *Builder {
	b.page.DataSources = append(b.page.DataSources, req)
	return b
}

// Add appends root nodes.
func (b *Builder) Add(nodes ...*NodeBuilder) *Builder {
	b.nodes = append(b.nodes, nodes...)
	return b
}

// ValidateWith passes extra options to the validation run by Build.
func (b *Builder) ValidateWith(opts ...schema.PageOption) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build assembles, normalizes and validates the page.
func (b *Builder) Build() (*domain.Page, error) {
	page := b.page
	page.Nodes = make([]domain.Node, 0, len(b.nodes))
	for _, nb := range b.nodes {
		page.Nodes = append(page.Nodes, nb.Node())
	}
	out := page.Clone()
	schema.Normalize(out)
	if err := schema.ValidatePage(out, b.opts...); err != nil {
		return nil, fmt.Errorf("invalid page %s: %w", page.ID, err)
	}
	return out, nil
}

// MustBuild is like Build but panics on error. Intended for tests and
// package-level page declarations.
func (b *Builder) MustBuild() *domain.Page {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Loader builds every page into an in-memory loader.
func Loader(builders ...*Builder) (*memory.Loader, error) {
	pages := make([]*domain.Page, 0, len(builders))
	for _, b := range builders {
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	loader, err := memory.NewLoader(pages...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
