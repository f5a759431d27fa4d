package domain

// Page is a complete declarative page.
type Page struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`

	// Data is static page-level data exposed under the data root.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`

	// DataSources are fetched once per page load; each Key is merged into data.
	DataSources []DataRequirement `json:"dataSource,omitempty" yaml:"dataSource,omitempty" mapstructure:"dataSource"`

	Nodes []Node `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
}

// FindNode returns the static schema node with the given id.
func (p *Page) FindNode(id string) *Node {
	var found *Node
	for i := range p.Nodes {
		p.Nodes[i].Walk(func(n *Node) bool {
			if found != nil {
				return false
			}
			if n.ID == id {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// Clone returns a deep copy of the page.
func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	c := *p
	if p.Data != nil {
		c.Data = CloneValue(p.Data).(map[string]any)
	}
	if p.DataSources != nil {
		c.DataSources = make([]DataRequirement, len(p.DataSources))
		for i, r := range p.DataSources {
			c.DataSources[i] = r.Clone()
		}
	}
	c.Nodes = make([]Node, len(p.Nodes))
	for i := range p.Nodes {
		c.Nodes[i] = *p.Nodes[i].Clone()
	}
	return &c
}

// Ambient holds the facts supplied by the hosting shell.
// The engine never writes to them.
type Ambient struct {
	Page     map[string]any `json:"page,omitempty" yaml:"page,omitempty" mapstructure:"page"`
	Viewport map[string]any `json:"viewport,omitempty" yaml:"viewport,omitempty" mapstructure:"viewport"`
	User     map[string]any `json:"user,omitempty" yaml:"user,omitempty" mapstructure:"user"`
}
