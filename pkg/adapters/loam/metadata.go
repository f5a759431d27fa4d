package loam

// PageMetadata is the front matter of a page document.
// Nested values stay generic and are decoded into domain types by the schema
// package, so every page encoding follows the same rules.
type PageMetadata struct {
	ID         string         `json:"id" mapstructure:"id"`
	Title      string         `json:"title" mapstructure:"title"`
	Data       map[string]any `json:"data" mapstructure:"data"`
	DataSource []any          `json:"dataSource" mapstructure:"dataSource"`
	Nodes      []any          `json:"nodes" mapstructure:"nodes"`
}
