package domain

// Context roots visible to expressions.
const (
	RootData        = "data"
	RootNodeData    = "nodeData"
	RootStates      = "states"
	RootParentState = "parentState"
	RootState       = "state"
	RootItem        = "item"
	RootEvent       = "event"
	RootPage        = "page"
	RootViewport    = "viewport"
	RootUser        = "user"
)

// Source types understood by the bundled data sources.
const (
	SourceRQL      = "rql"
	SourceMockData = "mockData"
	SourceSQL      = "sql"
)

// DefaultCacheKeyPrefix namespaces shared cache entries.
const DefaultCacheKeyPrefix = "osdl:cache:"
