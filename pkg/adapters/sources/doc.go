// Package sources provides ports.DataSource implementations: MockData serves
// fixtures (JSON, YAML or spreadsheets) for local previews, RQL calls a remote
// RQL contract endpoint and SQL runs read queries against a database.
package sources
