/*
Package orchestrator resolves the data requirements of page nodes.

An Orchestrator is shared by every page instance of a process: it owns the
registered data sources, the cache and the in-flight request table, so two
nodes (or two sessions) asking for the same resolved query share one fetch.

Each page instance talks to it through a Resolver, which remembers the
resolution of every (node, key) pair, never blocks the caller and reports
settled fetches through a callback. Settles for nodes that are no longer
mounted are dropped.
*/
package orchestrator
