/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured logs.

Both are plain domain.LifecycleHooks values, so they compose with any
host-supplied hooks through LifecycleHooks.Merge.
*/
package observability
