/*
Package session manages preview sessions: one live engine per session, with
its local state and ambient facts persisted as snapshots.

Access to a session is serialized by a reference-counted local lock and,
when configured, a distributed lock, so replicas sharing a Redis store never
apply updates to the same snapshot concurrently.
*/
package session
