// Package catalog persists File, Pipeline, and Job records in SQLite and
// exposes the conditional status transitions the rest of the system is
// built on.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, and compare-and-swap status updates. Every
// transition is expressed as "update status if current status equals
// expected"; a transition that matches zero rows signals a lost race and is
// reported to the caller as ok == false, never as an error. Worker runtimes
// rely on this to guarantee at most one active execution per job even when
// the broker redelivers an envelope.
//
// Treat this package as the single source of truth for record semantics;
// when you add new statuses or fields, update schema.sql and bump
// schemaVersion.
package catalog
