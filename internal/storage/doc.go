// Package storage is the durable store behind campbot's scheduler.
//
// A store keeps named collections, each a flat JSON list that is rewritten in
// full on every save. Saves are all-or-nothing: readers see either the old
// list or the new one. The store also keeps an append-only audit log of
// operator actions.
//
// Drivers:
//   - "file": one <dir>/<collection>.json per collection, replaced by rename
//   - "sqlite": a single database file (modernc.org/sqlite, no cgo)
package storage
