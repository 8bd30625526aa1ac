// Package countdown schedules timed events for campbot and keeps them across restarts.
//
// Two kinds of entries exist. A countdown ends at a deadline and posts a
// completion notice. A travel entry belongs to a team (its group affinity),
// may wait for an interval boundary before it starts, and is grouped with
// every other travel entry that shares its exact (tenant, start, end) window.
// Once a second team joins a window, a shared coordination space is created
// for all teams in it; the space is archived when the last entry leaves.
//
// All entry and group state is owned by one Scheduler and guarded by its
// mutex. Every mutation is written to the Store before it is committed; a
// failed write rolls the mutation back and is reported as ErrPersistence.
// Delivery of notices is best effort and never retried.
package countdown
