// Package notifier delivers countdown notices through an async pipeline:
// a bounded queue, a small worker pool, a token-bucket rate limit and an
// in-memory dedup window.
//
// Delivery is best-effort. A send that fails is reported on the event bus
// and never retried; a queue that is full drops the notice.
//
// The dedup key is the notice key (entry id plus notice kind), so a
// completion accepted once is not handed to the platform again by the same
// process even if the scheduler asks twice.
package notifier
