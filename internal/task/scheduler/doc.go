// Package scheduler runs housekeeping jobs on robfig/cron.
//
// Every job is wrapped so a run that is still in flight makes the next
// trigger a no-op, panics are recovered and each run gets its own timeout.
package scheduler
