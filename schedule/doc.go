// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package schedule is the timer-driven job scheduler: an explicit registry of
named jobs over robfig/cron, owned by the composition root.

Guarantees per registered job:

  - At most one invocation runs at a time. A tick that fires while the
    previous invocation is still running is skipped (not queued) and
    logged.
  - A handler panic is caught at the scheduler boundary and logged with
    the job name; the schedule continues at the next normal interval.
  - Jobs never block each other; each invocation gets its own goroutine.

Register takes standard cron specs or "@every" descriptors.
RegisterDailyWindow fires once per day at a random time inside a fixed
hour window, re-randomized every day.
*/
package schedule
