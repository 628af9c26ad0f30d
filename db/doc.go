// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db owns the schema and connection setup for the persistent store.

The store holds entities only; all behavior lives in the engine packages
(polls, events, onboarding, outreach, feeds), which run raw SQL against the
*sql.DB handed to them. The schema is written to run unchanged on both
sqlite (default, modernc.org/sqlite) and postgres (lib/pq): $N
placeholders, TEXT ids generated in Go, ON CONFLICT upserts, no
driver-specific defaults.

Every multi-step mutation in the engines happens inside one transaction per
state-machine step, so a crash never leaves an entity half-updated.
*/
package db
