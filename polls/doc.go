// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package polls implements the poll lifecycle: open → closed.

Votes are multi-select per user and last-write-wins per (option, user):
ToggleVote flips exactly one pair, SetUserVotes reconciles the full set.
Both run check-then-write inside a single transaction against the open
status, so a vote can never land on a closed poll.

Closing happens two ways that share one code path: Close (creator only,
AuthorizationError for anyone else) and the CloseExpired job, which the
scheduler runs every minute for polls with a passed closes_at.
*/
package polls
