// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the domain types, lifecycle constants, and sentinel
errors shared by the background engines.

# Lifecycles

Each entity carries an explicit status/stage column rather than ad hoc
boolean flags, so retry-without-duplicate-send stays provable:

	Poll:     open → closed
	Event:    scheduled → reminder_24h_sent → reminder_1h_sent → closed
	Member:   new → welcomed → group_added → fully_onboarded (or skipped)
	Campaign: draft → previewed → sending → completed
	Recipient: pending → sent | failed

# Errors

Rejections are sentinel errors (ErrNotAuthorized, ErrValidation,
ErrCapacityFull, ErrPollClosed, ErrEventClosed, ErrNotFound) checked with
errors.Is. A rejection never leaves a partial write behind. Transient
integration failures (mail, messaging, directory) are not sentinels: they
are logged at the call site and the affected step is left un-advanced so
the next scheduled run retries it.
*/
package models
